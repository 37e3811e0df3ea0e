// Package dump writes a full listing of a playlist, Watch Later by default,
// including the items YouTube no longer serves.
package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ytplsync/internal/log"
	"ytplsync/storage"
	"ytplsync/youtube"
)

// Reasons recorded for unavailable items.
const (
	ReasonDeletedOrPrivate = "Video appears deleted or private"
	ReasonNotAccessible    = "Video not accessible via API (may be private/deleted)"
)

const descriptionLimit = 200

// API is the part of the Data API client the dumper calls.
type API interface {
	ListPlaylistItems(ctx context.Context, playlistID string, fn func(page []youtube.PlaylistItem) error) error
	VideoDetails(ctx context.Context, ids []string) (map[string]youtube.Video, error)
}

// Item is one playlist entry in a dump.
type Item struct {
	Position              int       `json:"position"`
	VideoID               string    `json:"video_id"`
	AddedAt               time.Time `json:"added_to_playlist_at"`
	PlaylistItemTitle     string    `json:"playlist_item_title"`
	PlaylistItemChannel   string    `json:"playlist_item_channel,omitempty"`
	PlaylistItemChannelID string    `json:"playlist_item_channel_id,omitempty"`
	PlaylistPrivacyStatus string    `json:"playlist_privacy_status,omitempty"`
	Available             bool      `json:"available"`
	ErrorReason           string    `json:"error_reason,omitempty"`

	Title         string     `json:"title"`
	ChannelTitle  string     `json:"channel_title,omitempty"`
	ChannelID     string     `json:"channel_id,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	Description   string     `json:"description,omitempty"`
	Duration      string     `json:"duration,omitempty"`
	PrivacyStatus string     `json:"privacy_status,omitempty"`
	UploadStatus  string     `json:"upload_status,omitempty"`
	ViewCount     *uint64    `json:"view_count,omitempty"`
	LikeCount     *uint64    `json:"like_count,omitempty"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
}

// Report is the file written by a dump.
type Report struct {
	PlaylistID       string    `json:"playlist_id"`
	DumpDate         time.Time `json:"dump_date"`
	TotalItems       int       `json:"total_items"`
	AvailableItems   int       `json:"available_items"`
	UnavailableItems int       `json:"unavailable_items"`
	Items            []Item    `json:"items"`
}

// Dumper lists playlists.
type Dumper struct {
	api API
	now func() time.Time
	log zerolog.Logger
}

// New returns a dumper backed by api.
func New(api API) *Dumper {
	return &Dumper{api: api, now: time.Now, log: log.WithComponent("dump")}
}

// Dump lists every item of playlistID, or of Watch Later when it is empty.
// Items that look deleted or private are marked unavailable without a lookup;
// the rest get their video details fetched page by page.
func (d *Dumper) Dump(ctx context.Context, playlistID string) (*Report, error) {
	if playlistID == "" {
		playlistID = youtube.WatchLaterID
	}
	logger := d.log.With().Str(log.FieldPlaylist, playlistID).Logger()

	var items []Item
	pages := 0
	err := d.api.ListPlaylistItems(ctx, playlistID, func(page []youtube.PlaylistItem) error {
		pages++
		logger.Debug().Int("page", pages).Int("items", len(page)).Msg("fetched page")

		start := len(items)
		var lookup []string
		for _, pi := range page {
			it := Item{
				Position:              len(items),
				VideoID:               pi.VideoID,
				AddedAt:               pi.AddedAt,
				PlaylistItemTitle:     pi.Title,
				PlaylistItemChannel:   pi.ChannelTitle,
				PlaylistItemChannelID: pi.ChannelID,
				PlaylistPrivacyStatus: pi.PrivacyStatus,
				Available:             true,
				Title:                 pi.Title,
			}
			if looksUnavailable(pi.Title) {
				it.Available = false
				it.ErrorReason = ReasonDeletedOrPrivate
			} else {
				lookup = append(lookup, pi.VideoID)
			}
			items = append(items, it)
		}
		if len(lookup) == 0 {
			return nil
		}

		details, err := d.api.VideoDetails(ctx, lookup)
		if err != nil {
			return fmt.Errorf("video details: %w", err)
		}
		for i := start; i < len(items); i++ {
			if !items[i].Available {
				continue
			}
			v, ok := details[items[i].VideoID]
			if !ok {
				items[i].Available = false
				items[i].ErrorReason = ReasonNotAccessible
				items[i].ChannelTitle = items[i].PlaylistItemChannel
				items[i].ChannelID = items[i].PlaylistItemChannelID
				continue
			}
			applyDetails(&items[i], v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dump playlist %s: %w", playlistID, err)
	}

	r := &Report{PlaylistID: playlistID, DumpDate: d.now(), TotalItems: len(items), Items: items}
	if r.Items == nil {
		r.Items = []Item{}
	}
	for _, it := range items {
		if it.Available {
			r.AvailableItems++
		} else {
			r.UnavailableItems++
		}
	}
	logger.Info().
		Int("total", r.TotalItems).
		Int("available", r.AvailableItems).
		Int("unavailable", r.UnavailableItems).
		Msg("playlist dumped")
	return r, nil
}

func looksUnavailable(title string) bool {
	return title == "" || title == "Deleted video" || title == "Private video"
}

func applyDetails(it *Item, v youtube.Video) {
	it.Title = v.Title
	it.ChannelTitle = v.ChannelTitle
	it.ChannelID = v.ChannelID
	if !v.PublishedAt.IsZero() {
		t := v.PublishedAt
		it.PublishedAt = &t
	}
	it.Description = truncate(v.Description, descriptionLimit)
	it.Duration = v.Duration
	it.PrivacyStatus = v.PrivacyStatus
	it.UploadStatus = v.UploadStatus
	views, likes := v.ViewCount, v.LikeCount
	it.ViewCount = &views
	it.LikeCount = &likes
	it.ThumbnailURL = v.ThumbnailURL
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

// WriteFile writes r as indented JSON, replacing path atomically.
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return storage.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// DefaultFileName is the output name for a dump taken at t.
func DefaultFileName(t time.Time) string {
	return "watch_later_dump_" + t.Format(time.DateOnly) + ".json"
}

// Summary prints totals, up to 10 unavailable items and the 5 most recently
// added available items.
func (r *Report) Summary(w io.Writer) {
	if r.TotalItems == 0 {
		fmt.Fprintln(w, "No items found in playlist")
		return
	}

	fmt.Fprintf(w, "Playlist %s summary\n%s\n", r.PlaylistID, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Total items: %d\n", r.TotalItems)
	fmt.Fprintf(w, "Available videos: %d\n", r.AvailableItems)
	fmt.Fprintf(w, "Unavailable videos: %d\n", r.UnavailableItems)

	var available, unavailable []Item
	for _, it := range r.Items {
		if it.Available {
			available = append(available, it)
		} else {
			unavailable = append(unavailable, it)
		}
	}

	if len(unavailable) > 0 {
		fmt.Fprintln(w, "\nUnavailable videos:")
		for _, it := range unavailable[:min(10, len(unavailable))] {
			fmt.Fprintf(w, "  Position %d: %s - %s\n", it.Position, orUnknown(it.Title), it.ErrorReason)
		}
		if n := len(unavailable) - 10; n > 0 {
			fmt.Fprintf(w, "  ... and %d more unavailable videos\n", n)
		}
	}
	if len(available) > 0 {
		fmt.Fprintln(w, "\nRecent available videos (last 5):")
		for _, it := range available[max(0, len(available)-5):] {
			fmt.Fprintf(w, "  Position %d: %s by %s\n", it.Position, it.Title, orUnknown(it.ChannelTitle))
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
