package youtube

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ytplsync/internal/log"
)

// uploadsLister is the part of Client the APILister needs.
type uploadsLister interface {
	ChannelByID(ctx context.Context, id string) (*Channel, error)
	ListPlaylistItems(ctx context.Context, playlistID string, fn func(page []PlaylistItem) error) error
}

// APILister implements VideoLister over a channel's uploads playlist.
// It costs one unit for the channel lookup plus one per page of 50.
type APILister struct {
	api uploadsLister
	log zerolog.Logger
}

// NewAPILister creates a Data API backed lister.
func NewAPILister(client *Client) *APILister {
	return &APILister{api: client, log: log.WithComponent("api-lister")}
}

// ListVideos pages through the uploads playlist, newest first. Paging stops
// once every dated item of a page is older than opts.Since: the uploads playlist is in
// reverse upload order, so later pages hold nothing newer.
func (a *APILister) ListVideos(ctx context.Context, channelID string, opts *ListOptions) ([]VideoInfo, error) {
	ch, err := a.api.ChannelByID(ctx, channelID)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channelID, Err: err}
	}
	if ch.UploadsPlaylistID == "" {
		return nil, &ListerError{Source: "api", Channel: channelID, Err: ErrPlaylistNotFound}
	}

	since := opts.sinceOrZero()
	var videos []VideoInfo
	pages := 0

	err = a.api.ListPlaylistItems(ctx, ch.UploadsPlaylistID, func(page []PlaylistItem) error {
		pages++
		newer, older := 0, 0
		for _, item := range page {
			// deleted and private uploads have no publish date
			if item.VideoPublishedAt.IsZero() || item.VideoID == "" {
				continue
			}
			if !since.IsZero() && item.VideoPublishedAt.Before(since) {
				older++
				continue
			}
			newer++
			title := item.ChannelTitle
			if title == "" {
				title = ch.Title
			}
			videos = append(videos, VideoInfo{
				ID:          item.VideoID,
				Title:       item.Title,
				ChannelID:   channelID,
				ChannelName: title,
				Published:   item.VideoPublishedAt,
			})
		}

		if opts != nil && opts.MaxResults > 0 && len(videos) >= opts.MaxResults {
			return ErrStopPaging
		}
		// undated items say nothing about where the window ends
		if !since.IsZero() && newer == 0 && older > 0 {
			return ErrStopPaging
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPlaylistNotFound) {
			// channels without uploads have no uploads playlist to read
			return nil, nil
		}
		return nil, &ListerError{Source: "api", Channel: channelID, Err: err}
	}

	sortNewestFirst(videos)
	videos = filterVideos(videos, opts)

	a.log.Debug().
		Str(log.FieldChannel, channelID).
		Int("pages", pages).
		Int("videos", len(videos)).
		Msg("listed uploads")
	return videos, nil
}

// SupportsFullHistory returns true: the uploads playlist holds every upload.
func (a *APILister) SupportsFullHistory() bool {
	return true
}

func (o *ListOptions) sinceOrZero() time.Time {
	if o == nil {
		return time.Time{}
	}
	return o.Since
}
