package storage

import (
	"sort"
	"strings"
	"time"
)

// MaxRunRecords is how many runs are kept per playlist history.
const MaxRunRecords = 20

// CachedVideo is one upload stored in the video cache.
type CachedVideo struct {
	// ID is the YouTube video ID (e.g., "dQw4w9WgXcQ").
	ID           string    `json:"video_id"`
	Title        string    `json:"title"`
	PublishedAt  time.Time `json:"published_at"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title,omitempty"`
}

// ChannelVideos is the cached upload list of one channel.
type ChannelVideos struct {
	ChannelID    string `json:"channel_id"`
	ChannelTitle string `json:"channel_title,omitempty"`
	// Since is the lower bound the uploads were fetched with. Zero means the
	// whole upload history was fetched.
	Since     time.Time `json:"since,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
	// Source is the lister that produced the entry ("api" or "rss").
	Source string        `json:"source,omitempty"`
	Videos []CachedVideo `json:"videos"`
}

// Fresh reports whether the entry is younger than ttl.
func (c *ChannelVideos) Fresh(now time.Time, ttl time.Duration) bool {
	if c == nil || ttl <= 0 {
		return false
	}
	return now.Sub(c.FetchedAt) < ttl
}

// Covers reports whether the entry holds every upload published after since.
// A zero since asks for the whole history.
func (c *ChannelVideos) Covers(since time.Time) bool {
	if c == nil {
		return false
	}
	if c.Since.IsZero() {
		return true
	}
	if since.IsZero() {
		return false
	}
	return !c.Since.After(since)
}

// Title returns the channel title, falling back to the first video's.
func (c *ChannelVideos) Title() string {
	if c.ChannelTitle != "" {
		return c.ChannelTitle
	}
	for _, v := range c.Videos {
		if v.ChannelTitle != "" {
			return v.ChannelTitle
		}
	}
	return ""
}

// RunStatus is the outcome of a sync run.
type RunStatus string

const (
	// RunCompleted means every candidate was attempted.
	RunCompleted RunStatus = "completed"
	// RunInterrupted means the user stopped the run.
	RunInterrupted RunStatus = "interrupted"
	// RunQuota means the daily quota ran out.
	RunQuota RunStatus = "quota"
	// RunFailed means the run aborted with an error.
	RunFailed RunStatus = "failed"
)

// RunRecord is one sync run against a playlist.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Cutoff     time.Time `json:"cutoff,omitempty"`
	Added      int       `json:"added"`
	Failed     int       `json:"failed"`
	Remaining  int       `json:"remaining"`
	QuotaUsed  int       `json:"quota_used"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// PlaylistHistory tracks runs against one target playlist, keyed by title.
type PlaylistHistory struct {
	Title      string `json:"title"`
	PlaylistID string `json:"playlist_id,omitempty"`
	// LastRun is the start of the most recent completed run.
	LastRun  time.Time   `json:"last_run,omitempty"`
	Channels []string    `json:"channels,omitempty"`
	Runs     []RunRecord `json:"runs,omitempty"`
}

// AddRun appends r, keeping the newest MaxRunRecords. LastRun only moves
// forward for completed runs so an interrupted run is retried in full.
func (h *PlaylistHistory) AddRun(r RunRecord) {
	h.Runs = append(h.Runs, r)
	if len(h.Runs) > MaxRunRecords {
		h.Runs = append([]RunRecord(nil), h.Runs[len(h.Runs)-MaxRunRecords:]...)
	}
	if r.Status == RunCompleted && r.StartedAt.After(h.LastRun) {
		h.LastRun = r.StartedAt
	}
}

// LastCompleted returns the newest completed run.
func (h *PlaylistHistory) LastCompleted() (RunRecord, bool) {
	if h == nil {
		return RunRecord{}, false
	}
	for i := len(h.Runs) - 1; i >= 0; i-- {
		if h.Runs[i].Status == RunCompleted {
			return h.Runs[i], true
		}
	}
	return RunRecord{}, false
}

// IsCommentKey reports whether a channel mapping key is a comment. Such keys
// are kept in the file for the user but never used for lookups.
func IsCommentKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// MappingsFromVideoCache derives title → channel ID mappings from cached uploads.
func MappingsFromVideoCache(entries []*ChannelVideos) map[string]string {
	out := make(map[string]string)
	for _, e := range entries {
		if e == nil || len(e.Videos) == 0 {
			continue
		}
		if title := e.Title(); title != "" {
			out[title] = e.ChannelID
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
