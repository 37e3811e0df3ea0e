// Package youtube talks to the YouTube Data API v3 and the public upload
// feeds: OAuth, quota-charged API calls, channel resolution and upload
// listing.
package youtube

import (
	"context"
	"sort"
	"time"

	"ytplsync/storage"
)

// VideoLister fetches a channel's uploads. Implementations differ in cost
// and depth: the RSS feed is free but shallow, the API is complete but paid.
type VideoLister interface {
	// ListVideos returns uploads of channelID, newest first.
	ListVideos(ctx context.Context, channelID string, opts *ListOptions) ([]VideoInfo, error)

	// SupportsFullHistory returns true if this lister can retrieve all videos,
	// not just recent ones.
	SupportsFullHistory() bool
}

// ListOptions configures video listing behavior.
type ListOptions struct {
	// Since drops videos published before it. Zero means no lower bound.
	Since time.Time

	// MaxResults limits the number of videos returned. 0 means no limit.
	MaxResults int
}

// VideoInfo contains metadata about an upload.
type VideoInfo struct {
	// ID is the YouTube video ID (e.g., "dQw4w9WgXcQ").
	ID    string `json:"id"`
	Title string `json:"title"`

	// ChannelID is the YouTube channel ID (e.g., "UCuAXFkgsw1L7xaCfnd5JJOw").
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	Published   time.Time `json:"published"`
}

// VideoURL returns the full YouTube URL for this video.
func (v VideoInfo) VideoURL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// ChannelURL returns the full YouTube URL for this video's channel.
func (v VideoInfo) ChannelURL() string {
	return "https://www.youtube.com/channel/" + v.ChannelID
}

// Cached converts v for the video cache.
func (v VideoInfo) Cached() storage.CachedVideo {
	return storage.CachedVideo{
		ID:           v.ID,
		Title:        v.Title,
		PublishedAt:  v.Published,
		ChannelID:    v.ChannelID,
		ChannelTitle: v.ChannelName,
	}
}

// VideoFromCache converts a cached upload back.
func VideoFromCache(c storage.CachedVideo) VideoInfo {
	return VideoInfo{
		ID:          c.ID,
		Title:       c.Title,
		ChannelID:   c.ChannelID,
		ChannelName: c.ChannelTitle,
		Published:   c.PublishedAt,
	}
}

// ListerError wraps listing errors with context about what failed.
// Use errors.As() to extract this error type and get operation details:
//
//	var listerErr *youtube.ListerError
//	if errors.As(err, &listerErr) {
//		fmt.Printf("Failed to list from %s: %v\n", listerErr.Source, listerErr.Err)
//	}
type ListerError struct {
	// Source indicates which lister produced the error ("rss", "api").
	Source string
	// Channel is the channel ID that was being listed.
	Channel string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the listing error.
func (e *ListerError) Error() string {
	return "youtube: " + e.Source + " listing " + e.Channel + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ListerError) Unwrap() error { return e.Err }

// filterVideos applies ListOptions filters to a newest-first list.
func filterVideos(videos []VideoInfo, opts *ListOptions) []VideoInfo {
	if opts == nil {
		return videos
	}

	if !opts.Since.IsZero() {
		filtered := make([]VideoInfo, 0, len(videos))
		for _, v := range videos {
			if !v.Published.Before(opts.Since) {
				filtered = append(filtered, v)
			}
		}
		videos = filtered
	}

	if opts.MaxResults > 0 && len(videos) > opts.MaxResults {
		videos = videos[:opts.MaxResults]
	}

	return videos
}

// sortNewestFirst orders videos by publish time, newest first, ID breaking ties.
func sortNewestFirst(videos []VideoInfo) {
	sort.SliceStable(videos, func(i, j int) bool {
		if !videos[i].Published.Equal(videos[j].Published) {
			return videos[i].Published.After(videos[j].Published)
		}
		return videos[i].ID < videos[j].ID
	})
}
