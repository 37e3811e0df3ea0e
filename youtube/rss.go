package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	ythttp "ytplsync/http"
)

const (
	// DefaultFeedURL is the public upload feed endpoint.
	DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"
	// FeedSize is how many uploads the feed carries.
	FeedSize = 15
)

// feedGetter is the part of ythttp.Client the RSS lister needs.
type feedGetter interface {
	Get(ctx context.Context, url string) (*ythttp.Response, error)
}

// RSSLister implements VideoLister using YouTube's RSS/Atom feeds.
// RSS feeds only return the 15 most recent videos and cost no quota, so this
// is best suited for incremental runs.
type RSSLister struct {
	client  feedGetter
	feedURL string
}

// NewRSSLister creates a feed lister on top of the shared HTTP client, which
// supplies pacing and retries.
func NewRSSLister(client *ythttp.Client) *RSSLister {
	return &RSSLister{client: client, feedURL: DefaultFeedURL}
}

// SetFeedURL points the lister at another feed endpoint.
func (r *RSSLister) SetFeedURL(u string) { r.feedURL = u }

// ListVideos fetches the feed of channelID.
func (r *RSSLister) ListVideos(ctx context.Context, channelID string, opts *ListOptions) ([]VideoInfo, error) {
	feed, err := r.fetch(ctx, channelID)
	if err != nil {
		return nil, err
	}
	videos := feedToVideoInfo(feed, channelID)
	sortNewestFirst(videos)
	return filterVideos(videos, opts), nil
}

// SupportsFullHistory returns false - RSS only provides the 15 most recent videos.
func (r *RSSLister) SupportsFullHistory() bool {
	return false
}

// FeedResult is the outcome of reading a feed against a lower bound.
type FeedResult struct {
	// Videos are the uploads published at or after the bound, newest first.
	Videos       []VideoInfo
	ChannelTitle string
	// NewestTimestamp is the published time of the most recent video in the feed.
	NewestTimestamp time.Time
	// OldestTimestamp is the published time of the oldest video in the feed.
	OldestTimestamp time.Time
	// GapDetected is true when the feed is full and its oldest entry is newer
	// than the bound: uploads may have scrolled off the feed.
	GapDetected bool
	// TotalInFeed is the total number of videos in the feed.
	TotalInFeed int
}

// Complete reports whether the feed holds every upload since the bound.
func (r *FeedResult) Complete() bool {
	return r != nil && !r.GapDetected
}

// ListSince reads the feed and reports whether it covers everything
// published since since. A zero since asks for the full history, which a
// full feed cannot provide.
func (r *RSSLister) ListSince(ctx context.Context, channelID string, since time.Time) (*FeedResult, error) {
	feed, err := r.fetch(ctx, channelID)
	if err != nil {
		return nil, err
	}
	videos := feedToVideoInfo(feed, channelID)

	res := &FeedResult{
		ChannelTitle: feed.Author.Name,
		TotalInFeed:  len(videos),
	}
	for i, v := range videos {
		if i == 0 || v.Published.After(res.NewestTimestamp) {
			res.NewestTimestamp = v.Published
		}
		if i == 0 || v.Published.Before(res.OldestTimestamp) {
			res.OldestTimestamp = v.Published
		}
	}

	// A feed shorter than FeedSize is the channel's whole history.
	if len(videos) >= FeedSize {
		res.GapDetected = since.IsZero() || res.OldestTimestamp.After(since)
	}

	sortNewestFirst(videos)
	res.Videos = filterVideos(videos, &ListOptions{Since: since})
	return res, nil
}

func (r *RSSLister) fetch(ctx context.Context, channelID string) (*atomFeed, error) {
	if !IsChannelID(channelID) {
		return nil, &ListerError{Source: "rss", Channel: channelID,
			Err: fmt.Errorf("%w: %q is not a channel ID", ErrInvalidURL, channelID)}
	}

	feedURL := r.feedURL + "?channel_id=" + url.QueryEscape(channelID)
	resp, err := r.client.Get(ctx, feedURL)
	if err != nil {
		var rateErr *ythttp.RateLimitError
		switch {
		case ythttp.IsNotFound(err):
			err = ErrChannelNotFound
		case errors.As(err, &rateErr):
			err = fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, &ListerError{Source: "rss", Channel: channelID, Err: err}
	}

	feed, err := parseAtomFeed(resp.Body)
	if err != nil {
		return nil, &ListerError{Source: "rss", Channel: channelID, Err: err}
	}
	return feed, nil
}

// atomFeed represents a YouTube Atom feed structure.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Author  atomAuthor  `xml:"author"`
	Entries []atomEntry `xml:"entry"`
}

type atomAuthor struct {
	Name string `xml:"name"`
	URI  string `xml:"uri"`
}

type atomEntry struct {
	ID        string    `xml:"id"`
	VideoID   string    `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID string    `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title     string    `xml:"title"`
	Published time.Time `xml:"published"`
	Updated   time.Time `xml:"updated"`
}

// parseAtomFeed parses YouTube's Atom XML feed.
func parseAtomFeed(data []byte) (*atomFeed, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse atom feed: %w", err)
	}
	return &feed, nil
}

// feedToVideoInfo converts an Atom feed to VideoInfo slice.
func feedToVideoInfo(feed *atomFeed, channelID string) []VideoInfo {
	videos := make([]VideoInfo, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.VideoID == "" {
			continue
		}
		videos = append(videos, VideoInfo{
			ID:          entry.VideoID,
			Title:       entry.Title,
			ChannelID:   channelID,
			ChannelName: feed.Author.Name,
			Published:   entry.Published.UTC(),
		})
	}
	return videos
}

// channelIDRegex matches YouTube channel IDs (UC followed by 22 base64 chars).
var channelIDRegex = regexp.MustCompile(`^UC[a-zA-Z0-9_-]{22}$`)

// IsChannelID reports whether s is a bare channel ID.
func IsChannelID(s string) bool {
	return channelIDRegex.MatchString(strings.TrimSpace(s))
}
