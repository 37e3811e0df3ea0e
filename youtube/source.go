package youtube

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ytplsync/internal/log"
	"ytplsync/storage"
)

// Upload sources reported in Uploads.Source.
const (
	SourceCache = "cache"
	SourceRSS   = "rss"
	SourceAPI   = "api"
)

// Uploads is a channel's upload list since a bound.
type Uploads struct {
	ChannelID    string
	ChannelTitle string
	// Videos are newest first.
	Videos []VideoInfo
	Source string
}

// feedLister is the part of RSSLister the source needs.
type feedLister interface {
	ListSince(ctx context.Context, channelID string, since time.Time) (*FeedResult, error)
}

// SourceOptions configures an UploadSource.
type SourceOptions struct {
	// CacheTTL is how long a cached upload list is reused. 0 disables reuse.
	CacheTTL time.Duration
	// RSS enables the free feed when non-nil.
	RSS *RSSLister
	// ForceRefresh skips the cache, still writing fresh results back.
	ForceRefresh bool
}

// cacheHeadOverlap is how far before a cache entry's fetch time the head
// refresh reaches, so uploads whose publish time lags their appearance in
// listings are still picked up.
const cacheHeadOverlap = 24 * time.Hour

// UploadSource returns a channel's uploads, trying the cheapest source that
// can answer. A fresh cache entry covering the window answers the older part
// of it; uploads newer than the entry are always fetched, from the RSS feed
// when it shows no gap and from the Data API otherwise. Feed and API results
// are written back to the cache.
type UploadSource struct {
	cache        storage.VideoCacheStore
	api          VideoLister
	rss          feedLister
	ttl          time.Duration
	forceRefresh bool
	now          func() time.Time
	log          zerolog.Logger
}

// NewUploadSource creates a source. cache may be nil.
func NewUploadSource(cache storage.VideoCacheStore, api VideoLister, opts SourceOptions) *UploadSource {
	s := &UploadSource{
		cache:        cache,
		api:          api,
		ttl:          opts.CacheTTL,
		forceRefresh: opts.ForceRefresh,
		now:          time.Now,
		log:          log.WithComponent("uploads"),
	}
	if opts.RSS != nil {
		s.rss = opts.RSS
	}
	return s
}

// Uploads returns uploads of channelID published at or after since. A zero
// since asks for the whole history.
func (s *UploadSource) Uploads(ctx context.Context, channelID string, since time.Time) (*Uploads, error) {
	logger := s.log.With().Str(log.FieldChannel, channelID).Logger()

	if !s.forceRefresh && s.cache != nil {
		entry, err := s.cache.ChannelVideos(ctx, channelID)
		switch {
		case err == nil && entry.Fresh(s.now(), s.ttl) && entry.Covers(since):
			return s.refreshHead(ctx, channelID, entry, since)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			logger.Warn().Err(err).Msg("video cache read failed")
		}
	}

	out, err := s.fetch(ctx, channelID, since)
	if err != nil {
		return nil, err
	}
	s.store(ctx, out, since)
	return out, nil
}

// refreshHead serves the window from a cached entry after fetching the
// uploads published since the entry was taken, and writes the merged list
// back with the entry's original bound.
func (s *UploadSource) refreshHead(ctx context.Context, channelID string, entry *storage.ChannelVideos, since time.Time) (*Uploads, error) {
	head := entry.FetchedAt.Add(-cacheHeadOverlap)
	if head.Before(since) {
		head = since
	}
	if head.Before(entry.Since) {
		head = entry.Since
	}

	fresh, err := s.fetch(ctx, channelID, head)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(fresh.Videos)+len(entry.Videos))
	merged := make([]VideoInfo, 0, len(fresh.Videos)+len(entry.Videos))
	for _, v := range fresh.Videos {
		if !seen[v.ID] {
			seen[v.ID] = true
			merged = append(merged, v)
		}
	}
	for _, c := range entry.Videos {
		if !seen[c.ID] {
			seen[c.ID] = true
			merged = append(merged, VideoFromCache(c))
		}
	}
	sortNewestFirst(merged)

	title := fresh.ChannelTitle
	if title == "" {
		title = entry.Title()
	}
	all := &Uploads{ChannelID: channelID, ChannelTitle: title, Videos: merged, Source: fresh.Source}
	s.store(ctx, all, entry.Since)

	videos := filterVideos(merged, &ListOptions{Since: since})
	s.log.Debug().
		Str(log.FieldChannel, channelID).
		Int("videos", len(videos)).
		Int("new", len(fresh.Videos)).
		Str("head_source", fresh.Source).
		Msg("using cached uploads")
	return &Uploads{ChannelID: channelID, ChannelTitle: title, Videos: videos, Source: SourceCache}, nil
}

// fetch lists uploads since the bound from the feed, falling back to the API.
func (s *UploadSource) fetch(ctx context.Context, channelID string, since time.Time) (*Uploads, error) {
	logger := s.log.With().Str(log.FieldChannel, channelID).Logger()

	if s.rss != nil {
		res, err := s.rss.ListSince(ctx, channelID, since)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn().Err(err).Msg("rss feed failed, falling back to api")
		case res.GapDetected:
			logger.Info().Time("feed_oldest", res.OldestTimestamp).Msg("rss feed does not reach back far enough, using api")
		default:
			logger.Debug().Int("videos", len(res.Videos)).Msg("uploads from rss")
			return &Uploads{ChannelID: channelID, ChannelTitle: res.ChannelTitle, Videos: res.Videos, Source: SourceRSS}, nil
		}
	}

	if s.api == nil {
		return nil, &ListerError{Source: SourceAPI, Channel: channelID, Err: errors.New("no api lister configured")}
	}
	videos, err := s.api.ListVideos(ctx, channelID, &ListOptions{Since: since})
	if err != nil {
		return nil, err
	}
	out := &Uploads{ChannelID: channelID, Videos: videos, Source: SourceAPI}
	if len(videos) > 0 {
		out.ChannelTitle = videos[0].ChannelName
	}
	logger.Debug().Int("videos", len(videos)).Msg("uploads from api")
	return out, nil
}

func (s *UploadSource) store(ctx context.Context, u *Uploads, since time.Time) {
	if s.cache == nil {
		return
	}
	entry := &storage.ChannelVideos{
		ChannelID:    u.ChannelID,
		ChannelTitle: u.ChannelTitle,
		Since:        since,
		FetchedAt:    s.now(),
		Source:       u.Source,
		Videos:       make([]storage.CachedVideo, 0, len(u.Videos)),
	}
	for _, v := range u.Videos {
		entry.Videos = append(entry.Videos, v.Cached())
	}
	if err := s.cache.PutChannelVideos(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str(log.FieldChannel, u.ChannelID).Msg("failed to cache uploads")
	}
}
