package playlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	ythttp "ytplsync/http"
	"ytplsync/internal/log"
	"ytplsync/internal/retry"
	"ytplsync/quota"
	"ytplsync/storage"
	"ytplsync/youtube"
)

// API is the part of the Data API client the syncer calls.
type API interface {
	FindPlaylist(ctx context.Context, title string) (*youtube.Playlist, error)
	CreatePlaylist(ctx context.Context, title, description, privacy string) (*youtube.Playlist, error)
	ListPlaylistItems(ctx context.Context, playlistID string, fn func(page []youtube.PlaylistItem) error) error
	InsertPlaylistItem(ctx context.Context, playlistID, videoID string, position *int64) (string, error)
	MyChannel(ctx context.Context) (*youtube.Channel, error)
}

// Resolver maps a channel input to a channel ID.
type Resolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

// Source returns a channel's uploads published at or after since.
type Source interface {
	Uploads(ctx context.Context, channelID string, since time.Time) (*youtube.Uploads, error)
}

// Store persists run history and quota usage.
type Store interface {
	storage.HistoryStore
	storage.QuotaLedger
}

// Config controls insert pacing.
type Config struct {
	InsertInterval time.Duration
	LongPauseEvery int
	LongPause      time.Duration
	// InsertTimeout bounds an insert that keeps running after cancellation.
	InsertTimeout time.Duration
	ProgressEvery int
}

// DefaultConfig returns the pacing used against the live API.
func DefaultConfig() Config {
	return Config{
		InsertInterval: 200 * time.Millisecond,
		LongPauseEvery: 10,
		LongPause:      time.Second,
		InsertTimeout:  30 * time.Second,
		ProgressEvery:  10,
	}
}

// Syncer adds channel uploads to a playlist.
type Syncer struct {
	api      API
	resolver Resolver
	source   Source
	store    Store
	quota    *quota.Tracker
	cfg      Config
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	log      zerolog.Logger
}

// NewSyncer wires a syncer. store may be nil, in which case nothing is
// persisted.
func NewSyncer(api API, resolver Resolver, source Source, store Store, tracker *quota.Tracker, cfg Config) *Syncer {
	if tracker == nil {
		tracker = quota.NewTracker(quota.DefaultDailyLimit, 0)
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = DefaultConfig().InsertTimeout
	}
	return &Syncer{
		api:      api,
		resolver: resolver,
		source:   source,
		store:    store,
		quota:    tracker,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepContext,
		log:      log.WithComponent("playlist"),
	}
}

// SetLogger replaces the syncer's logger.
func (s *Syncer) SetLogger(l zerolog.Logger) {
	s.log = l
}

// Sync runs one sync. Interruption and quota exhaustion are not errors: they
// end the run early and are reported in Result.Stop. The returned Result is
// non-nil whenever the options were valid.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync options: %w", err)
	}

	res := &Result{
		RunID:         uuid.NewString(),
		PlaylistID:    opts.PlaylistID,
		PlaylistTitle: opts.Title,
		DryRun:        opts.DryRun,
		StartedAt:     s.now(),
	}
	logger := s.log.With().Str(log.FieldRun, res.RunID).Logger()

	// persistence must survive cancellation of the run
	bg := context.WithoutCancel(ctx)
	if s.store != nil {
		if err := s.quota.Load(bg, s.store); err != nil {
			logger.Warn().Err(err).Msg("could not load quota ledger, counting from zero")
		}
	}
	usedAtStart := s.quota.Used()
	history := s.history(bg, opts, logger)

	err := s.run(ctx, opts, res, history, logger)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.Stop = StopInterrupted
		err = nil
	case isQuotaError(err):
		res.Stop = StopQuota
		err = nil
	default:
		res.Stop = StopFailed
	}

	res.FinishedAt = s.now()
	res.Remaining = res.Candidates - res.Added - len(res.Failed)
	res.QuotaUsed = s.quota.Used() - usedAtStart
	res.QuotaLeft = s.quota.Remaining()
	s.persist(bg, opts, res, history, err, logger)

	logger.Info().
		Str(log.FieldPlaylist, res.PlaylistID).
		Str("stop", string(res.Stop)).
		Int("added", res.Added).
		Int("failed", len(res.Failed)).
		Int("remaining", res.Remaining).
		Int("quota_used", res.QuotaUsed).
		Msg("sync finished")
	return res, err
}

func (s *Syncer) run(ctx context.Context, opts Options, res *Result, history *storage.PlaylistHistory, logger zerolog.Logger) error {
	pl, created, err := s.targetPlaylist(ctx, opts)
	if err != nil {
		return err
	}
	if pl != nil {
		res.PlaylistID = pl.ID
		if res.PlaylistTitle == "" {
			res.PlaylistTitle = pl.Title
		}
		res.Created = created
		logger = logger.With().Str(log.FieldPlaylist, pl.ID).Logger()
	}

	existing := make(map[string]struct{})
	var contents Contents
	if pl != nil && !created {
		err := s.api.ListPlaylistItems(ctx, pl.ID, func(page []youtube.PlaylistItem) error {
			for _, item := range page {
				existing[item.VideoID] = struct{}{}
				contents.Observe(item)
			}
			return nil
		})
		if err != nil {
			// an incomplete set would make us pay for duplicate inserts
			return fmt.Errorf("list existing playlist items: %w", err)
		}
	}
	res.Existing = contents.Count

	res.Cutoff = CutoffFor(opts, contents, history, s.now())
	logger.Info().Int("existing", contents.Count).Str("cutoff", res.Cutoff.String()).Msg("playlist loaded")

	var watched map[string]struct{}
	if opts.SkipWatched {
		watched = s.watched(ctx, logger)
	}

	videos, cut := s.collect(ctx, opts.Channels, res, logger)
	res.Found = len(videos)

	candidates := filter(videos, existing, watched, res.Cutoff, &res.Skipped)
	res.Candidates = len(candidates)
	logger.Info().Int("found", res.Found).Int("candidates", res.Candidates).Msg("candidates selected")

	if opts.DryRun {
		res.Planned = candidates
		res.Stop = StopCompleted
		if cut != "" {
			res.Stop = cut
		}
		return nil
	}
	if pl == nil {
		return errors.New("no target playlist")
	}

	res.Stop, err = s.insert(ctx, pl.ID, candidates, res, logger)
	if err != nil {
		return err
	}
	if res.Stop == StopCompleted && cut != "" {
		res.Stop = cut
	}
	return nil
}

func (s *Syncer) targetPlaylist(ctx context.Context, opts Options) (*youtube.Playlist, bool, error) {
	if opts.PlaylistID != "" {
		return &youtube.Playlist{ID: opts.PlaylistID, Title: opts.Title}, false, nil
	}
	if !opts.ForceNew {
		pl, err := s.api.FindPlaylist(ctx, opts.Title)
		switch {
		case err == nil:
			return pl, false, nil
		case !errors.Is(err, youtube.ErrPlaylistNotFound):
			return nil, false, fmt.Errorf("find playlist %q: %w", opts.Title, err)
		}
	}
	if opts.DryRun {
		return nil, false, nil
	}

	pl, err := s.api.CreatePlaylist(ctx, opts.Title, description(opts.Channels, s.now()), opts.Privacy)
	if err != nil {
		return nil, false, fmt.Errorf("create playlist %q: %w", opts.Title, err)
	}
	s.log.Info().Str(log.FieldPlaylist, pl.ID).Str("title", pl.Title).Msg("created playlist")
	return pl, true, nil
}

func description(channels []string, now time.Time) string {
	return fmt.Sprintf("Videos from channels: %s\nCreated on %s",
		strings.Join(channels, ", "), now.Format(time.DateTime))
}

// watched returns the IDs in the Liked and Watch Later playlists. Lists that
// cannot be read are skipped with a warning.
func (s *Syncer) watched(ctx context.Context, logger zerolog.Logger) map[string]struct{} {
	set := make(map[string]struct{})
	lists := []string{youtube.WatchLaterID}

	me, err := s.api.MyChannel(ctx)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("could not look up liked videos")
	case me.LikesPlaylistID != "":
		lists = append([]string{me.LikesPlaylistID}, lists...)
	}

	for _, id := range lists {
		err := s.api.ListPlaylistItems(ctx, id, func(page []youtube.PlaylistItem) error {
			for _, item := range page {
				set[item.VideoID] = struct{}{}
			}
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPlaylist, id).Msg("could not read watched videos")
		}
	}
	logger.Debug().Int("watched", len(set)).Msg("watched videos loaded")
	return set
}

// collect gathers uploads of every channel. Channels that cannot be resolved
// or fetched are recorded in res.Unresolved. Collection ends early on
// cancellation or quota exhaustion, returning what was gathered so far and
// the reason it was cut short.
func (s *Syncer) collect(ctx context.Context, inputs []string, res *Result, logger zerolog.Logger) ([]youtube.VideoInfo, StopReason) {
	since := res.Cutoff.FetchSince()
	var out []youtube.VideoInfo

	for _, input := range inputs {
		if ctx.Err() != nil {
			logger.Info().Msg("interrupted while collecting uploads")
			return out, StopInterrupted
		}

		id, err := s.resolver.Resolve(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return out, StopInterrupted
			}
			res.Unresolved = append(res.Unresolved, ChannelError{Input: input, Err: err})
			logger.Warn().Err(err).Str("channel", input).Msg("could not resolve channel")
			if isQuotaError(err) {
				return out, StopQuota
			}
			continue
		}

		up, err := s.source.Uploads(ctx, id, since)
		if err != nil {
			if ctx.Err() != nil {
				return out, StopInterrupted
			}
			res.Unresolved = append(res.Unresolved, ChannelError{Input: input, ChannelID: id, Err: err})
			logger.Warn().Err(err).Str(log.FieldChannel, id).Msg("could not fetch uploads")
			if isQuotaError(err) {
				return out, StopQuota
			}
			continue
		}

		logger.Info().
			Str(log.FieldChannel, id).
			Str("title", up.ChannelTitle).
			Str("source", up.Source).
			Int("videos", len(up.Videos)).
			Msg("uploads fetched")
		out = append(out, up.Videos...)
	}
	return out, ""
}

// filter drops duplicates and videos that are present, watched or outside the
// window, then orders the rest oldest first.
func filter(videos []youtube.VideoInfo, existing, watched map[string]struct{}, c Cutoff, skipped *Skipped) []youtube.VideoInfo {
	seen := make(map[string]struct{}, len(videos))
	var out []youtube.VideoInfo
	for _, v := range videos {
		if _, ok := seen[v.ID]; ok {
			skipped.Duplicate++
			continue
		}
		seen[v.ID] = struct{}{}

		if _, ok := existing[v.ID]; ok {
			skipped.Existing++
			continue
		}
		if _, ok := watched[v.ID]; ok {
			skipped.Watched++
			continue
		}
		if c.TooOld(v.Published) {
			skipped.TooOld++
			continue
		}
		if c.TooNew(v.Published) {
			skipped.TooNew++
			continue
		}
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Published.Equal(out[j].Published) {
			return out[i].Published.Before(out[j].Published)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// insert adds candidates in order. A per-video refusal is recorded and the
// loop goes on; an outage of the API host ends the run with an error so the
// untried videos stay in Remaining.
func (s *Syncer) insert(ctx context.Context, playlistID string, candidates []youtube.VideoInfo, res *Result, logger zerolog.Logger) (StopReason, error) {
	p := newPacer(s.cfg, s.sleep)

	for i, v := range candidates {
		if ctx.Err() != nil {
			return StopInterrupted, nil
		}
		if !s.quota.CanAfford(quota.CostInsert) {
			logger.Warn().Int("remaining", len(candidates)-i).Msg("quota budget exhausted")
			return StopQuota, nil
		}
		if err := p.Wait(ctx); err != nil {
			return StopInterrupted, nil
		}

		// an insert already sent is allowed to finish
		insCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.InsertTimeout)
		_, err := s.api.InsertPlaylistItem(insCtx, playlistID, v.ID, nil)
		cancel()
		p.Done()

		switch {
		case err == nil:
			res.Added++
			logger.Debug().Str(log.FieldVideo, v.ID).Str("title", v.Title).Msg("added")
		case isQuotaError(err):
			logger.Warn().Err(err).Str(log.FieldVideo, v.ID).Msg("quota exceeded")
			return StopQuota, nil
		case isOutage(err):
			logger.Error().Err(err).Str(log.FieldVideo, v.ID).Int("remaining", len(candidates)-i).Msg("api unavailable, stopping")
			return StopFailed, fmt.Errorf("insert %s: %w", v.ID, err)
		default:
			res.Failed = append(res.Failed, FailedVideo{
				VideoID:     v.ID,
				Title:       v.Title,
				Unavailable: errors.Is(err, youtube.ErrVideoUnavailable),
				Err:         err,
			})
			logger.Warn().Err(err).Str(log.FieldVideo, v.ID).Msg("insert failed")
		}

		if n := i + 1; s.cfg.ProgressEvery > 0 && n%s.cfg.ProgressEvery == 0 {
			logger.Info().
				Int("done", n).
				Int("total", len(candidates)).
				Int("added", res.Added).
				Int("quota_left", s.quota.Remaining()).
				Msg("progress")
		}
	}
	return StopCompleted, nil
}

func (s *Syncer) history(ctx context.Context, opts Options, logger zerolog.Logger) *storage.PlaylistHistory {
	if s.store == nil {
		return nil
	}
	h, err := s.store.PlaylistHistory(ctx, opts.historyKey())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Msg("could not read playlist history")
		}
		return nil
	}
	return h
}

func (s *Syncer) persist(ctx context.Context, opts Options, res *Result, history *storage.PlaylistHistory, runErr error, logger zerolog.Logger) {
	if s.store == nil {
		return
	}
	if !res.DryRun {
		h := history
		if h == nil {
			h = &storage.PlaylistHistory{Title: opts.historyKey()}
		}
		if res.PlaylistID != "" {
			h.PlaylistID = res.PlaylistID
		}
		h.Channels = append([]string(nil), opts.Channels...)

		rec := storage.RunRecord{
			ID:         res.RunID,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Cutoff:     res.Cutoff.After,
			Added:      res.Added,
			Failed:     len(res.Failed),
			Remaining:  res.Remaining,
			QuotaUsed:  res.QuotaUsed,
			Status:     res.Stop.status(),
		}
		if runErr != nil {
			rec.Error = runErr.Error()
		}
		h.AddRun(rec)
		if err := s.store.PutPlaylistHistory(ctx, h); err != nil {
			logger.Warn().Err(err).Msg("could not save run history")
		}
	}
	if err := s.quota.Save(ctx, s.store); err != nil {
		logger.Warn().Err(err).Msg("could not save quota ledger")
	}
}

func isQuotaError(err error) bool {
	return errors.Is(err, youtube.ErrQuotaExceeded) || errors.Is(err, youtube.ErrQuotaBudget)
}

// isOutage reports errors that say nothing about the video: the host's
// circuit is open or every retry of a transient failure was spent.
func isOutage(err error) bool {
	var exhausted *retry.ExhaustedError
	return errors.Is(err, ythttp.ErrCircuitOpen) || errors.As(err, &exhausted)
}
