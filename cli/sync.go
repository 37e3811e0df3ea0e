package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"ytplsync/playlist"
	"ytplsync/youtube"
)

type syncFlags struct {
	title        string
	playlistID   string
	since        string
	until        string
	maxAge       string
	watermark    bool
	full         bool
	skipWatched  bool
	forceNew     bool
	forceRefresh bool
	rss          bool
	dryRun       bool
	privacy      string
}

func newSyncCmd(a *app) *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync CHANNEL...",
		Short: "Add new uploads of the given channels to a playlist",
		Long: `Add new uploads of the given channels to a playlist.

Channels may be given as IDs, channel URLs, @handles or names. By default
only videos newer than the newest one already in the playlist are added;
--watermark fills in everything newer than the oldest one and --full
applies no date bound.`,
		Example: `  ytplsync sync @veritasium @3blue1brown -t "Science"
  ytplsync sync UCsXVk37bltHxD1rDPwtNM8Q -t "Kurzgesagt" --since 2024-01-01 --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(a, args)
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), a, opts, f.forceRefresh, f.rss)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.title, "title", "t", "", "target playlist title")
	fl.StringVar(&f.playlistID, "playlist-id", "", "target an existing playlist by ID")
	fl.StringVar(&f.since, "since", "", "minimum publish date (YYYY-MM-DD), overrides the mode")
	fl.StringVar(&f.until, "until", "", "maximum publish date (YYYY-MM-DD, inclusive)")
	fl.StringVar(&f.maxAge, "max-age", "", "never add videos older than this (e.g. 14d)")
	fl.BoolVar(&f.watermark, "watermark", false, "add everything newer than the oldest video in the playlist")
	fl.BoolVar(&f.full, "full", false, "add all uploads regardless of date")
	fl.BoolVar(&f.skipWatched, "skip-watched", false, "skip videos in your Liked and Watch Later playlists")
	fl.BoolVar(&f.forceNew, "force-new-playlist", false, "create a new playlist even if one with the title exists")
	fl.BoolVar(&f.forceRefresh, "force-refresh", false, "ignore cached channel uploads")
	fl.BoolVar(&f.rss, "rss", false, "try the quota-free RSS feed before the Data API")
	fl.BoolVar(&f.dryRun, "dry-run", false, "show what would be added without changing anything")
	fl.StringVar(&f.privacy, "privacy", "", "privacy of a created playlist (private, unlisted, public)")
	cmd.MarkFlagsMutuallyExclusive("watermark", "full")
	cmd.MarkFlagsOneRequired("title", "playlist-id")
	return cmd
}

func (f *syncFlags) options(a *app, channels []string) (playlist.Options, error) {
	since, err := parseDate(f.since)
	if err != nil {
		return playlist.Options{}, err
	}
	until, err := parseDate(f.until)
	if err != nil {
		return playlist.Options{}, err
	}
	maxAge := a.cfg.MaxAge
	if f.maxAge != "" {
		if maxAge, err = parseAge(f.maxAge); err != nil {
			return playlist.Options{}, err
		}
	}

	mode := playlist.ModeIncremental
	switch {
	case f.watermark:
		mode = playlist.ModeWatermark
	case f.full:
		mode = playlist.ModeFull
	}

	privacy := f.privacy
	if privacy == "" {
		privacy = a.cfg.PlaylistPrivacy
	}

	return playlist.Options{
		Title:           f.title,
		PlaylistID:      f.playlistID,
		Channels:        channels,
		Mode:            mode,
		Since:           since,
		Until:           until,
		MaxAge:          maxAge,
		DefaultLookback: a.cfg.DefaultLookback,
		SkipWatched:     f.skipWatched,
		ForceNew:        f.forceNew,
		DryRun:          f.dryRun,
		Privacy:         privacy,
	}, nil
}

// updateMaxAge is the window of the update preset.
const updateMaxAge = 14 * 24 * time.Hour

func newUpdateCmd(a *app) *cobra.Command {
	var (
		dryRun bool
		maxAge string
	)
	cmd := &cobra.Command{
		Use:   "update PLAYLIST CHANNEL...",
		Short: "Add uploads since the newest playlist video, at most 14 days back",
		Long: `Add uploads published since the newest video in PLAYLIST, never reaching
further back than --max-age. Meant to be run on a schedule.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			age := updateMaxAge
			if maxAge != "" {
				var err error
				if age, err = parseAge(maxAge); err != nil {
					return err
				}
			}
			opts := playlist.Options{
				Title:           args[0],
				Channels:        args[1:],
				Mode:            playlist.ModeIncremental,
				MaxAge:          age,
				DefaultLookback: age,
				DryRun:          dryRun,
				Privacy:         a.cfg.PlaylistPrivacy,
			}
			return runSync(cmd.Context(), a, opts, false, a.cfg.UseRSS)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be added without changing anything")
	cmd.Flags().StringVar(&maxAge, "max-age", "", "oldest video to consider (default 14d)")
	return cmd
}

func runSync(ctx context.Context, a *app, opts playlist.Options, forceRefresh, useRSS bool) error {
	yc, err := a.youtubeClient(ctx, false)
	if err != nil {
		return err
	}

	var rss *youtube.RSSLister
	if useRSS || a.cfg.UseRSS {
		rss = youtube.NewRSSLister(a.http)
	}
	source := youtube.NewUploadSource(a.store, youtube.NewAPILister(yc), youtube.SourceOptions{
		CacheTTL:     a.cfg.CacheTTL,
		RSS:          rss,
		ForceRefresh: forceRefresh,
	})
	resolver := youtube.NewChannelResolver(yc, a.store)

	syncer := playlist.NewSyncer(yc, resolver, source, a.store, a.tracker, playlist.Config{
		InsertInterval: a.cfg.InsertInterval,
		LongPauseEvery: a.cfg.LongPauseEvery,
		LongPause:      a.cfg.LongPause,
		ProgressEvery:  10,
	})

	res, err := syncer.Sync(ctx, opts)
	if res != nil {
		res.WriteSummary(a.out)
	}
	return err
}
