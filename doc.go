// Package ytplsync keeps a YouTube playlist filled with the uploads of a set
// of channels.
//
// A sync resolves each channel, collects its recent uploads and inserts the
// ones the playlist does not hold yet, oldest first. The YouTube Data API
// allows 10,000 units a day and every insert costs 50, so the work is
// arranged to spend as little as possible:
//
//   - channel lookups and upload lists are cached in a local JSON store
//   - the free RSS feed is tried before the API when it reaches back far enough
//   - units spent are recorded per quota day, so separate runs share one budget
//   - a run stops cleanly when the budget is gone and the next run resumes
//
// # Packages
//
//   - youtube: Data API client, OAuth, channel resolution and upload listing
//   - playlist: the sync itself (cutoff rules, filtering, paced inserts)
//   - dump: full listing of a playlist, Watch Later by default
//   - storage: the JSON state store
//   - quota: the daily unit tracker
//   - config: YAML and environment configuration
//   - http: rate-limited, circuit-breaking HTTP client
//
// # Example
//
//	yc, err := youtube.NewClient(ctx, tracker, option.WithHTTPClient(oauthClient))
//	if err != nil {
//		return err
//	}
//	source := youtube.NewUploadSource(store, youtube.NewAPILister(yc), youtube.SourceOptions{CacheTTL: 24 * time.Hour})
//	syncer := playlist.NewSyncer(yc, youtube.NewChannelResolver(yc, store), source, store, tracker, playlist.DefaultConfig())
//	res, err := syncer.Sync(ctx, playlist.Options{Title: "Subscriptions", Channels: []string{"@veritasium"}})
//	if err != nil {
//		return err
//	}
//	res.WriteSummary(os.Stdout)
//
// # Error Handling
//
//	if errors.Is(err, ytplsync.ErrQuotaExceeded) {
//		fmt.Println("Daily quota used up")
//	}
//
//	var apiErr *ytplsync.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s: %s\n", apiErr.Op, apiErr.Reason)
//	}
package ytplsync
