package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"

	"ytplsync/config"
	ythttp "ytplsync/http"
	"ytplsync/internal/log"
	"ytplsync/quota"
	"ytplsync/storage"
	"ytplsync/youtube"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	config      string
	credentials string
	token       string
	store       string
	logLevel    string
	quota       int
}

// app carries what the commands share. It is populated by the root
// command's PersistentPreRunE once flags are parsed.
type app struct {
	flags globalFlags
	out   io.Writer
	errw  io.Writer

	cfg     *config.Config
	store   *storage.JSONStore
	http    *ythttp.Client
	tracker *quota.Tracker
	log     zerolog.Logger
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{out: stdout, errw: stderr, log: log.Nop()}
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.config)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("credentials") {
		cfg.CredentialsFile = a.flags.credentials
	}
	if flags.Changed("token") {
		cfg.TokenFile = a.flags.token
	}
	if flags.Changed("store") {
		cfg.StorePath = a.flags.store
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if flags.Changed("quota") {
		cfg.DailyQuota = a.flags.quota
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	log.Configure(log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: a.errw})
	a.log = log.WithComponent("cli")

	store, err := storage.NewJSONStore(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = store

	a.tracker = quota.NewTracker(cfg.DailyQuota, cfg.QuotaReserve)
	if err := a.tracker.Load(cmd.Context(), store); err != nil {
		a.log.Warn().Err(err).Msg("could not load quota ledger")
	}

	hc := ythttp.DefaultConfig()
	hc.Retry = cfg.Retry()
	hc.RateLimiter.DataAPIRPS = cfg.RequestsPerSecond
	a.http = ythttp.New(hc)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		// units spent outside a sync (dump, uploads) still count today
		if err := a.tracker.Save(context.Background(), a.store); err != nil {
			a.log.Warn().Err(err).Msg("could not save quota ledger")
		}
		a.store.Close()
	}
	if a.http != nil {
		a.http.Close()
	}
}

func (a *app) authenticator() *youtube.Authenticator {
	auth := youtube.NewAuthenticator(a.cfg.CredentialsFile, a.cfg.TokenFile, a.http.HTTPClient())
	auth.Prompt = func(u string) {
		fmt.Fprintf(a.errw, "Open this URL in your browser to authorize access:\n\n  %s\n\n", u)
	}
	return auth
}

// youtubeClient returns a Data API client. Read-only callers use the API key
// when one is configured; everything else needs the user's OAuth token.
func (a *app) youtubeClient(ctx context.Context, readOnly bool) (*youtube.Client, error) {
	var hc *http.Client
	if readOnly && a.cfg.APIKey != "" {
		hc = &http.Client{
			Transport: &transport.APIKey{Key: a.cfg.APIKey, Transport: a.http.HTTPClient().Transport},
		}
	} else {
		var err error
		if hc, err = a.authenticator().Client(ctx); err != nil {
			return nil, err
		}
	}

	c, err := youtube.NewClient(ctx, a.tracker, option.WithHTTPClient(hc))
	if err != nil {
		return nil, err
	}
	c.SetRetry(a.cfg.Retry())
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC3339)", s)
	}
	return t.UTC(), nil
}

// parseAge accepts Go durations plus a whole-day suffix, e.g. "14d".
func parseAge(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	var days int
	if n, err := fmt.Sscanf(s, "%dd", &days); err == nil && n == 1 && fmt.Sprintf("%dd", days) == s {
		if days < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q (use e.g. 14d or 336h)", s)
	}
	return d, nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
