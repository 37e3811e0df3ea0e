// Package playlist adds the uploads of a set of channels to a YouTube
// playlist, inserting only what the playlist does not hold yet and spending
// as little of the daily Data API quota as it can.
package playlist

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects how the lower publish-date bound of a run is derived.
type Mode int

const (
	// ModeIncremental continues after the newest video already in the playlist.
	ModeIncremental Mode = iota
	// ModeWatermark fills in everything newer than the oldest video in the playlist.
	ModeWatermark
	// ModeFull applies no lower bound.
	ModeFull
)

func (m Mode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModeWatermark:
		return "watermark"
	case ModeFull:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "incremental":
		return ModeIncremental, nil
	case "watermark":
		return ModeWatermark, nil
	case "full":
		return ModeFull, nil
	}
	return 0, fmt.Errorf("unknown sync mode %q", s)
}

// DefaultLookback bounds an incremental run against an empty playlist with no
// history.
const DefaultLookback = 14 * 24 * time.Hour

// Options describe one sync run.
type Options struct {
	// Title names the target playlist. It is also the key of the run history.
	Title string
	// PlaylistID targets an existing playlist directly, skipping the lookup.
	PlaylistID string
	// Channels are channel IDs, URLs, handles or names.
	Channels []string

	Mode Mode
	// Since, when set, is an inclusive minimum publish date and overrides Mode.
	Since time.Time
	// Until, when set, is a date; videos published after the end of that day
	// (UTC) are skipped.
	Until time.Time
	// MaxAge, when positive, keeps the lower bound no earlier than now - MaxAge.
	MaxAge time.Duration
	// DefaultLookback is the incremental bound when nothing else is known.
	// Zero means DefaultLookback.
	DefaultLookback time.Duration

	// SkipWatched drops videos that are in the Liked or Watch Later playlists.
	SkipWatched bool
	// ForceNew creates a new playlist even if one with Title exists.
	ForceNew bool
	// DryRun computes the candidates without creating or inserting anything.
	DryRun bool
	// Privacy of a created playlist; empty means private.
	Privacy string
}

// Validate checks the options for contradictions.
func (o *Options) Validate() error {
	var errs []error
	if strings.TrimSpace(o.Title) == "" && o.PlaylistID == "" {
		errs = append(errs, errors.New("playlist title or ID is required"))
	}
	if len(o.Channels) == 0 {
		errs = append(errs, errors.New("at least one channel is required"))
	}
	if o.ForceNew && o.PlaylistID != "" {
		errs = append(errs, errors.New("force-new cannot be combined with an explicit playlist ID"))
	}
	if !o.Since.IsZero() && !o.Until.IsZero() && endOfDay(o.Until).Before(o.Since) {
		errs = append(errs, fmt.Errorf("until %s is before since %s", o.Until.Format(time.DateOnly), o.Since.Format(time.DateOnly)))
	}
	if o.MaxAge < 0 {
		errs = append(errs, errors.New("max age must not be negative"))
	}
	switch o.Privacy {
	case "", "private", "unlisted", "public":
	default:
		errs = append(errs, fmt.Errorf("invalid privacy status %q", o.Privacy))
	}
	return errors.Join(errs...)
}

func (o *Options) historyKey() string {
	if t := strings.TrimSpace(o.Title); t != "" {
		return t
	}
	return o.PlaylistID
}

func (o *Options) lookback() time.Duration {
	if o.DefaultLookback > 0 {
		return o.DefaultLookback
	}
	return DefaultLookback
}
