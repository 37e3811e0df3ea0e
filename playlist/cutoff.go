package playlist

import (
	"fmt"
	"time"

	"ytplsync/storage"
	"ytplsync/youtube"
)

// CutoffSource says which rule produced a cutoff's lower bound.
type CutoffSource string

const (
	CutoffSince      CutoffSource = "since"
	CutoffWatermark  CutoffSource = "watermark"
	CutoffNewestItem CutoffSource = "newest-item"
	CutoffLastRun    CutoffSource = "last-run"
	CutoffLookback   CutoffSource = "lookback"
	CutoffMaxAge     CutoffSource = "max-age"
	CutoffNone       CutoffSource = "none"
)

// Cutoff is the publish-date window of a run.
type Cutoff struct {
	// After is the lower bound. Zero means none.
	After time.Time
	// Inclusive keeps videos published exactly at After.
	Inclusive bool
	// Until is the inclusive upper bound. Zero means none.
	Until  time.Time
	Source CutoffSource
}

// TooOld reports whether t falls before the lower bound.
func (c Cutoff) TooOld(t time.Time) bool {
	if c.After.IsZero() {
		return false
	}
	if c.Inclusive {
		return t.Before(c.After)
	}
	return !t.After(c.After)
}

// TooNew reports whether t falls after the upper bound.
func (c Cutoff) TooNew(t time.Time) bool {
	return !c.Until.IsZero() && t.After(c.Until)
}

// FetchSince is the inclusive bound to fetch uploads with. Exclusivity is
// applied when filtering.
func (c Cutoff) FetchSince() time.Time {
	return c.After
}

func (c Cutoff) String() string {
	if c.After.IsZero() {
		if c.Until.IsZero() {
			return "all videos"
		}
		return "published up to " + c.Until.Format(time.RFC3339)
	}
	op := "after"
	if c.Inclusive {
		op = "on or after"
	}
	s := fmt.Sprintf("published %s %s (%s)", op, c.After.Format(time.RFC3339), c.Source)
	if !c.Until.IsZero() {
		s += " up to " + c.Until.Format(time.RFC3339)
	}
	return s
}

// Contents summarises the videos already in a playlist.
type Contents struct {
	Count  int
	Oldest time.Time
	Newest time.Time
}

// Observe folds an existing playlist item into the summary. Items without a
// publish date (deleted or private videos) count but carry no date.
func (c *Contents) Observe(item youtube.PlaylistItem) {
	c.Count++
	t := item.VideoPublishedAt
	if t.IsZero() {
		return
	}
	if c.Oldest.IsZero() || t.Before(c.Oldest) {
		c.Oldest = t
	}
	if c.Newest.IsZero() || t.After(c.Newest) {
		c.Newest = t
	}
}

// CutoffFor derives the window of a run. An explicit Since wins, then the
// mode's rule; MaxAge then clamps the lower bound and Until sets the upper
// bound through the end of that day in UTC. history may be nil.
func CutoffFor(opts Options, existing Contents, history *storage.PlaylistHistory, now time.Time) Cutoff {
	var c Cutoff
	switch {
	case !opts.Since.IsZero():
		c = Cutoff{After: opts.Since.UTC(), Inclusive: true, Source: CutoffSince}
	case opts.Mode == ModeFull:
		c = Cutoff{Source: CutoffNone}
	case opts.Mode == ModeWatermark:
		if existing.Oldest.IsZero() {
			c = Cutoff{Source: CutoffNone}
		} else {
			c = Cutoff{After: existing.Oldest, Source: CutoffWatermark}
		}
	case !existing.Newest.IsZero():
		c = Cutoff{After: existing.Newest, Source: CutoffNewestItem}
	case history != nil && !history.LastRun.IsZero():
		c = Cutoff{After: history.LastRun.UTC(), Source: CutoffLastRun}
	default:
		c = Cutoff{After: now.Add(-opts.lookback()).UTC(), Source: CutoffLookback}
	}

	if opts.MaxAge > 0 {
		floor := now.Add(-opts.MaxAge).UTC()
		if c.After.IsZero() || c.After.Before(floor) {
			c = Cutoff{After: floor, Inclusive: true, Source: CutoffMaxAge}
		}
	}
	if !opts.Until.IsZero() {
		c.Until = endOfDay(opts.Until)
	}
	return c
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}
