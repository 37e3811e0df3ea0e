package playlist

import (
	"fmt"
	"io"
	"time"

	"ytplsync/quota"
	"ytplsync/storage"
	"ytplsync/youtube"
)

// StopReason is why a run ended.
type StopReason string

const (
	StopCompleted   StopReason = "completed"
	StopInterrupted StopReason = "interrupted"
	StopQuota       StopReason = "quota"
	StopFailed      StopReason = "failed"
)

func (r StopReason) status() storage.RunStatus {
	switch r {
	case StopCompleted:
		return storage.RunCompleted
	case StopInterrupted:
		return storage.RunInterrupted
	case StopQuota:
		return storage.RunQuota
	default:
		return storage.RunFailed
	}
}

// FailedVideo is a candidate whose insert failed.
type FailedVideo struct {
	VideoID string
	Title   string
	// Unavailable is set when the video is deleted, private or otherwise
	// refused by the API.
	Unavailable bool
	Err         error
}

// ChannelError is a channel input that contributed no videos.
type ChannelError struct {
	Input string
	// ChannelID is set when resolution succeeded and fetching failed.
	ChannelID string
	Err       error
}

func (e ChannelError) Error() string {
	if e.ChannelID != "" {
		return fmt.Sprintf("%s (%s): %v", e.Input, e.ChannelID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Input, e.Err)
}

// Skipped counts videos filtered out, per reason.
type Skipped struct {
	Duplicate int
	Existing  int
	Watched   int
	TooOld    int
	TooNew    int
}

// Total is the number of skipped videos.
func (s Skipped) Total() int {
	return s.Duplicate + s.Existing + s.Watched + s.TooOld + s.TooNew
}

// Result reports what a run did.
type Result struct {
	RunID         string
	PlaylistID    string
	PlaylistTitle string
	Created       bool
	DryRun        bool

	Cutoff Cutoff
	// Existing is the number of items the playlist held before the run.
	Existing int
	// Found is the number of uploads collected across all channels.
	Found      int
	Candidates int
	Added      int
	Failed     []FailedVideo
	Remaining  int
	Skipped    Skipped
	// Planned holds the candidates of a dry run, in insert order.
	Planned []youtube.VideoInfo

	Stop       StopReason
	QuotaUsed  int
	QuotaLeft  int
	Unresolved []ChannelError

	StartedAt  time.Time
	FinishedAt time.Time
}

// WriteSummary prints a human-readable report of the run.
func (r *Result) WriteSummary(w io.Writer) {
	title := r.PlaylistTitle
	if title == "" {
		title = r.PlaylistID
	}
	fmt.Fprintf(w, "Playlist: %s", title)
	switch {
	case r.Created:
		fmt.Fprintf(w, " (created, %s)\n", r.PlaylistID)
	case r.PlaylistID != "":
		fmt.Fprintf(w, " (%s)\n", r.PlaylistID)
	default:
		fmt.Fprintln(w, " (not created)")
	}
	fmt.Fprintf(w, "Window:   %s\n", r.Cutoff)
	fmt.Fprintf(w, "Found %d uploads, %d already in playlist, %d new candidates\n", r.Found, r.Existing, r.Candidates)
	if s := r.Skipped; s.Total() > 0 {
		fmt.Fprintf(w, "Skipped:  %d duplicate, %d existing, %d watched, %d too old, %d too new\n",
			s.Duplicate, s.Existing, s.Watched, s.TooOld, s.TooNew)
	}

	if r.DryRun {
		fmt.Fprintf(w, "Dry run: would add %d videos\n", len(r.Planned))
		for _, v := range r.Planned {
			fmt.Fprintf(w, "  %s  %s  %s\n", v.Published.Format(time.DateOnly), v.ID, v.Title)
		}
	} else {
		fmt.Fprintf(w, "Added %d, failed %d, remaining %d\n", r.Added, len(r.Failed), r.Remaining)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed %s: %v\n", f.VideoID, f.Err)
	}
	for _, u := range r.Unresolved {
		fmt.Fprintf(w, "  channel %v\n", u)
	}

	fmt.Fprintf(w, "Quota: %d units used this run, %d left today\n", r.QuotaUsed, r.QuotaLeft)
	switch r.Stop {
	case StopQuota:
		fmt.Fprintf(w, "Stopped: daily quota reached. Run again after %s to add the remaining %d videos.\n",
			quota.NextReset(r.FinishedAt).Format("2006-01-02 15:04 MST"), r.Remaining)
	case StopInterrupted:
		fmt.Fprintf(w, "Stopped: interrupted. Run the same command again to add the remaining %d videos.\n", r.Remaining)
	case StopFailed:
		if r.Remaining > 0 && !r.DryRun {
			fmt.Fprintf(w, "Stopped: run failed. Run the same command again to add the remaining %d videos.\n", r.Remaining)
		} else {
			fmt.Fprintln(w, "Stopped: run failed.")
		}
	}
}
