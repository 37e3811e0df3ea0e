package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestChannelVideos_Fresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entry := &ChannelVideos{FetchedAt: now.Add(-2 * time.Hour)}

	tests := []struct {
		name string
		e    *ChannelVideos
		ttl  time.Duration
		want bool
	}{
		{"within ttl", entry, 3 * time.Hour, true},
		{"expired", entry, time.Hour, false},
		{"ttl disabled", entry, 0, false},
		{"nil entry", nil, time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.e.Fresh(now, tt.ttl); got != tt.want {
				t.Errorf("Fresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChannelVideos_Covers(t *testing.T) {
	may := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		since time.Time
		req   time.Time
		want  bool
	}{
		{"full history covers anything", time.Time{}, may, true},
		{"full history covers full request", time.Time{}, time.Time{}, true},
		{"older since covers newer request", may, june, true},
		{"same since", may, may, true},
		{"newer since misses older request", june, may, false},
		{"bounded entry misses full request", may, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &ChannelVideos{Since: tt.since}
			if got := e.Covers(tt.req); got != tt.want {
				t.Errorf("Covers(%v) = %v, want %v", tt.req, got, tt.want)
			}
		})
	}
}

func TestPlaylistHistory_AddRun(t *testing.T) {
	h := &PlaylistHistory{Title: "T"}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	h.AddRun(RunRecord{StartedAt: base, Status: RunCompleted})
	h.AddRun(RunRecord{StartedAt: base.Add(time.Hour), Status: RunInterrupted})

	if !h.LastRun.Equal(base) {
		t.Errorf("LastRun = %v, want %v (interrupted runs must not advance it)", h.LastRun, base)
	}
	last, ok := h.LastCompleted()
	if !ok || !last.StartedAt.Equal(base) {
		t.Errorf("LastCompleted() = %v, %v", last, ok)
	}

	for i := 0; i < MaxRunRecords+5; i++ {
		h.AddRun(RunRecord{ID: fmt.Sprint(i), StartedAt: base.Add(time.Duration(i+2) * time.Hour), Status: RunQuota})
	}
	if len(h.Runs) != MaxRunRecords {
		t.Errorf("len(Runs) = %d, want %d", len(h.Runs), MaxRunRecords)
	}
	if h.Runs[len(h.Runs)-1].ID != fmt.Sprint(MaxRunRecords+4) {
		t.Error("newest run not kept")
	}
	if _, ok := h.LastCompleted(); ok {
		t.Error("LastCompleted() should report none once trimmed away")
	}
}

func TestMappingsFromVideoCache(t *testing.T) {
	entries := []*ChannelVideos{
		{ChannelID: "UC1", ChannelTitle: "One", Videos: []CachedVideo{{ID: "a"}}},
		{ChannelID: "UC2", Videos: []CachedVideo{{ID: "b", ChannelTitle: "Two"}}},
		{ChannelID: "UC3", ChannelTitle: "Empty"},
		nil,
	}
	want := map[string]string{"One": "UC1", "Two": "UC2"}
	if diff := cmp.Diff(want, MappingsFromVideoCache(entries)); diff != "" {
		t.Errorf("MappingsFromVideoCache() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsCommentKey(t *testing.T) {
	if !IsCommentKey("_note") || IsCommentKey("note") || IsCommentKey("") {
		t.Error("IsCommentKey() misclassified keys")
	}
}
