package dump

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytplsync/internal/log"
	"ytplsync/youtube"
)

type fakeAPI struct {
	pages      [][]youtube.PlaylistItem
	videos     map[string]youtube.Video
	detailsErr error
	listed     string
	lookups    [][]string
}

func (f *fakeAPI) ListPlaylistItems(ctx context.Context, playlistID string, fn func([]youtube.PlaylistItem) error) error {
	f.listed = playlistID
	for _, p := range f.pages {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAPI) VideoDetails(ctx context.Context, ids []string) (map[string]youtube.Video, error) {
	f.lookups = append(f.lookups, ids)
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	out := map[string]youtube.Video{}
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

var dumpTime = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestDumper(api API) *Dumper {
	d := New(api)
	d.now = func() time.Time { return dumpTime }
	d.log = log.Nop()
	return d
}

func TestDumpMarksUnavailable(t *testing.T) {
	api := &fakeAPI{
		pages: [][]youtube.PlaylistItem{
			{
				{VideoID: "ok1", Title: "First", ChannelTitle: "Chan"},
				{VideoID: "del", Title: "Deleted video"},
				{VideoID: "priv", Title: "Private video"},
			},
			{
				{VideoID: "gone", Title: "Was here", ChannelTitle: "Old Chan", ChannelID: "UCold"},
				{VideoID: "blank"},
				{VideoID: "ok2", Title: "Second"},
			},
		},
		videos: map[string]youtube.Video{
			"ok1": {ID: "ok1", Title: "First (full)", ChannelTitle: "Chan", ViewCount: 10, Description: strings.Repeat("x", 250)},
			"ok2": {ID: "ok2", Title: "Second", ChannelTitle: "Chan", PublishedAt: dumpTime.AddDate(0, -1, 0)},
		},
	}

	r, err := newTestDumper(api).Dump(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, youtube.WatchLaterID, api.listed)
	assert.Equal(t, [][]string{{"ok1"}, {"gone", "ok2"}}, api.lookups)
	assert.Equal(t, 6, r.TotalItems)
	assert.Equal(t, 2, r.AvailableItems)
	assert.Equal(t, 4, r.UnavailableItems)

	for i, it := range r.Items {
		assert.Equal(t, i, it.Position)
	}
	assert.Equal(t, "First (full)", r.Items[0].Title)
	assert.Equal(t, uint64(10), *r.Items[0].ViewCount)
	assert.Len(t, []rune(r.Items[0].Description), 203)
	assert.Equal(t, ReasonDeletedOrPrivate, r.Items[1].ErrorReason)
	assert.Equal(t, ReasonDeletedOrPrivate, r.Items[2].ErrorReason)
	assert.Equal(t, ReasonNotAccessible, r.Items[3].ErrorReason)
	assert.Equal(t, "Old Chan", r.Items[3].ChannelTitle)
	assert.Equal(t, ReasonDeletedOrPrivate, r.Items[4].ErrorReason)
	assert.True(t, r.Items[5].Available)
	require.NotNil(t, r.Items[5].PublishedAt)
}

func TestDumpDetailsError(t *testing.T) {
	api := &fakeAPI{
		pages:      [][]youtube.PlaylistItem{{{VideoID: "a", Title: "A"}}},
		detailsErr: fmt.Errorf("videos.list: %w", youtube.ErrQuotaExceeded),
	}
	_, err := newTestDumper(api).Dump(context.Background(), "PLx")
	assert.True(t, errors.Is(err, youtube.ErrQuotaExceeded))
	assert.Equal(t, "PLx", api.listed)
}

func TestReportWriteFile(t *testing.T) {
	api := &fakeAPI{pages: [][]youtube.PlaylistItem{{{VideoID: "d", Title: "Deleted video"}}}}
	r, err := newTestDumper(api).Dump(context.Background(), "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), DefaultFileName(dumpTime))
	assert.True(t, strings.HasSuffix(path, "watch_later_dump_2024-06-01.json"))
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"dump_date", "total_items", "available_items", "unavailable_items", "items"} {
		assert.Contains(t, raw, key)
	}
	assert.EqualValues(t, 1, raw["unavailable_items"])
}

func TestSummary(t *testing.T) {
	r := &Report{PlaylistID: "WL"}
	for i := 0; i < 12; i++ {
		r.Items = append(r.Items, Item{Position: i, Title: fmt.Sprintf("gone %d", i), ErrorReason: ReasonNotAccessible})
	}
	for i := 12; i < 19; i++ {
		r.Items = append(r.Items, Item{Position: i, Title: fmt.Sprintf("video %d", i), ChannelTitle: "Chan", Available: true})
	}
	r.TotalItems, r.AvailableItems, r.UnavailableItems = 19, 7, 12

	var buf strings.Builder
	r.Summary(&buf)
	out := buf.String()

	assert.Contains(t, out, "Position 9: gone 9")
	assert.NotContains(t, out, "Position 10: gone 10")
	assert.Contains(t, out, "... and 2 more unavailable videos")
	assert.NotContains(t, out, "video 13 by")
	assert.Contains(t, out, "Position 14: video 14 by Chan")
	assert.Contains(t, out, "Position 18: video 18 by Chan")

	buf.Reset()
	(&Report{}).Summary(&buf)
	assert.Contains(t, buf.String(), "No items found")
}
