package youtube

import (
	"context"
	"errors"
	"testing"
	"time"

	"ytplsync/internal/log"
)

// fakeUploads serves an uploads playlist in pages.
type fakeUploads struct {
	channel     *Channel
	channelErr  error
	pages       [][]PlaylistItem
	listErr     error
	pagesServed int
}

func (f *fakeUploads) ChannelByID(ctx context.Context, id string) (*Channel, error) {
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return f.channel, nil
}

func (f *fakeUploads) ListPlaylistItems(ctx context.Context, playlistID string, fn func(page []PlaylistItem) error) error {
	if f.listErr != nil {
		return f.listErr
	}
	for _, page := range f.pages {
		f.pagesServed++
		if err := fn(page); err != nil {
			if errors.Is(err, ErrStopPaging) {
				return nil
			}
			return err
		}
	}
	return nil
}

func upload(id string, published time.Time) PlaylistItem {
	return PlaylistItem{VideoID: id, Title: "Video " + id, VideoPublishedAt: published}
}

func newTestAPILister(f *fakeUploads) *APILister {
	return &APILister{api: f, log: log.Nop()}
}

func TestAPIListerStopsAtOldPage(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeUploads{
		channel: &Channel{ID: testChannelID, Title: "Rick", UploadsPlaylistID: "UUx"},
		pages: [][]PlaylistItem{
			{upload("a", base.Add(48*time.Hour)), upload("b", base.Add(24*time.Hour))},
			{upload("c", base.Add(-time.Hour)), upload("d", base)},
			{upload("e", base.Add(-48*time.Hour)), upload("f", base.Add(-72*time.Hour))},
			{upload("g", base.Add(-96*time.Hour))},
		},
	}
	l := newTestAPILister(f)

	videos, err := l.ListVideos(context.Background(), testChannelID, &ListOptions{Since: base})
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}

	var ids []string
	for _, v := range videos {
		ids = append(ids, v.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "d" {
		t.Errorf("ids = %v, want [a b d]", ids)
	}
	if f.pagesServed != 3 {
		t.Errorf("pages served = %d, want 3 (stop after first all-old page)", f.pagesServed)
	}
	if videos[0].ChannelName != "Rick" || videos[0].ChannelID != testChannelID {
		t.Errorf("video = %+v", videos[0])
	}
}

func TestAPIListerSkipsUnpublished(t *testing.T) {
	f := &fakeUploads{
		channel: &Channel{ID: testChannelID, UploadsPlaylistID: "UUx"},
		pages: [][]PlaylistItem{{
			upload("ok", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			{VideoID: "private", Title: "Private video"},
		}},
	}

	videos, err := newTestAPILister(f).ListVideos(context.Background(), testChannelID, nil)
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(videos) != 1 || videos[0].ID != "ok" {
		t.Errorf("videos = %+v", videos)
	}
}

func TestAPIListerUndatedPageDoesNotStop(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeUploads{
		channel: &Channel{ID: testChannelID, UploadsPlaylistID: "UUx"},
		pages: [][]PlaylistItem{
			{{VideoID: "gone", Title: "Deleted video"}, {VideoID: "hidden", Title: "Private video"}},
			{upload("a", base.Add(time.Hour))},
			{upload("b", base.Add(-time.Hour))},
		},
	}

	videos, err := newTestAPILister(f).ListVideos(context.Background(), testChannelID, &ListOptions{Since: base})
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(videos) != 1 || videos[0].ID != "a" {
		t.Errorf("videos = %+v, want [a]", videos)
	}
	if f.pagesServed != 3 {
		t.Errorf("pages served = %d, want 3", f.pagesServed)
	}
}

func TestAPIListerMaxResults(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeUploads{
		channel: &Channel{ID: testChannelID, UploadsPlaylistID: "UUx"},
		pages: [][]PlaylistItem{
			{upload("a", base.Add(3*time.Hour)), upload("b", base.Add(2*time.Hour))},
			{upload("c", base.Add(time.Hour))},
		},
	}

	videos, err := newTestAPILister(f).ListVideos(context.Background(), testChannelID, &ListOptions{MaxResults: 2})
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(videos) != 2 || f.pagesServed != 1 {
		t.Errorf("got %d videos over %d pages, want 2 over 1", len(videos), f.pagesServed)
	}
}

func TestAPIListerErrors(t *testing.T) {
	t.Run("channel missing", func(t *testing.T) {
		f := &fakeUploads{channelErr: ErrChannelNotFound}
		_, err := newTestAPILister(f).ListVideos(context.Background(), testChannelID, nil)
		var listerErr *ListerError
		if !errors.As(err, &listerErr) || listerErr.Source != "api" || !errors.Is(err, ErrChannelNotFound) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("no uploads playlist", func(t *testing.T) {
		f := &fakeUploads{channel: &Channel{ID: testChannelID}}
		_, err := newTestAPILister(f).ListVideos(context.Background(), testChannelID, nil)
		if !errors.Is(err, ErrPlaylistNotFound) {
			t.Errorf("error = %v, want ErrPlaylistNotFound", err)
		}
	})

	t.Run("empty channel", func(t *testing.T) {
		f := &fakeUploads{
			channel: &Channel{ID: testChannelID, UploadsPlaylistID: "UUx"},
			listErr: &APIError{Op: "playlistItems.list", Reason: ReasonPlaylistNotFound, Code: 404, Err: errors.New("not found")},
		}
		videos, err := newTestAPILister(f).ListVideos(context.Background(), testChannelID, nil)
		if err != nil || len(videos) != 0 {
			t.Errorf("ListVideos() = %v, %v; want no videos and no error", videos, err)
		}
	})

	t.Run("quota", func(t *testing.T) {
		f := &fakeUploads{
			channel: &Channel{ID: testChannelID, UploadsPlaylistID: "UUx"},
			listErr: &APIError{Op: "playlistItems.list", Reason: ReasonQuotaExceeded, Code: 403, Err: errors.New("quota")},
		}
		_, err := newTestAPILister(f).ListVideos(context.Background(), testChannelID, nil)
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Errorf("error = %v, want ErrQuotaExceeded", err)
		}
	})
}

func TestAPIListerSupportsFullHistory(t *testing.T) {
	if !(&APILister{}).SupportsFullHistory() {
		t.Error("SupportsFullHistory() should return true for API lister")
	}
}
