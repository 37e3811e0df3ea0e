package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"

	"ytplsync/internal/log"
	"ytplsync/internal/retry"
	"ytplsync/quota"
)

func newTestClient(t *testing.T, handler http.Handler, tracker *quota.Tracker) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), tracker,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.SetRetry(retry.Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	})
	c.SetLogger(log.Nop())
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s","errors":[{"domain":"youtube","reason":"%s","message":"%s"}]}}`,
		code, reason, reason, reason)
}

func channelJSON(id, title string) map[string]any {
	return map[string]any{
		"id":      id,
		"snippet": map[string]any{"title": title, "customUrl": "@" + strings.ToLower(title)},
		"contentDetails": map[string]any{
			"relatedPlaylists": map[string]any{"uploads": "UU" + id[2:], "likes": "LL" + id[2:]},
		},
	}
}

const testChannelID = "UCuAXFkgsw1L7xaCfnd5JJOw"

func TestChannelByHandle(t *testing.T) {
	var gotHandle string
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		gotHandle = r.URL.Query().Get("forHandle")
		writeJSON(w, map[string]any{"items": []any{channelJSON(testChannelID, "Rick")}})
	})
	tracker := quota.NewTracker(10000, 0)
	c := newTestClient(t, mux, tracker)

	ch, err := c.ChannelByHandle(context.Background(), "@rick")
	if err != nil {
		t.Fatalf("ChannelByHandle() error = %v", err)
	}
	if gotHandle != "rick" {
		t.Errorf("forHandle = %q, want %q", gotHandle, "rick")
	}
	if ch.ID != testChannelID || ch.Title != "Rick" {
		t.Errorf("channel = %+v", ch)
	}
	if ch.UploadsPlaylistID != "UUuAXFkgsw1L7xaCfnd5JJOw" {
		t.Errorf("UploadsPlaylistID = %q", ch.UploadsPlaylistID)
	}
	if tracker.Used() != quota.CostList {
		t.Errorf("quota used = %d, want %d", tracker.Used(), quota.CostList)
	}
}

func TestChannelByIDNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []any{}})
	})
	c := newTestClient(t, mux, nil)

	_, err := c.ChannelByID(context.Background(), testChannelID)
	if !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("ChannelByID() error = %v, want ErrChannelNotFound", err)
	}
}

func TestSearchChannelsCost(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "channel" {
			t.Errorf("type = %q, want channel", r.URL.Query().Get("type"))
		}
		writeJSON(w, map[string]any{"items": []any{
			map[string]any{"id": map[string]any{"kind": "youtube#channel", "channelId": "UCaaaaaaaaaaaaaaaaaaaaaa"},
				"snippet": map[string]any{"title": "Other"}},
			map[string]any{"id": map[string]any{"kind": "youtube#channel", "channelId": testChannelID},
				"snippet": map[string]any{"title": "Rick"}},
		}})
	})
	tracker := quota.NewTracker(10000, 0)
	c := newTestClient(t, mux, tracker)

	got, err := c.SearchChannels(context.Background(), "rick", 5)
	if err != nil {
		t.Fatalf("SearchChannels() error = %v", err)
	}
	if len(got) != 2 || got[1].ID != testChannelID {
		t.Errorf("SearchChannels() = %+v", got)
	}
	if tracker.Used() != quota.CostSearch {
		t.Errorf("quota used = %d, want %d", tracker.Used(), quota.CostSearch)
	}
}

func TestQuotaExceededNotRetried(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeAPIError(w, http.StatusForbidden, ReasonQuotaExceeded)
	})
	tracker := quota.NewTracker(10000, 0)
	c := newTestClient(t, mux, tracker)

	_, err := c.ChannelByID(context.Background(), testChannelID)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("error = %v, want ErrQuotaExceeded", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
		t.Errorf("error = %v, want *APIError with code 403", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
	if !tracker.Exhausted() {
		t.Error("tracker not marked exhausted")
	}

	// Later calls are refused locally.
	_, err = c.ChannelByID(context.Background(), testChannelID)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("second call error = %v, want ErrQuotaExceeded", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server calls after exhaustion = %d, want 1", n)
	}
}

func TestBackendErrorRetried(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeAPIError(w, http.StatusServiceUnavailable, ReasonBackendError)
			return
		}
		writeJSON(w, map[string]any{"items": []any{channelJSON(testChannelID, "Rick")}})
	})
	tracker := quota.NewTracker(10000, 0)
	c := newTestClient(t, mux, tracker)

	if _, err := c.ChannelByID(context.Background(), testChannelID); err != nil {
		t.Fatalf("ChannelByID() error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server calls = %d, want 2", n)
	}
	// both responses are charged
	if tracker.Used() != 2 {
		t.Errorf("quota used = %d, want 2", tracker.Used())
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeAPIError(w, http.StatusNotFound, ReasonPlaylistNotFound)
	})
	c := newTestClient(t, mux, nil)

	err := c.ListPlaylistItems(context.Background(), "PLmissing", func([]PlaylistItem) error { return nil })
	if !errors.Is(err, ErrPlaylistNotFound) {
		t.Errorf("error = %v, want ErrPlaylistNotFound", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
}

func TestLocalBudgetRefusesCall(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, map[string]any{"items": []any{}})
	})
	tracker := quota.NewTracker(150, 100)
	c := newTestClient(t, mux, tracker)

	_, err := c.SearchChannels(context.Background(), "rick", 1)
	if !errors.Is(err, ErrQuotaBudget) {
		t.Errorf("error = %v, want ErrQuotaBudget", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("request sent despite insufficient budget")
	}
}

func TestListPlaylistItemsPaging(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("maxResults"); got != "50" {
			t.Errorf("maxResults = %q, want 50", got)
		}
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, map[string]any{
				"nextPageToken": "p2",
				"items": []any{
					playlistItemJSON("v1", "2024-01-03T00:00:00Z"),
					playlistItemJSON("v2", "2024-01-02T00:00:00Z"),
				},
			})
		case "p2":
			writeJSON(w, map[string]any{"items": []any{playlistItemJSON("v3", "")}})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	})
	tracker := quota.NewTracker(10000, 0)
	c := newTestClient(t, mux, tracker)

	var ids []string
	var pages int
	err := c.ListPlaylistItems(context.Background(), "PL1", func(page []PlaylistItem) error {
		pages++
		for _, it := range page {
			ids = append(ids, it.VideoID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ListPlaylistItems() error = %v", err)
	}
	if pages != 2 || strings.Join(ids, ",") != "v1,v2,v3" {
		t.Errorf("pages = %d, ids = %v", pages, ids)
	}
	if tracker.Used() != 2 {
		t.Errorf("quota used = %d, want 2", tracker.Used())
	}
}

func TestListPlaylistItemsStop(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, map[string]any{"nextPageToken": "more", "items": []any{playlistItemJSON("v1", "2024-01-01T00:00:00Z")}})
	})
	c := newTestClient(t, mux, nil)

	err := c.ListPlaylistItems(context.Background(), "PL1", func([]PlaylistItem) error { return ErrStopPaging })
	if err != nil {
		t.Fatalf("ListPlaylistItems() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server calls = %d, want 1", calls)
	}
}

func playlistItemJSON(videoID, publishedAt string) map[string]any {
	cd := map[string]any{"videoId": videoID}
	if publishedAt != "" {
		cd["videoPublishedAt"] = publishedAt
	}
	return map[string]any{
		"id": "item-" + videoID,
		"snippet": map[string]any{
			"title":                  "Video " + videoID,
			"publishedAt":            "2024-02-01T00:00:00Z",
			"videoOwnerChannelId":    testChannelID,
			"videoOwnerChannelTitle": "Rick",
			"resourceId":             map[string]any{"kind": "youtube#video", "videoId": videoID},
		},
		"contentDetails": cd,
		"status":         map[string]any{"privacyStatus": "public"},
	}
}

func TestPlaylistItemFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"items": []any{playlistItemJSON("v1", "2024-01-03T10:00:00Z")}})
	})
	c := newTestClient(t, mux, nil)

	var got PlaylistItem
	_ = c.ListPlaylistItems(context.Background(), "PL1", func(page []PlaylistItem) error {
		got = page[0]
		return nil
	})
	want := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	if !got.VideoPublishedAt.Equal(want) {
		t.Errorf("VideoPublishedAt = %v, want %v", got.VideoPublishedAt, want)
	}
	if got.ChannelID != testChannelID || got.ChannelTitle != "Rick" || got.PrivacyStatus != "public" {
		t.Errorf("item = %+v", got)
	}
}

func TestFindPlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlists", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mine") != "true" {
			t.Errorf("mine = %q, want true", r.URL.Query().Get("mine"))
		}
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"nextPageToken": "p2",
				"items":         []any{map[string]any{"id": "PLa", "snippet": map[string]any{"title": "Music"}}},
			})
			return
		}
		writeJSON(w, map[string]any{
			"items": []any{map[string]any{"id": "PLb", "snippet": map[string]any{"title": "Tech Weekly"},
				"contentDetails": map[string]any{"itemCount": 12}}},
		})
	})
	c := newTestClient(t, mux, nil)

	p, err := c.FindPlaylist(context.Background(), "Tech Weekly")
	if err != nil {
		t.Fatalf("FindPlaylist() error = %v", err)
	}
	if p.ID != "PLb" || p.ItemCount != 12 {
		t.Errorf("playlist = %+v", p)
	}

	_, err = c.FindPlaylist(context.Background(), "tech weekly")
	if !errors.Is(err, ErrPlaylistNotFound) {
		t.Errorf("case-different title error = %v, want ErrPlaylistNotFound", err)
	}
}

func TestCreatePlaylist(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlists", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		writeJSON(w, map[string]any{"id": "PLnew", "snippet": map[string]any{"title": "New"}, "status": map[string]any{"privacyStatus": "private"}})
	})
	tracker := quota.NewTracker(10000, 0)
	c := newTestClient(t, mux, tracker)

	p, err := c.CreatePlaylist(context.Background(), "New", "desc", "")
	if err != nil {
		t.Fatalf("CreatePlaylist() error = %v", err)
	}
	if p.ID != "PLnew" || p.PrivacyStatus != "private" {
		t.Errorf("playlist = %+v", p)
	}
	status, _ := body["status"].(map[string]any)
	if status["privacyStatus"] != "private" {
		t.Errorf("request status = %v, want private", body["status"])
	}
	if tracker.Used() != quota.CostInsert {
		t.Errorf("quota used = %d, want %d", tracker.Used(), quota.CostInsert)
	}
}

func TestInsertPlaylistItemPositionZero(t *testing.T) {
	var raw string
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		raw = string(data)
		writeJSON(w, map[string]any{"id": "item-1"})
	})
	c := newTestClient(t, mux, nil)

	pos := int64(0)
	id, err := c.InsertPlaylistItem(context.Background(), "PL1", "v1", &pos)
	if err != nil {
		t.Fatalf("InsertPlaylistItem() error = %v", err)
	}
	if id != "item-1" {
		t.Errorf("item id = %q", id)
	}
	if !strings.Contains(raw, `"position":0`) {
		t.Errorf("request body %s does not carry position 0", raw)
	}
}

func TestInsertPlaylistItemUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusNotFound, ReasonVideoNotFound)
	})
	tracker := quota.NewTracker(10000, 0)
	c := newTestClient(t, mux, tracker)

	_, err := c.InsertPlaylistItem(context.Background(), "PL1", "gone", nil)
	if !errors.Is(err, ErrVideoUnavailable) {
		t.Errorf("error = %v, want ErrVideoUnavailable", err)
	}
	if tracker.Used() != quota.CostInsert {
		t.Errorf("failed insert charged %d, want %d", tracker.Used(), quota.CostInsert)
	}
}

func TestVideoDetailsBatches(t *testing.T) {
	var batches []int
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		for _, v := range r.URL.Query()["id"] {
			ids = append(ids, strings.Split(v, ",")...)
		}
		batches = append(batches, len(ids))
		var items []any
		for _, id := range ids {
			if id == "missing" {
				continue
			}
			items = append(items, map[string]any{
				"id":             id,
				"snippet":        map[string]any{"title": "T " + id, "channelTitle": "Rick", "publishedAt": "2024-01-01T00:00:00Z"},
				"contentDetails": map[string]any{"duration": "PT3M33S"},
				"status":         map[string]any{"privacyStatus": "public", "uploadStatus": "processed"},
			})
		}
		writeJSON(w, map[string]any{"items": items})
	})
	c := newTestClient(t, mux, nil)

	ids := make([]string, 0, 120)
	for i := 0; i < 119; i++ {
		ids = append(ids, fmt.Sprintf("v%03d", i))
	}
	ids = append(ids, "missing")

	got, err := c.VideoDetails(context.Background(), ids)
	if err != nil {
		t.Fatalf("VideoDetails() error = %v", err)
	}
	if len(batches) != 3 || batches[0] != 50 || batches[1] != 50 || batches[2] != 20 {
		t.Errorf("batch sizes = %v, want [50 50 20]", batches)
	}
	if len(got) != 119 {
		t.Errorf("got %d videos, want 119", len(got))
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing video present in result")
	}
	if got["v000"].Duration != "PT3M33S" {
		t.Errorf("duration = %q", got["v000"].Duration)
	}
}
