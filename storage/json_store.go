package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	schemaVersion = "1.0"
	lockTimeout   = 5 * time.Second
	// ledgerDays is how many quota days the ledger keeps.
	ledgerDays = 31
)

// JSONStore implements Store using a single JSON file.
type JSONStore struct {
	path string
	lock *FileLock
	data *storeData
	mu   sync.RWMutex
}

// storeData is the top-level JSON structure.
type storeData struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	// Channels maps user input to channel IDs. Keys starting with "_" are
	// comments the user may add by hand.
	Channels  map[string]string           `json:"channels"`
	Videos    map[string]*ChannelVideos   `json:"videos"`
	Playlists map[string]*PlaylistHistory `json:"playlists"`
	Quota     map[string]int              `json:"quota"`
}

// NewJSONStore opens the JSON file store at the given path, holding its lock
// until Close. If the file does not exist an empty store is created.
func NewJSONStore(path string) (*JSONStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &StorageError{Op: "open", Entity: "store", Err: ErrInvalidInput}
	}
	s := &JSONStore{
		path: path,
		lock: NewFileLock(path),
	}

	if err := s.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := s.load(); err != nil {
		s.lock.Unlock()
		return nil, err
	}

	return s, nil
}

// Path returns the file backing the store.
func (s *JSONStore) Path() string {
	return s.path
}

// load reads the JSON file into memory. Creates empty data if file doesn't exist.
func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.data = newStoreData()
			// Save immediately to catch permission errors early
			return s.save()
		}
		return &StorageError{Op: "read", Entity: "store", Err: err}
	}

	s.data = &storeData{}
	if err := json.Unmarshal(data, s.data); err != nil {
		return &StorageError{Op: "read", Entity: "store", ID: s.path, Err: ErrStorageCorrupt}
	}
	s.data.ensureMaps()

	return nil
}

// save persists the data to disk atomically.
func (s *JSONStore) save() error {
	s.data.UpdatedAt = time.Now()

	writer, err := NewAtomicWriter(s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s.data); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "store", Err: err}
	}

	return nil
}

// Close releases resources held by the store.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Unlock()
}

// Clear drops channel mappings (comments included) and cached uploads.
func (s *JSONStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Channels = make(map[string]string)
	s.data.Videos = make(map[string]*ChannelVideos)
	return s.save()
}

func newStoreData() *storeData {
	d := &storeData{
		Version:   schemaVersion,
		UpdatedAt: time.Now(),
	}
	d.ensureMaps()
	return d
}

func (d *storeData) ensureMaps() {
	if d.Version == "" {
		d.Version = schemaVersion
	}
	if d.Channels == nil {
		d.Channels = make(map[string]string)
	}
	if d.Videos == nil {
		d.Videos = make(map[string]*ChannelVideos)
	}
	if d.Playlists == nil {
		d.Playlists = make(map[string]*PlaylistHistory)
	}
	if d.Quota == nil {
		d.Quota = make(map[string]int)
	}
}

// --- ChannelMapStore implementation ---

func (s *JSONStore) ChannelID(ctx context.Context, input string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if IsCommentKey(input) {
		return "", &StorageError{Op: "read", Entity: "channel", ID: input, Err: ErrNotFound}
	}
	id, ok := s.data.Channels[input]
	if !ok || id == "" {
		return "", &StorageError{Op: "read", Entity: "channel", ID: input, Err: ErrNotFound}
	}
	return id, nil
}

func (s *JSONStore) PutChannelID(ctx context.Context, input, channelID string) error {
	if input == "" || channelID == "" || IsCommentKey(input) {
		return &StorageError{Op: "write", Entity: "channel", ID: input, Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Channels[input] == channelID {
		return nil
	}
	s.data.Channels[input] = channelID
	return s.save()
}

func (s *JSONStore) DeleteChannelID(ctx context.Context, input string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Channels[input]; !ok {
		return &StorageError{Op: "delete", Entity: "channel", ID: input, Err: ErrNotFound}
	}
	delete(s.data.Channels, input)
	return s.save()
}

func (s *JSONStore) ChannelMappings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.data.Channels))
	for k, v := range s.data.Channels {
		if IsCommentKey(k) {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// ClearChannelMappings removes every mapping but keeps comment keys.
func (s *JSONStore) ClearChannelMappings(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.data.Channels {
		if !IsCommentKey(k) {
			delete(s.data.Channels, k)
		}
	}
	return s.save()
}

// --- VideoCacheStore implementation ---

func (s *JSONStore) ChannelVideos(ctx context.Context, channelID string) (*ChannelVideos, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data.Videos[channelID]
	if !ok || entry == nil {
		return nil, &StorageError{Op: "read", Entity: "videos", ID: channelID, Err: ErrNotFound}
	}
	return cloneChannelVideos(entry), nil
}

func (s *JSONStore) PutChannelVideos(ctx context.Context, entry *ChannelVideos) error {
	if entry == nil || entry.ChannelID == "" {
		return &StorageError{Op: "write", Entity: "videos", Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneChannelVideos(entry)
	if stored.FetchedAt.IsZero() {
		stored.FetchedAt = time.Now()
	}
	s.data.Videos[entry.ChannelID] = stored
	return s.save()
}

func (s *JSONStore) DeleteChannelVideos(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Videos[channelID]; !ok {
		return &StorageError{Op: "delete", Entity: "videos", ID: channelID, Err: ErrNotFound}
	}
	delete(s.data.Videos, channelID)
	return s.save()
}

// ListChannelVideos returns every cached entry ordered by channel ID.
func (s *JSONStore) ListChannelVideos(ctx context.Context) ([]*ChannelVideos, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ChannelVideos, 0, len(s.data.Videos))
	for _, id := range sortedKeys(s.data.Videos) {
		if e := s.data.Videos[id]; e != nil {
			out = append(out, cloneChannelVideos(e))
		}
	}
	return out, nil
}

func (s *JSONStore) ClearChannelVideos(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Videos = make(map[string]*ChannelVideos)
	return s.save()
}

func cloneChannelVideos(e *ChannelVideos) *ChannelVideos {
	c := *e
	c.Videos = append([]CachedVideo(nil), e.Videos...)
	return &c
}

// --- HistoryStore implementation ---

func (s *JSONStore) PlaylistHistory(ctx context.Context, title string) (*PlaylistHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data.Playlists[title]
	if !ok || h == nil {
		return nil, &StorageError{Op: "read", Entity: "history", ID: title, Err: ErrNotFound}
	}
	return cloneHistory(h), nil
}

// PutPlaylistHistory stores h, assigning IDs to runs that lack one.
func (s *JSONStore) PutPlaylistHistory(ctx context.Context, h *PlaylistHistory) error {
	if h == nil || h.Title == "" {
		return &StorageError{Op: "write", Entity: "history", Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneHistory(h)
	for i := range stored.Runs {
		if stored.Runs[i].ID == "" {
			stored.Runs[i].ID = uuid.NewString()
		}
	}
	if len(stored.Runs) > MaxRunRecords {
		stored.Runs = stored.Runs[len(stored.Runs)-MaxRunRecords:]
	}
	s.data.Playlists[h.Title] = stored
	return s.save()
}

// ListPlaylistHistory returns histories ordered by title.
func (s *JSONStore) ListPlaylistHistory(ctx context.Context) ([]*PlaylistHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*PlaylistHistory, 0, len(s.data.Playlists))
	for _, title := range sortedKeys(s.data.Playlists) {
		if h := s.data.Playlists[title]; h != nil {
			out = append(out, cloneHistory(h))
		}
	}
	return out, nil
}

func cloneHistory(h *PlaylistHistory) *PlaylistHistory {
	c := *h
	c.Channels = append([]string(nil), h.Channels...)
	c.Runs = append([]RunRecord(nil), h.Runs...)
	return &c
}

// --- QuotaLedger implementation ---

func (s *JSONStore) QuotaUsed(ctx context.Context, day string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Quota[day], nil
}

// SetQuotaUsed records usage for day and drops all but the newest ledgerDays days.
func (s *JSONStore) SetQuotaUsed(ctx context.Context, day string, used int) error {
	if _, err := time.Parse(time.DateOnly, day); err != nil || used < 0 {
		return &StorageError{Op: "write", Entity: "quota", ID: day, Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Quota[day] = used
	if len(s.data.Quota) > ledgerDays {
		days := sortedKeys(s.data.Quota)
		sort.Sort(sort.Reverse(sort.StringSlice(days)))
		for _, d := range days[ledgerDays:] {
			delete(s.data.Quota, d)
		}
	}
	return s.save()
}

var _ Store = (*JSONStore)(nil)
