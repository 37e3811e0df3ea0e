// Package storage persists ytplsync state: channel ID mappings, cached channel
// uploads, per-playlist run history and the quota ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common storage conditions.
var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyExists indicates the entity already exists in storage.
	ErrAlreadyExists = errors.New("storage: already exists")
	// ErrInvalidInput indicates invalid or malformed input was provided.
	ErrInvalidInput = errors.New("storage: invalid input")
	// ErrStorageCorrupt indicates the state file could not be decoded.
	ErrStorageCorrupt = errors.New("storage: data corruption detected")
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = errors.New("storage: lock acquisition timeout")
)

// StorageError wraps storage errors with operation and entity context.
// Use errors.As() to extract this error type and get operation details:
//
//	var storErr *storage.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("Failed to %s %s %s: %v\n", storErr.Op, storErr.Entity, storErr.ID, storErr.Err)
//	}
type StorageError struct {
	// Op is the operation that failed ("read", "write", "delete", "lock").
	Op string
	// Entity is the entity type ("channel", "videos", "history", "quota", "store").
	Entity string
	// ID is the entity key if applicable.
	ID string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the storage error.
func (e *StorageError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("storage: %s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the full state store. Implementations must be safe for concurrent use.
type Store interface {
	ChannelMapStore
	VideoCacheStore
	HistoryStore
	QuotaLedger

	// Clear drops channel mappings and cached uploads. Run history and the
	// quota ledger are kept.
	Clear(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// ChannelMapStore maps user input (names, handles, URLs) to channel IDs.
type ChannelMapStore interface {
	ChannelID(ctx context.Context, input string) (string, error)
	PutChannelID(ctx context.Context, input, channelID string) error
	DeleteChannelID(ctx context.Context, input string) error
	// ChannelMappings returns every mapping except comment keys.
	ChannelMappings(ctx context.Context) (map[string]string, error)
	ClearChannelMappings(ctx context.Context) error
}

// VideoCacheStore caches a channel's uploads since some date.
type VideoCacheStore interface {
	ChannelVideos(ctx context.Context, channelID string) (*ChannelVideos, error)
	PutChannelVideos(ctx context.Context, entry *ChannelVideos) error
	DeleteChannelVideos(ctx context.Context, channelID string) error
	ListChannelVideos(ctx context.Context) ([]*ChannelVideos, error)
	ClearChannelVideos(ctx context.Context) error
}

// HistoryStore records sync runs per target playlist title.
type HistoryStore interface {
	PlaylistHistory(ctx context.Context, title string) (*PlaylistHistory, error)
	PutPlaylistHistory(ctx context.Context, h *PlaylistHistory) error
	ListPlaylistHistory(ctx context.Context) ([]*PlaylistHistory, error)
}

// QuotaLedger records Data API units spent per quota day (YYYY-MM-DD).
type QuotaLedger interface {
	QuotaUsed(ctx context.Context, day string) (int, error)
	SetQuotaUsed(ctx context.Context, day string, used int) error
}
