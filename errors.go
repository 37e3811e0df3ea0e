package ytplsync

import (
	"errors"

	"ytplsync/internal/retry"
	"ytplsync/storage"
	"ytplsync/youtube"
)

// Error handling types exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, ytplsync.ErrQuotaExceeded) {
//		fmt.Println("Daily quota used up, try again tomorrow")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var apiErr *ytplsync.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s failed: %s (HTTP %d)\n", apiErr.Op, apiErr.Reason, apiErr.Code)
//	}

// Type aliases for convenient error handling.
type (
	// APIError wraps a failed Data API call with its reason code.
	APIError = youtube.APIError
	// ListerError wraps errors during upload listing.
	ListerError = youtube.ListerError
	// ExhaustedError wraps the last error once retries run out.
	ExhaustedError = retry.ExhaustedError
	// StorageError wraps errors during storage operations.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	ErrChannelNotFound  = youtube.ErrChannelNotFound
	ErrPlaylistNotFound = youtube.ErrPlaylistNotFound
	ErrInvalidURL       = youtube.ErrInvalidURL
	ErrRateLimited      = youtube.ErrRateLimited
	// ErrQuotaExceeded is returned once the server refuses calls for lack of quota.
	ErrQuotaExceeded = youtube.ErrQuotaExceeded
	// ErrQuotaBudget is returned when a call would overspend the local budget.
	ErrQuotaBudget      = youtube.ErrQuotaBudget
	ErrVideoUnavailable = youtube.ErrVideoUnavailable

	// Storage errors
	ErrNotFound       = storage.ErrNotFound
	ErrInvalidInput   = storage.ErrInvalidInput
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	ErrLockTimeout    = storage.ErrLockTimeout
)

// IsRetryable reports whether a failed Data API call is worth retrying.
func IsRetryable(err error) bool {
	return youtube.IsRetryableAPIError(err)
}

// IsQuotaError reports whether err means no more units can be spent today.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrQuotaBudget)
}
