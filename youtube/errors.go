package youtube

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"

	ythttp "ytplsync/http"
	"ytplsync/internal/retry"
)

// Sentinel errors for Data API and feed operations.
var (
	ErrChannelNotFound  = errors.New("youtube: channel not found")
	ErrPlaylistNotFound = errors.New("youtube: playlist not found")
	ErrInvalidURL       = errors.New("youtube: invalid URL")
	ErrRateLimited      = errors.New("youtube: rate limited")
	// ErrQuotaExceeded means the server refused a call because the daily
	// quota is spent. It is never retried.
	ErrQuotaExceeded = errors.New("youtube: daily quota exceeded")
	// ErrQuotaBudget means the local tracker refused to spend more units.
	ErrQuotaBudget = errors.New("youtube: quota budget exhausted")
	// ErrVideoUnavailable covers videos that cannot be added to a playlist:
	// deleted, private or otherwise forbidden.
	ErrVideoUnavailable = errors.New("youtube: video unavailable")
)

// Data API error reasons handled specially.
const (
	ReasonQuotaExceeded      = "quotaExceeded"
	ReasonDailyLimitExceeded = "dailyLimitExceeded"
	ReasonRateLimitExceeded  = "rateLimitExceeded"
	ReasonUserRateLimit      = "userRateLimitExceeded"
	ReasonBackendError       = "backendError"
	ReasonInternalError      = "internalError"
	ReasonVideoNotFound      = "videoNotFound"
	ReasonForbidden          = "forbidden"
	ReasonItemsNotAccessible = "playlistItemsNotAccessible"
	ReasonVideoNotPlayable   = "videoNotPlayable"
	ReasonPlaylistNotFound   = "playlistNotFound"
	ReasonChannelNotFound    = "channelNotFound"
	ReasonDuplicate          = "videoAlreadyInPlaylist"
)

// APIError wraps a Data API failure with the operation that produced it.
// Use errors.As() to extract the reason:
//
//	var apiErr *youtube.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s failed: %s (HTTP %d)\n", apiErr.Op, apiErr.Reason, apiErr.Code)
//	}
type APIError struct {
	// Op is the client operation ("channels.list", "playlistItems.insert", ...).
	Op string
	// Reason is the first error reason reported by the server, if any.
	Reason string
	// Code is the HTTP status code, 0 for transport failures.
	Code int
	// Err is the underlying error.
	Err error
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube: %s: %s (HTTP %d): %v", e.Op, e.Reason, e.Code, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("youtube: %s: HTTP %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("youtube: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is maps server reasons onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.Reason == ReasonQuotaExceeded || e.Reason == ReasonDailyLimitExceeded
	case ErrVideoUnavailable:
		switch e.Reason {
		case ReasonVideoNotFound, ReasonForbidden, ReasonItemsNotAccessible, ReasonVideoNotPlayable:
			return true
		}
	case ErrPlaylistNotFound:
		return e.Reason == ReasonPlaylistNotFound
	case ErrChannelNotFound:
		return e.Reason == ReasonChannelNotFound
	case ErrRateLimited:
		return e.Reason == ReasonRateLimitExceeded || e.Reason == ReasonUserRateLimit || e.Code == 429
	}
	return false
}

// wrapAPIError annotates err with op and the server's reason.
func wrapAPIError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	out := &APIError{Op: op, Err: err}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		out.Code = gErr.Code
		if len(gErr.Errors) > 0 {
			out.Reason = gErr.Errors[0].Reason
		}
	}
	return out
}

// hasResponse reports whether err came back from the server, as opposed to
// failing before a response arrived.
func hasResponse(err error) bool {
	if err == nil {
		return true
	}
	var gErr *googleapi.Error
	return errors.As(err, &gErr)
}

// IsRetryableAPIError classifies Data API errors for retry.Do: 5xx and the
// rate limit and backend reasons are retried, quota and client errors are not.
func IsRetryableAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrQuotaBudget) {
		return false
	}
	if errors.Is(err, ythttp.ErrCircuitOpen) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		switch apiErr.Reason {
		case ReasonRateLimitExceeded, ReasonUserRateLimit, ReasonBackendError, ReasonInternalError:
			return true
		}
		return apiErr.Code >= 500 || apiErr.Code == 429
	}

	// No server response: network trouble.
	return retry.IsRetryable(err)
}
