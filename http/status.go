package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// IsClientError checks if status code is a client error (4xx).
func IsClientError(statusCode int) bool {
	return statusCode >= 400 && statusCode < 500
}

// IsServerError checks if status code is a server error (5xx).
func IsServerError(statusCode int) bool {
	return statusCode >= 500 && statusCode < 600
}

// IsRateLimitStatus reports statuses that mean "slow down".
func IsRateLimitStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable
}

// ShouldRetry determines if a request should be retried based on status code.
// 403 is never retried: the Data API uses it for quotaExceeded and forbidden.
func ShouldRetry(statusCode int) bool {
	if IsServerError(statusCode) {
		return true
	}
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}

// ParseRetryAfter reads a Retry-After header given as seconds or an HTTP
// date. It returns 0 when the header is absent or unparseable.
func ParseRetryAfter(header http.Header) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
