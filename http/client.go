// Package http provides the HTTP plumbing shared by the Data API client and
// the RSS feed reader: per-host rate limiting, circuit breaking and retries.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"ytplsync/internal/retry"
)

// MaxBodySize caps how much of a response body is read.
const MaxBodySize = 8 << 20

// Client wraps an HTTP client with retry logic and rate limit handling.
type Client struct {
	base      *http.Client
	config    *Config
	transport *Transport
}

// Config holds HTTP client configuration including retry and rate limit settings.
type Config struct {
	// Timeout for individual HTTP requests
	Timeout   time.Duration
	Retry     retry.Config
	UserAgent string

	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	Transport      TransportConfig
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		Retry:          retry.DefaultConfig(),
		UserAgent:      "ytplsync/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Transport:      DefaultTransportConfig(),
	}
}

// New creates a new HTTP client with the given configuration.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	transport := NewTransport(
		newBaseTransport(cfg.Transport),
		NewRateLimiter(cfg.RateLimiter),
		NewCircuitBreaker(cfg.CircuitBreaker),
	)
	transport.UserAgent = cfg.UserAgent

	return &Client{
		base: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config:    cfg,
		transport: transport,
	}
}

// HTTPClient returns the paced *http.Client. The Data API client and the
// OAuth token source are built on it.
func (c *Client) HTTPClient() *http.Client {
	return c.base
}

// Transport returns the pacing transport.
func (c *Client) Transport() *Transport {
	return c.transport
}

// Response represents an HTTP response with status code and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request with retry logic.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Do performs a request, retrying rate limits, 5xx responses and network
// errors. Other non-2xx responses are returned as *HTTPError without retry.
func (c *Client) Do(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) (*Response, error) {
	var out *Response

	err := retry.Do(ctx, c.config.Retry, isRetryableHTTPError, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.base.Do(req)
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				return retry.Permanent(err)
			}
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		if IsRateLimitStatus(resp.StatusCode) {
			return &RateLimitError{
				StatusCode: resp.StatusCode,
				RetryAfter: ParseRetryAfter(resp.Header),
			}
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &HTTPError{StatusCode: resp.StatusCode, URL: urlStr, Body: respBody}
		}

		out = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNoResponse
	}
	return out, nil
}

func isRetryableHTTPError(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return ShouldRetry(httpErr.StatusCode)
	}

	return true
}

// Close closes the HTTP client connections and releases all resources.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
