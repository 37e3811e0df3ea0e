package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TransportConfig configures connection pooling of the underlying transport.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	ForceAttemptHTTP2   bool
	DisableKeepAlives   bool
}

// DefaultTransportConfig returns pool settings sized for a single-user CLI.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		MaxConnsPerHost:     8,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

func newBaseTransport(cfg TransportConfig) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   cfg.ForceAttemptHTTP2,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
}

// Transport is an http.RoundTripper that paces requests per host and fails
// fast while a host's circuit is open. It never retries and always hands the
// response back untouched, so the Google API client can decode error bodies.
type Transport struct {
	Base      http.RoundTripper
	Limiter   *RateLimiter
	Breaker   *CircuitBreaker
	UserAgent string
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, limiter *RateLimiter, breaker *CircuitBreaker) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Limiter: limiter, Breaker: breaker}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Hostname()
	urlStr := req.URL.String()

	if err := t.Breaker.Allow(host); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	if err := t.Limiter.WaitForBackoff(ctx, urlStr); err != nil {
		t.Breaker.Release(host)
		return nil, err
	}
	if err := t.Limiter.Wait(ctx, urlStr); err != nil {
		t.Breaker.Release(host)
		return nil, err
	}

	if t.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", t.UserAgent)
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			t.Breaker.Release(host)
		} else {
			t.Breaker.RecordFailure(host, err)
		}
		return nil, err
	}

	switch {
	case IsRateLimitStatus(resp.StatusCode):
		retryAfter := t.Limiter.RecordRateLimitError(urlStr, ParseRetryAfter(resp.Header))
		t.Breaker.RecordFailure(host, &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: retryAfter})
	case IsServerError(resp.StatusCode):
		t.Breaker.RecordFailure(host, &HTTPError{StatusCode: resp.StatusCode, URL: urlStr})
	default:
		t.Limiter.RecordSuccess(urlStr)
		t.Breaker.RecordSuccess(host)
	}
	return resp, nil
}

// CloseIdleConnections forwards to the base transport when it supports it.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if c, ok := t.Base.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}
