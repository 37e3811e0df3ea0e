package http

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal state where requests are allowed.
	CircuitClosed CircuitState = iota
	// CircuitOpen is the state where requests fail fast.
	CircuitOpen
	// CircuitHalfOpen lets a probe request through.
	CircuitHalfOpen
)

// String returns the string representation of a circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30 * time.Second
	DefaultHalfOpenMaxRequests = 1
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures to open the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a probe.
	RecoveryTimeout time.Duration
	// HalfOpenMaxRequests is the number of probes allowed while half-open.
	HalfOpenMaxRequests int
	// IsTransientError decides which failures count. Nil counts all of them.
	IsTransientError func(error) bool
}

// DefaultCircuitBreakerConfig returns the defaults used by the transport.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    DefaultFailureThreshold,
		RecoveryTimeout:     DefaultRecoveryTimeout,
		HalfOpenMaxRequests: DefaultHalfOpenMaxRequests,
		IsTransientError:    IsTransientHTTPError,
	}
}

type circuitState struct {
	state             CircuitState
	consecutiveErrors int
	lastError         time.Time
	lastStateChange   time.Time
	halfOpenRequests  int
}

// CircuitBreaker fails requests to a host fast once it has failed
// FailureThreshold times in a row, so a run that hits a Google outage stops
// quickly instead of retrying every call.
type CircuitBreaker struct {
	circuits map[string]*circuitState
	mu       sync.Mutex
	config   CircuitBreakerConfig
	now      func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}

	return &CircuitBreaker{
		circuits: make(map[string]*circuitState),
		config:   cfg,
		now:      time.Now,
	}
}

// Allow returns nil if a request to host may proceed, ErrCircuitOpen otherwise.
func (cb *CircuitBreaker) Allow(host string) error {
	if cb == nil {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.circuit(host)

	switch circuit.state {
	case CircuitOpen:
		if cb.now().Sub(circuit.lastStateChange) >= cb.config.RecoveryTimeout {
			// This request is the first probe.
			circuit.state = CircuitHalfOpen
			circuit.lastStateChange = cb.now()
			circuit.halfOpenRequests = 1
			return nil
		}
		return ErrCircuitOpen

	case CircuitHalfOpen:
		if circuit.halfOpenRequests < cb.config.HalfOpenMaxRequests {
			circuit.halfOpenRequests++
			return nil
		}
		return ErrCircuitOpen

	default:
		return nil
	}
}

// RecordSuccess closes a half-open circuit and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess(host string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.circuit(host)
	if circuit.state == CircuitHalfOpen {
		circuit.state = CircuitClosed
		circuit.lastStateChange = cb.now()
		circuit.halfOpenRequests = 0
	}
	circuit.consecutiveErrors = 0
}

// RecordFailure counts a transient failure and opens the circuit at the threshold.
func (cb *CircuitBreaker) RecordFailure(host string, err error) {
	if cb == nil {
		return
	}
	if cb.config.IsTransientError != nil && !cb.config.IsTransientError(err) {
		cb.Release(host)
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.circuit(host)
	circuit.consecutiveErrors++
	circuit.lastError = cb.now()

	switch circuit.state {
	case CircuitClosed:
		if circuit.consecutiveErrors >= cb.config.FailureThreshold {
			circuit.state = CircuitOpen
			circuit.lastStateChange = cb.now()
		}
	case CircuitHalfOpen:
		circuit.state = CircuitOpen
		circuit.lastStateChange = cb.now()
	}
}

// Release returns a half-open probe slot taken by Allow for a request that
// ended without an outcome, such as one canceled by its caller.
func (cb *CircuitBreaker) Release(host string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.circuit(host)
	if circuit.state == CircuitHalfOpen && circuit.halfOpenRequests > 0 {
		circuit.halfOpenRequests--
	}
}

// GetState returns the current state of the circuit for host.
func (cb *CircuitBreaker) GetState(host string) CircuitState {
	return cb.Stats(host).State
}

// CircuitStats contains statistics about a circuit's state.
type CircuitStats struct {
	State             CircuitState
	ConsecutiveErrors int
	LastError         time.Time
	LastStateChange   time.Time
}

// Stats returns a snapshot of host's circuit. An open circuit whose recovery
// timeout has passed reports half-open.
func (cb *CircuitBreaker) Stats(host string) CircuitStats {
	if cb == nil {
		return CircuitStats{State: CircuitClosed}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit, exists := cb.circuits[host]
	if !exists {
		return CircuitStats{State: CircuitClosed}
	}

	state := circuit.state
	if state == CircuitOpen && cb.now().Sub(circuit.lastStateChange) >= cb.config.RecoveryTimeout {
		state = CircuitHalfOpen
	}

	return CircuitStats{
		State:             state,
		ConsecutiveErrors: circuit.consecutiveErrors,
		LastError:         circuit.lastError,
		LastStateChange:   circuit.lastStateChange,
	}
}

// Reset closes the circuit for host.
func (cb *CircuitBreaker) Reset(host string) {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, host)
}

// circuit must be called with mutex held.
func (cb *CircuitBreaker) circuit(host string) *circuitState {
	circuit, exists := cb.circuits[host]
	if !exists {
		circuit = &circuitState{
			state:           CircuitClosed,
			lastStateChange: cb.now(),
		}
		cb.circuits[host] = circuit
	}
	return circuit
}

// IsTransientHTTPError reports whether err should count against a circuit:
// network errors, rate limits and 5xx responses. Other 4xx responses are the
// caller's fault and leave the circuit alone.
func IsTransientHTTPError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return IsServerError(httpErr.StatusCode) || httpErr.StatusCode == 429
	}

	return true
}
