package provider

import (
	"errors"
	"sync"
	"time"
)

// CircuitState identifies the breaker's position.
type CircuitState int

const (
	// CircuitClosed passes all requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single probe request test recovery.
	CircuitHalfOpen
)

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

// CircuitBreakerConfig configures the breaker. Zero values select defaults.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive outage failures before opening (default: 5)
	SuccessThreshold int           // healthy responses to close from half-open (default: 2)
	CoolDown         time.Duration // open duration before probing (default: 30s)
}

// DefaultCircuitBreakerConfig returns the defaults used by the generation path.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		CoolDown:         30 * time.Second,
	}
}

// ErrCircuitOpen is returned while the breaker is rejecting requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker shields the generation path from a model endpoint that is
// rejecting traffic. Failures are classified the same way the retry layer
// classifies them: only outage-class errors (rate limits, 5xx, network)
// count toward opening, because a permanent request error says nothing
// about endpoint health. While half-open, exactly one probe request is in
// flight at a time; its outcome decides between closing and re-opening.
type CircuitBreaker struct {
	mu sync.Mutex

	state      CircuitState
	outages    int       // consecutive outage-class failures while closed
	recoveries int       // healthy responses while half-open
	probing    bool      // a half-open probe is in flight
	reopenAt   time.Time // when an open circuit may probe again

	failureThreshold int
	successThreshold int
	coolDown         time.Duration
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}

	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		coolDown:         cfg.CoolDown,
	}
}

// Allow reports whether a request may proceed. An open circuit whose
// cool-down has elapsed admits the caller as the half-open probe; further
// callers are rejected until that probe's outcome is recorded.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Now().Before(cb.reopenAt) {
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.recoveries = 0
		cb.probing = true
		return nil
	case CircuitHalfOpen:
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
		return nil
	}
	return nil
}

// Record feeds one request outcome into the breaker. A nil error or a
// permanent request error both show the endpoint answering, so both count
// as healthy; only outage-class errors move the breaker toward open.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if err != nil && retryableError(err) {
		switch cb.state {
		case CircuitClosed:
			cb.outages++
			if cb.outages >= cb.failureThreshold {
				cb.trip()
			}
		case CircuitHalfOpen:
			cb.trip()
		}
		return
	}

	switch cb.state {
	case CircuitClosed:
		cb.outages = 0
	case CircuitHalfOpen:
		cb.recoveries++
		if cb.recoveries >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.outages = 0
			cb.recoveries = 0
		}
	}
}

// trip opens the circuit and starts the cool-down. Caller holds the lock.
func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.reopenAt = time.Now().Add(cb.coolDown)
	cb.outages = 0
	cb.recoveries = 0
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.outages = 0
	cb.recoveries = 0
	cb.probing = false
	cb.reopenAt = time.Time{}
}
