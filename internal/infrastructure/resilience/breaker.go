// Package resilience provides the fault-tolerance primitives shared by every
// guarded dependency: a circuit breaker and a bounded retry policy. One
// breaker instance guards one operation class.
package resilience

import (
	"sync"
	"time"

	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Circuit Breaker
// ============================================================================

// BreakerState is the current position of the breaker state machine.
type BreakerState string

const (
	// StateClosed lets calls through and counts consecutive failures.
	StateClosed BreakerState = "closed"
	// StateOpen fails every call fast until the recovery timeout elapses.
	StateOpen BreakerState = "open"
	// StateHalfOpen lets probe calls through; successes close the breaker,
	// any failure reopens it.
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig tunes a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before allowing
	// a half-open probe.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the number of consecutive half-open successes
	// required to close the breaker again.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 10,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
	}
}

// CircuitBreaker guards one dependency. Safe for concurrent use.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      BreakerConfig
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
	lastSuccess time.Time
	now         func() time.Time
}

// NewCircuitBreaker creates a closed breaker with the given config.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 10
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 3
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed right now. An open breaker whose
// recovery timeout has elapsed transitions to half-open and admits the probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			return nil
		}
		return shared.ErrCircuitOpen
	}
	return nil
}

// RecordSuccess feeds a successful call into the state machine.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastSuccess = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

// RecordFailure feeds a failed call into the state machine.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.successes = 0
	}
}

// State returns the current state, applying the open -> half-open timeout
// transition so observers see the same state a call would.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
		cb.state = StateHalfOpen
		cb.successes = 0
	}
	return cb.state
}

// Snapshot returns the breaker counters for metrics reporting.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		State:       cb.state,
		Failures:    cb.failures,
		Successes:   cb.successes,
		LastFailure: cb.lastFailure,
		LastSuccess: cb.lastSuccess,
	}
}

// BreakerSnapshot is a point-in-time copy of the breaker counters.
type BreakerSnapshot struct {
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	Successes   int          `json:"successes"`
	LastFailure time.Time    `json:"lastFailure"`
	LastSuccess time.Time    `json:"lastSuccess"`
}
