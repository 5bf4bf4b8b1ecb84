package resilience

import (
	"context"
	"time"

	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Retry Policy
// ============================================================================

// RetryConfig tunes a RetryPolicy.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int
	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration
	// Multiplier scales the backoff after each attempt.
	Multiplier float64
}

// DefaultRetryConfig returns the production defaults: three attempts with
// a short exponential backoff, sized for sub-100ms operation budgets.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// RetryPolicy re-attempts retryable failures with exponential backoff.
// Validation errors, open breakers, and corrupt data fail immediately.
type RetryPolicy struct {
	config RetryConfig
	sleep  func(context.Context, time.Duration) error
}

// NewRetryPolicy creates a policy with the given config.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 2.0
	}
	return &RetryPolicy{config: config, sleep: sleepCtx}
}

// Execute runs fn until it succeeds, exhausts the attempt budget, or fails
// with a non-retryable error. The last error is returned.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func(context.Context) error) error {
	backoff := rp.config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < rp.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := rp.sleep(ctx, backoff); err != nil {
				return lastErr
			}
			backoff = time.Duration(float64(backoff) * rp.config.Multiplier)
			if rp.config.MaxBackoff > 0 && backoff > rp.config.MaxBackoff {
				backoff = rp.config.MaxBackoff
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !shared.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ============================================================================
// Guarded Execution
// ============================================================================

// Guard combines a breaker and a retry policy around one dependency. The
// breaker is consulted once per call, not once per attempt, so an open
// breaker is never retried.
type Guard struct {
	Breaker *CircuitBreaker
	Retry   *RetryPolicy
}

// NewGuard wires a breaker and retry policy together with defaults for any
// nil part.
func NewGuard(breaker *CircuitBreaker, retry *RetryPolicy) *Guard {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerConfig())
	}
	if retry == nil {
		retry = NewRetryPolicy(DefaultRetryConfig())
	}
	return &Guard{Breaker: breaker, Retry: retry}
}

// Do executes fn under the breaker and retry policy, recording the outcome.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.Breaker.Allow(); err != nil {
		return err
	}
	err := g.Retry.Execute(ctx, fn)
	if err != nil {
		g.Breaker.RecordFailure()
		return err
	}
	g.Breaker.RecordSuccess()
	return nil
}
