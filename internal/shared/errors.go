package shared

import (
	"errors"
	"fmt"
)

// ============================================================================
// Error Taxonomy
// ============================================================================

// The engine classifies every failure into one of these categories. Callers
// discriminate with errors.Is; the retry policy consults the category to
// decide whether an operation may be re-attempted.
var (
	// ErrValidation marks bad input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrTimeout marks a latency budget overrun. Retried per policy, then
	// surfaced.
	ErrTimeout = errors.New("operation timed out")

	// ErrCircuitOpen marks a tripped circuit breaker. Fails fast, never
	// retried, and never conflated with not-found or validation.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrResourceExhausted marks a resource limit hit. Triggers the
	// emergency free-resources path before being surfaced.
	ErrResourceExhausted = errors.New("resources exhausted")

	// ErrNotFound marks an absent record.
	ErrNotFound = errors.New("record not found")

	// ErrSerialization marks a corrupt embedding or metadata document. It
	// signals data corruption and is never retried.
	ErrSerialization = errors.New("serialization error")
)

// Validationf wraps ErrValidation with formatted context.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Timeoutf wraps ErrTimeout with formatted context.
func Timeoutf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrTimeout, fmt.Sprintf(format, args...))
}

// Exhaustedf wraps ErrResourceExhausted with formatted context.
func Exhaustedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrResourceExhausted, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with formatted context.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Serializationf wraps ErrSerialization with formatted context.
func Serializationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
}

// Retryable reports whether an error category may be re-attempted. Only
// timeouts qualify; an open breaker and bad input must fail immediately.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrSerialization) || errors.Is(err, ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrTimeout)
}
