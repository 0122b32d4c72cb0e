package pool

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for pool operations.
var (
	// ErrQueueFull is returned when the wait queue is at capacity.
	ErrQueueFull = errors.New("pool: queue full")

	// ErrTimeout is returned when a request attempt exceeds its deadline.
	ErrTimeout = errors.New("pool: request timed out")

	// ErrCircuitOpen is the match target for circuit-open failures.
	ErrCircuitOpen = errors.New("pool: circuit open")

	// ErrClosed is returned when the pool has been shut down.
	ErrClosed = errors.New("pool: pool is closed")
)

// CircuitOpenError is a fail-fast rejection while the breaker is open.
// It always carries a concrete wait hint.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("pool: circuit open, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// Is lets errors.Is match against ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// ErrorKind classifies a request failure.
type ErrorKind string

const (
	// KindTransient covers transport failures and timeouts.
	KindTransient ErrorKind = "transient"
	// KindClient covers HTTP 4xx other than 429. Never retried.
	KindClient ErrorKind = "client"
	// KindServer covers HTTP 5xx and 429. Retried up to the budget.
	KindServer ErrorKind = "server"
)

// RequestError is a classified request failure. Retryable kinds are only
// surfaced once the retry budget is exhausted; terminal kinds propagate
// immediately with their classification intact.
type RequestError struct {
	Kind       ErrorKind
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	Cause      error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := fmt.Sprintf("pool: %s error for %s %s", e.Kind, e.Method, e.URL)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure may succeed on retry.
func (e *RequestError) Retryable() bool {
	return e.Kind != KindClient
}

// Retryable reports whether an error is worth retrying: transport
// failures, timeouts, HTTP 5xx and HTTP 429. Client errors (other 4xx),
// cancellations, and pool rejections are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrClosed) {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable()
	}
	return false
}
