package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is returned when a request is denied by the limiter.
var ErrRateLimited = errors.New("ratelimit: rate limited")

// LimitError is a typed denial carrying the wait hint for the caller.
type LimitError struct {
	// Identity is the caller the denial applies to; empty for a global
	// backoff denial.
	Identity string

	// RetryAfter is how long to wait before the next attempt may succeed.
	RetryAfter time.Duration

	// Global reports whether the global ceiling, not the caller's own
	// budget, caused the denial.
	Global bool
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	scope := "identity " + e.Identity
	if e.Global {
		scope = "global ceiling"
	}
	return fmt.Sprintf("ratelimit: denied by %s, retry after %s", scope, e.RetryAfter)
}

// Is lets errors.Is match against ErrRateLimited.
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}
