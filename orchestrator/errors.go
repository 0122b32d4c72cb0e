package orchestrator

import "errors"

var (
	// ErrNilRequest indicates Do was called with a nil request.
	ErrNilRequest = errors.New("orchestrator: request is nil")

	// ErrUnknownCache indicates Options named a cache instance the
	// client does not hold.
	ErrUnknownCache = errors.New("orchestrator: unknown cache")
)
