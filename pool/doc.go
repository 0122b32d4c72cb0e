// Package pool provides a bounded executor for outbound HTTP requests.
//
// The pool caps concurrent in-flight requests, queues excess work by
// priority (high > normal > low, FIFO within a tier), retries retryable
// failures with exponential backoff, and opens a circuit breaker after
// repeated consecutive failures so a struggling provider is not hammered.
//
// Load shedding is explicit: when the queue is full, Execute fails
// immediately with ErrQueueFull rather than dropping work silently.
package pool
