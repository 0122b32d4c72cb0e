// Package orchestrator is the front door of the access layer. A Client
// routes each request through its caches, the rate limiter, and the
// connection pool in that order, deduplicating identical concurrent
// requests so N callers asking for the same resource produce one
// network call.
//
// Side effects are scoped: a cache hit never consults the rate limiter,
// and a rate limit denial never reaches the pool.
package orchestrator
