// Package cache provides in-memory TTL caching with LRU eviction for
// idempotent API responses.
//
// It provides a generic Cache interface with a memory implementation,
// per-entry TTL with lazy expiry, batch LRU eviction under entry-count
// and byte ceilings, and a background sweep that bounds memory held by
// dead entries between accesses.
//
// Callers typically run several independently configured instances, one
// per traffic class, so short-lived playback state never competes with
// long-lived profile data for cache budget.
package cache
