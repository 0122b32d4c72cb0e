package cache

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
	ErrClosed     = errors.New("cache: cache is closed")
)

// Cache is the interface for caching API response values.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Expiry: an entry must never be returned after its TTL has elapsed.
// - Errors: Get should never error; it returns (zero, false) on miss.
type Cache[V any] interface {
	// Get retrieves a cached value. Returns (zero, false) on miss or expiry.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores a value with the given TTL. TTL<=0 falls back to the
	// instance default; a zero default means no caching.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Has reports whether a fresh entry exists without touching recency.
	Has(ctx context.Context, key string) bool

	// Delete removes a cached value. Returns true if an entry was removed.
	Delete(ctx context.Context, key string) bool

	// Clear removes all entries.
	Clear(ctx context.Context)

	// Stats returns a snapshot of cache counters.
	Stats() Stats
}

// Stats is a point-in-time snapshot of cache counters.
//
// HitRate is rounded for reporting only and must never drive control
// decisions.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Size        int
	Bytes       int64
	HitRate     float64
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

// hitRate computes hits/(hits+misses) rounded to 2 decimals.
func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*100) / 100
}
