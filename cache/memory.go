package cache

import (
	"context"
	"sync"
	"time"
)

// Default sizing for memory cache instances.
const (
	// DefaultMaxEntries is the entry-count ceiling when none is configured.
	DefaultMaxEntries = 1000
	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = 60 * time.Second
	// evictionFraction is the share of entries removed per batch eviction.
	evictionFraction = 10
)

// Config configures a MemoryCache instance.
type Config[V any] struct {
	// Policy controls default and maximum TTLs.
	Policy Policy

	// MaxEntries is the entry-count ceiling. Default: 1000.
	MaxEntries int

	// MaxBytes is the approximate memory ceiling as measured by Cost.
	// Zero means no byte ceiling.
	MaxBytes int64

	// SweepInterval is the background expiry sweep period.
	// Zero means DefaultSweepInterval; negative disables the sweep.
	SweepInterval time.Duration

	// Cost estimates the memory footprint of a value for the byte
	// ceiling. Nil means every entry costs 1.
	Cost func(V) int64
}

// MemoryCache is an in-memory TTL+LRU cache implementation.
type MemoryCache[V any] struct {
	cfg Config[V]

	mu      sync.Mutex
	entries map[string]*memEntry[V]
	// Intrusive recency list: head is most recently used, tail is the
	// eviction candidate.
	head, tail *memEntry[V]
	bytes      int64

	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	stop      chan struct{}
	closeOnce sync.Once
}

type memEntry[V any] struct {
	key         string
	value       V
	cost        int64
	createdAt   time.Time
	ttl         time.Duration
	accessCount int64
	lastAccess  time.Time

	prev, next *memEntry[V]
}

func (e *memEntry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// NewMemoryCache creates a new in-memory cache with the given config and
// starts its background sweep. Call Close to stop the sweep.
func NewMemoryCache[V any](cfg Config[V]) *MemoryCache[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Cost == nil {
		cfg.Cost = func(V) int64 { return 1 }
	}

	c := &MemoryCache[V]{
		cfg:     cfg,
		entries: make(map[string]*memEntry[V]),
		stop:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop(cfg.SweepInterval)
	}

	return c
}

// Get retrieves a value and promotes it in the recency list.
// Expired entries are deleted lazily and counted as misses.
func (c *MemoryCache[V]) Get(_ context.Context, key string) (V, bool) {
	var zero V
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	if e.expired(now) {
		c.removeLocked(e)
		c.expirations++
		c.misses++
		return zero, false
	}

	e.accessCount++
	e.lastAccess = now
	c.moveToFrontLocked(e)
	c.hits++
	return e.value, true
}

// Set stores a value under the policy's effective TTL, evicting the
// least-recently-used batch first when a ceiling would be exceeded.
func (c *MemoryCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ttl = c.cfg.Policy.EffectiveTTL(ttl)
	if ttl <= 0 {
		return nil
	}

	cost := c.cfg.Cost(value)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictBatchLocked()
	}
	if c.cfg.MaxBytes > 0 {
		for c.bytes+cost > c.cfg.MaxBytes && c.tail != nil {
			c.evictBatchLocked()
		}
	}

	e := &memEntry[V]{
		key:         key,
		value:       value,
		cost:        cost,
		createdAt:   now,
		ttl:         ttl,
		accessCount: 0,
		lastAccess:  now,
	}
	c.entries[key] = e
	c.pushFrontLocked(e)
	c.bytes += cost

	return nil
}

// Has reports whether a fresh entry exists. It does not update recency,
// but it does lazily drop an expired entry it encounters.
func (c *MemoryCache[V]) Has(_ context.Context, key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if e.expired(now) {
		c.removeLocked(e)
		c.expirations++
		return false
	}
	return true
}

// Delete removes a cached value. Idempotent.
func (c *MemoryCache[V]) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(e)
	return true
}

// Clear removes all entries and resets byte accounting. Counters survive.
func (c *MemoryCache[V]) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*memEntry[V])
	c.head = nil
	c.tail = nil
	c.bytes = 0
}

// Stats returns a snapshot of cache counters.
func (c *MemoryCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Size:        len(c.entries),
		Bytes:       c.bytes,
		HitRate:     hitRate(c.hits, c.misses),
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *MemoryCache[V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

// evictBatchLocked removes the least-recently-used tenth of entries,
// at minimum one. Batch eviction amortizes eviction cost under churn.
func (c *MemoryCache[V]) evictBatchLocked() {
	n := len(c.entries) / evictionFraction
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && c.tail != nil; i++ {
		c.removeLocked(c.tail)
		c.evictions++
	}
}

func (c *MemoryCache[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes expired entries independent of access.
func (c *MemoryCache[V]) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(e)
			c.expirations++
		}
	}
}

func (c *MemoryCache[V]) pushFrontLocked(e *memEntry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *MemoryCache[V]) moveToFrontLocked(e *memEntry[V]) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushFrontLocked(e)
}

func (c *MemoryCache[V]) unlinkLocked(e *memEntry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *MemoryCache[V]) removeLocked(e *memEntry[V]) {
	delete(c.entries, e.key)
	c.unlinkLocked(e)
	c.bytes -= e.cost
}

// Ensure MemoryCache implements Cache
var _ Cache[[]byte] = (*MemoryCache[[]byte])(nil)
