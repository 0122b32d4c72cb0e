package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Config configures the limiter. All fields are tunables, not baked-in
// constants; the defaults only stand in until the remote provider's real
// limits are measured.
type Config struct {
	// Capacity is the per-identity token bucket capacity.
	// Default: 10
	Capacity float64

	// RefillRate is the number of tokens restored per full Window.
	// Default: Capacity
	RefillRate float64

	// Window is the measurement window for both per-identity and global
	// request counting.
	// Default: 1 minute
	Window time.Duration

	// IdentityLimit is the max requests one identity may make per window.
	// Default: 30
	IdentityLimit int

	// GlobalLimit is the max requests across all identities per window.
	// Default: 100
	GlobalLimit int

	// GlobalBackoff is how long all traffic is denied after the global
	// ceiling is exceeded.
	// Default: 60 seconds
	GlobalBackoff time.Duration

	// GCInterval is how often idle buckets are purged.
	// Zero means Window; negative disables the purge loop.
	GCInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 10
	}
	if c.RefillRate <= 0 {
		c.RefillRate = c.Capacity
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.IdentityLimit <= 0 {
		c.IdentityLimit = 30
	}
	if c.GlobalLimit <= 0 {
		c.GlobalLimit = 100
	}
	if c.GlobalBackoff <= 0 {
		c.GlobalBackoff = 60 * time.Second
	}
	if c.GCInterval == 0 {
		c.GCInterval = c.Window
	}
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed bool

	// RetryAfter is set on denial: how long until the caller's window
	// resets (or the global backoff clears).
	RetryAfter time.Duration

	// Remaining is the caller's token count after admission.
	Remaining float64

	// Global is set on denial when the global ceiling or backoff, not
	// the caller's own bucket, denied the request.
	Global bool
}

// Err converts a denial into a *LimitError. Returns nil when allowed.
func (d Decision) Err(identity string) error {
	if d.Allowed {
		return nil
	}
	return &LimitError{Identity: identity, RetryAfter: d.RetryAfter, Global: d.Global}
}

// bucket is the per-identity state, created lazily on first sight.
type bucket struct {
	tokens      float64
	lastRefill  time.Time
	windowCount int
	windowStart time.Time
}

// globalState is the process-wide window counter and backoff latch.
type globalState struct {
	windowCount  int
	windowStart  time.Time
	backoffUntil time.Time
}

// Limiter admits or denies requests per caller identity and globally.
// Safe for concurrent use.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
	global  globalState

	stop      chan struct{}
	closeOnce sync.Once
}

// NewLimiter creates a limiter and starts its idle-bucket purge loop.
// Call Close to stop the loop.
func NewLimiter(cfg Config) *Limiter {
	cfg.applyDefaults()

	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	l.global.windowStart = time.Now()

	if cfg.GCInterval > 0 {
		go l.gcLoop(cfg.GCInterval)
	}

	return l
}

// Allow decides whether a request for the given identity may proceed now.
func (l *Limiter) Allow(identity string) Decision {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// 1. Active global backoff denies everything immediately.
	if now.Before(l.global.backoffUntil) {
		return Decision{RetryAfter: l.global.backoffUntil.Sub(now), Global: true}
	}

	// 2. Roll the global window forward.
	if now.Sub(l.global.windowStart) > l.cfg.Window {
		l.global.windowCount = 0
		l.global.windowStart = now
	}

	// 3. Global ceiling opens a backoff window.
	if l.global.windowCount >= l.cfg.GlobalLimit {
		l.global.backoffUntil = now.Add(l.cfg.GlobalBackoff)
		return Decision{RetryAfter: l.cfg.GlobalBackoff, Global: true}
	}

	// 4. Lazily create the caller's bucket at full capacity.
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{
			tokens:      l.cfg.Capacity,
			lastRefill:  now,
			windowStart: now,
		}
		l.buckets[identity] = b
	}

	// 5. Refill by whole tokens earned since the last refill. The clock
	// only advances when at least one whole token accrued, so frequent
	// sub-interval calls cannot truncate the refill to zero forever.
	elapsed := now.Sub(b.lastRefill)
	earned := math.Floor(elapsed.Seconds() / l.cfg.Window.Seconds() * l.cfg.RefillRate)
	if earned > 0 {
		b.tokens = math.Min(l.cfg.Capacity, b.tokens+earned)
		b.lastRefill = now
	}

	// 6. Roll the caller's window forward.
	if now.Sub(b.windowStart) > l.cfg.Window {
		b.windowCount = 0
		b.windowStart = now
	}

	// 7. Admit iff a token is available and the window has headroom.
	if b.tokens >= 1 && b.windowCount < l.cfg.IdentityLimit {
		b.tokens--
		b.windowCount++
		l.global.windowCount++
		return Decision{Allowed: true, Remaining: b.tokens}
	}

	return Decision{RetryAfter: b.windowStart.Add(l.cfg.Window).Sub(now)}
}

// Status is a read-only snapshot for observability.
type Status struct {
	// Tracked reports whether the identity has a live bucket.
	Tracked      bool
	Tokens       float64
	WindowCount  int
	GlobalCount  int
	GlobalBacked bool
}

// Status reports the current state for an identity without creating a
// bucket or consuming anything.
func (l *Limiter) Status(identity string) Status {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	s := Status{
		GlobalCount:  l.global.windowCount,
		GlobalBacked: now.Before(l.global.backoffUntil),
	}
	if b, ok := l.buckets[identity]; ok {
		s.Tracked = true
		s.Tokens = b.tokens
		s.WindowCount = b.windowCount
	}
	return s
}

// Close stops the purge loop. Safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
}

func (l *Limiter) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.purgeIdle()
		}
	}
}

// purgeIdle drops buckets with no refill activity for two windows,
// bounding memory under churn of many distinct identities.
func (l *Limiter) purgeIdle() {
	now := time.Now()
	idle := 2 * l.cfg.Window

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, b := range l.buckets {
		if now.Sub(b.lastRefill) > idle {
			delete(l.buckets, id)
		}
	}
}
