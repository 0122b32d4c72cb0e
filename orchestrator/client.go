package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/soundcheck-labs/backline/cache"
	"github.com/soundcheck-labs/backline/observe"
	"github.com/soundcheck-labs/backline/pool"
	"github.com/soundcheck-labs/backline/ratelimit"
)

// Well-known cache instance names, one per traffic class.
const (
	// CacheLive holds short-lived playback and presence state.
	CacheLive = "live"
	// CacheCatalog holds medium-lived library and catalog data.
	CacheCatalog = "catalog"
	// CacheProfile holds long-lived user profile data.
	CacheProfile = "profile"
)

// DefaultDedupWindow is how long a completed result is shared with
// later identical requests.
const DefaultDedupWindow = 10 * time.Second

// Options controls how Do treats one request.
type Options struct {
	// Identity keys the rate limiter. Empty skips the admission check.
	Identity string

	// CacheKey enables read-through caching. Empty disables it.
	CacheKey string

	// CacheTTL overrides the cache instance's default TTL.
	CacheTTL time.Duration

	// CacheName selects the cache instance. Empty means CacheCatalog.
	CacheName string
}

// Client routes requests through cache, rate limiter, and pool.
// Safe for concurrent use.
type Client struct {
	caches  map[string]cache.Cache[*pool.Response]
	limiter *ratelimit.Limiter
	pool    *pool.Pool
	log     observe.Logger
	metrics observe.Metrics
	dedup   *deduper

	dedupWindow  time.Duration
	dedupMethods map[string]bool
}

// Option customizes a Client.
type Option func(*Client)

// WithCache registers a named cache instance. May be given more than
// once; registering any cache suppresses the built-in defaults.
func WithCache(name string, store cache.Cache[*pool.Response]) Option {
	return func(c *Client) { c.caches[name] = store }
}

// WithLimiter replaces the default rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithPool replaces the default connection pool.
func WithPool(p *pool.Pool) Option {
	return func(c *Client) { c.pool = p }
}

// WithLogger sets the structured logger.
func WithLogger(l observe.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDedupWindow sets how long completed results are shared. Zero or
// negative disables the hold, leaving only in-flight coalescing.
func WithDedupWindow(d time.Duration) Option {
	return func(c *Client) { c.dedupWindow = d }
}

// WithDedupMethods replaces the set of HTTP methods eligible for
// deduplication. The default is GET and HEAD; non-idempotent requests
// are never coalesced unless opted in here.
func WithDedupMethods(methods ...string) Option {
	return func(c *Client) {
		c.dedupMethods = make(map[string]bool, len(methods))
		for _, m := range methods {
			c.dedupMethods[m] = true
		}
	}
}

// New creates a Client. Collaborators not supplied via options are
// constructed with their default configurations, including the three
// per-traffic-class caches.
func New(opts ...Option) *Client {
	c := &Client{
		caches:      make(map[string]cache.Cache[*pool.Response]),
		dedupWindow: DefaultDedupWindow,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.pool == nil {
		c.pool = pool.New(pool.Config{
			OnRetry: func(req *pool.Request, attempt int, delay time.Duration, err error) {
				c.metrics.RecordRetry(context.Background(), observe.Scope{Provider: hostOf(req.URL)})
				c.log.Debug(context.Background(), "retry scheduled",
					observe.Field{Key: "method", Value: req.Method},
					observe.Field{Key: "url", Value: req.URL},
					observe.Field{Key: "attempt", Value: attempt},
					observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
					observe.Field{Key: "error", Value: err.Error()},
				)
			},
		})
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewLimiter(ratelimit.Config{})
	}
	if c.log == nil {
		c.log = observe.NopLogger()
	}
	if c.metrics == nil {
		c.metrics = observe.NopMetrics()
	}
	if len(c.caches) == 0 {
		c.caches = defaultCaches()
	}
	if c.dedupMethods == nil {
		c.dedupMethods = map[string]bool{
			http.MethodGet:  true,
			http.MethodHead: true,
		}
	}
	c.dedup = newDeduper(c.dedupWindow)

	return c
}

// defaultCaches builds the three standard traffic-class instances, each
// with its own TTL and size budget.
func defaultCaches() map[string]cache.Cache[*pool.Response] {
	cost := func(r *pool.Response) int64 { return r.Size() }
	return map[string]cache.Cache[*pool.Response]{
		CacheLive: cache.NewMemoryCache(cache.Config[*pool.Response]{
			Policy:     cache.Policy{DefaultTTL: 10 * time.Second, MaxTTL: time.Minute},
			MaxEntries: 500,
			Cost:       cost,
		}),
		CacheCatalog: cache.NewMemoryCache(cache.Config[*pool.Response]{
			Policy:     cache.DefaultPolicy(),
			MaxEntries: 2000,
			Cost:       cost,
		}),
		CacheProfile: cache.NewMemoryCache(cache.Config[*pool.Response]{
			Policy:     cache.Policy{DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour},
			MaxEntries: 500,
			Cost:       cost,
		}),
	}
}

// Do executes a request through the full chain: cache lookup, rate
// limit admission, pooled execution with dedup, then cache population.
func (c *Client) Do(ctx context.Context, req *pool.Request, opts Options) (*pool.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	scope := observe.Scope{Provider: hostOf(req.URL), Identity: opts.Identity}

	cacheName := opts.CacheName
	if cacheName == "" {
		cacheName = CacheCatalog
	}

	var store cache.Cache[*pool.Response]
	if opts.CacheKey != "" {
		var ok bool
		store, ok = c.caches[cacheName]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCache, cacheName)
		}
		if cached, ok := store.Get(ctx, opts.CacheKey); ok {
			c.metrics.RecordCacheHit(ctx, cacheName)
			c.log.Debug(ctx, "cache hit",
				observe.Field{Key: "cache", Value: cacheName},
				observe.Field{Key: "key", Value: opts.CacheKey},
			)
			hit := *cached
			hit.FromCache = true
			return &hit, nil
		}
		c.metrics.RecordCacheMiss(ctx, cacheName)
	}

	if opts.Identity != "" {
		decision := c.limiter.Allow(opts.Identity)
		if !decision.Allowed {
			c.metrics.RecordRateLimitDenial(ctx, scope, decision.Global)
			c.log.Warn(ctx, "rate limit denied",
				observe.Field{Key: "identity", Value: opts.Identity},
				observe.Field{Key: "global", Value: decision.Global},
				observe.Field{Key: "retry_after_ms", Value: decision.RetryAfter.Milliseconds()},
			)
			return nil, decision.Err(opts.Identity)
		}
	}

	start := time.Now()
	var (
		resp   *pool.Response
		shared bool
		err    error
	)
	if c.dedupMethods[req.Method] {
		resp, shared, err = c.dedup.do(dedupKey(req), func() (*pool.Response, error) {
			return c.pool.Execute(ctx, req)
		})
	} else {
		resp, err = c.pool.Execute(ctx, req)
	}
	elapsed := time.Since(start)

	if !shared {
		c.metrics.RecordRequest(ctx, scope, elapsed, err)
		c.metrics.RecordQueueDepth(ctx, int64(c.pool.Stats().Queued))
	}

	if err != nil {
		c.log.Error(ctx, "request failed",
			observe.Field{Key: "method", Value: req.Method},
			observe.Field{Key: "url", Value: req.URL},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	c.log.Debug(ctx, "request complete",
		observe.Field{Key: "method", Value: req.Method},
		observe.Field{Key: "url", Value: req.URL},
		observe.Field{Key: "status", Value: resp.StatusCode},
		observe.Field{Key: "duration_ms", Value: elapsed.Milliseconds()},
		observe.Field{Key: "deduped", Value: shared},
	)

	if store != nil {
		if err := store.Set(ctx, opts.CacheKey, resp, opts.CacheTTL); err != nil {
			c.log.Warn(ctx, "cache populate failed",
				observe.Field{Key: "cache", Value: cacheName},
				observe.Field{Key: "key", Value: opts.CacheKey},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	return resp, nil
}

// CacheStats reports statistics for a named cache instance.
func (c *Client) CacheStats(name string) (cache.Stats, bool) {
	store, ok := c.caches[name]
	if !ok {
		return cache.Stats{}, false
	}
	return store.Stats(), true
}

// PoolStats reports connection pool statistics.
func (c *Client) PoolStats() pool.Stats {
	return c.pool.Stats()
}

// RateLimitStatus reports the limiter's view of an identity without
// consuming anything.
func (c *Client) RateLimitStatus(identity string) ratelimit.Status {
	return c.limiter.Status(identity)
}

// Close shuts down the pool, the limiter, and every cache the client
// holds, including injected ones.
func (c *Client) Close() {
	c.pool.Close()
	c.limiter.Close()
	for _, store := range c.caches {
		if closer, ok := store.(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
