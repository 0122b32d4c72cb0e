package pool

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// latencyWindow caps how many latency samples feed the rolling average.
const latencyWindow = 1000

// Config configures the pool. Every knob is an explicit option; nothing
// is hidden in the logic.
type Config struct {
	// MaxConcurrent is the active in-flight request ceiling.
	// Default: 50
	MaxConcurrent int

	// MaxQueue bounds the wait queue. Beyond it, Execute fails with
	// ErrQueueFull.
	// Default: 1000
	MaxQueue int

	// Timeout bounds each attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the default retry budget per request.
	// Default: 3
	MaxRetries int

	// BaseDelay is the first backoff delay.
	// Default: 100ms
	BaseDelay time.Duration

	// MaxDelay caps backoff growth.
	// Default: 10 seconds
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	// Default: 2.0
	Multiplier float64

	// Jitter is the random fraction added to each delay, in [0, 1).
	// Default: 0.1
	Jitter float64

	// Breaker configures the shared circuit breaker.
	Breaker BreakerConfig

	// Transport performs the actual HTTP calls.
	// Default: http.DefaultClient
	Transport Doer

	// OnRetry is called before each scheduled retry.
	OnRetry func(req *Request, attempt int, delay time.Duration, err error)
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 50
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = 0.1
	}
	if c.Transport == nil {
		c.Transport = http.DefaultClient
	}
}

// Pool is a bounded executor with retry, backoff, and circuit breaking.
// Safe for concurrent use.
type Pool struct {
	cfg     Config
	breaker *Breaker

	mu     sync.Mutex
	queue  waitQueue
	active int
	queued int
	seq    uint64
	closed bool

	completed int64
	failed    int64
	retried   int64

	latMu    sync.Mutex
	lat      [latencyWindow]time.Duration
	latIdx   int
	latCount int
}

// New creates a pool with its own circuit breaker.
func New(cfg Config) *Pool {
	cfg.applyDefaults()
	return &Pool{
		cfg:     cfg,
		breaker: NewBreaker(cfg.Breaker),
	}
}

// Breaker exposes the pool's circuit breaker for observability.
func (p *Pool) Breaker() *Breaker { return p.breaker }

// Execute runs the request through admission, retry, and circuit
// breaking. It blocks until the request completes, fails, or the caller
// context is cancelled while the request is still queued.
func (p *Pool) Execute(ctx context.Context, req *Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	if ok, wait := p.breaker.Allow(); !ok {
		return nil, &CircuitOpenError{RetryAfter: wait}
	}

	t := &task{
		req:  req,
		ctx:  ctx,
		done: make(chan taskResult, 1),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	switch {
	case p.active < p.cfg.MaxConcurrent:
		p.active++
		t.state = taskActive
		p.mu.Unlock()
		go p.run(t)
	case p.queued >= p.cfg.MaxQueue:
		p.mu.Unlock()
		return nil, ErrQueueFull
	default:
		t.state = taskQueued
		t.seq = p.seq
		p.seq++
		t.enqueuedAt = time.Now()
		heap.Push(&p.queue, t)
		p.queued++
		p.mu.Unlock()
	}

	select {
	case res := <-t.done:
		return res.resp, res.err
	case <-ctx.Done():
		p.mu.Lock()
		if t.state == taskQueued {
			// Still queued: mark cancelled so the pump skips it. The
			// heap entry is reclaimed lazily.
			t.state = taskCancelled
			p.queued--
			p.mu.Unlock()
			return nil, ctx.Err()
		}
		p.mu.Unlock()
		// Already active: the attempt context is derived from the
		// caller's, so the in-flight attempt aborts on its own.
		res := <-t.done
		return res.resp, res.err
	}
}

// run executes a task's full retry loop, delivers the result, and pumps
// the next queued task into the freed slot.
func (p *Pool) run(t *task) {
	res := p.runAttempts(t)

	if res.err == nil {
		atomic.AddInt64(&p.completed, 1)
	} else {
		atomic.AddInt64(&p.failed, 1)
	}

	p.mu.Lock()
	t.state = taskDone
	p.mu.Unlock()

	t.done <- res
	p.pump()
}

func (p *Pool) pump() {
	p.mu.Lock()
	next := p.queue.popNext()
	if next == nil {
		p.active--
		p.mu.Unlock()
		return
	}
	next.state = taskActive
	p.queued--
	p.mu.Unlock()

	go p.run(next)
}

// runAttempts is the explicit bounded retry loop: a request is attempted
// at most retries+1 times, never recursively.
func (p *Pool) runAttempts(t *task) taskResult {
	req := t.req

	retries := p.cfg.MaxRetries
	if req.Retries >= 0 {
		retries = req.Retries
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}

	for attempt := 0; ; attempt++ {
		resp, retryAfter, err := p.doOnce(t.ctx, req, timeout)
		if err == nil {
			p.breaker.RecordSuccess()
			return taskResult{resp: resp}
		}

		// Caller cancellation is surfaced as-is and never retried.
		if errors.Is(err, context.Canceled) || t.ctx.Err() != nil {
			return taskResult{err: err}
		}

		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			reqErr.Attempts = attempt + 1
			// The breaker counts hard failures: transport errors and
			// 5xx. A 429 is the provider shedding load, not failing.
			if reqErr.Kind == KindTransient || (reqErr.Kind == KindServer && reqErr.StatusCode >= 500) {
				p.breaker.RecordFailure()
			}
		}

		if !Retryable(err) || attempt >= retries {
			return taskResult{err: err}
		}

		delay := p.backoff(attempt)
		if retryAfter > delay {
			delay = retryAfter
		}

		atomic.AddInt64(&p.retried, 1)
		if p.cfg.OnRetry != nil {
			p.cfg.OnRetry(req, attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-t.ctx.Done():
			timer.Stop()
			return taskResult{err: t.ctx.Err()}
		case <-timer.C:
		}
	}
}

// doOnce performs a single attempt. The returned duration is the parsed
// Retry-After hint, when the provider sent one.
func (p *Pool) doOnce(ctx context.Context, req *Request, timeout time.Duration) (*Response, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := req.toHTTP(attemptCtx)
	if err != nil {
		return nil, 0, &RequestError{Kind: KindClient, Method: req.Method, URL: req.URL, Cause: err}
	}

	start := time.Now()
	httpResp, err := p.cfg.Transport.Do(httpReq)
	p.recordLatency(time.Since(start))

	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, 0, context.Canceled
		}
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return nil, 0, &RequestError{Kind: KindTransient, Method: req.Method, URL: req.URL, Cause: ErrTimeout}
		}
		return nil, 0, &RequestError{Kind: KindTransient, Method: req.Method, URL: req.URL, Cause: err}
	}

	resp, err := newResponse(httpResp)
	if err != nil {
		return nil, 0, &RequestError{Kind: KindTransient, Method: req.Method, URL: req.URL, Cause: err}
	}

	switch {
	case resp.StatusCode >= 500:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, &RequestError{Kind: KindServer, Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, &RequestError{Kind: KindServer, Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, 0, &RequestError{Kind: KindClient, Method: req.Method, URL: req.URL, StatusCode: resp.StatusCode}
	}

	return resp, 0, nil
}

func (p *Pool) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := time.Duration(float64(p.cfg.BaseDelay) * math.Pow(p.cfg.Multiplier, float64(attempt)))
	if delay < 0 || delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}
	if p.cfg.Jitter > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(float64(delay) * p.cfg.Jitter * rand.Float64())
	}
	return delay
}

func (p *Pool) recordLatency(d time.Duration) {
	p.latMu.Lock()
	p.lat[p.latIdx] = d
	p.latIdx = (p.latIdx + 1) % latencyWindow
	if p.latCount < latencyWindow {
		p.latCount++
	}
	p.latMu.Unlock()
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Active     int
	Queued     int
	Completed  int64
	Failed     int64
	Retried    int64
	AvgLatency time.Duration
	Breaker    BreakerState
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	active := p.active
	queued := p.queued
	p.mu.Unlock()

	p.latMu.Lock()
	var sum time.Duration
	for i := 0; i < p.latCount; i++ {
		sum += p.lat[i]
	}
	var avg time.Duration
	if p.latCount > 0 {
		avg = sum / time.Duration(p.latCount)
	}
	p.latMu.Unlock()

	return Stats{
		Active:     active,
		Queued:     queued,
		Completed:  atomic.LoadInt64(&p.completed),
		Failed:     atomic.LoadInt64(&p.failed),
		Retried:    atomic.LoadInt64(&p.retried),
		AvgLatency: avg,
		Breaker:    p.breaker.State(),
	}
}

// Close rejects queued work with ErrClosed and refuses new requests.
// Active requests run to completion.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var drained []*task
	for {
		t := p.queue.popNext()
		if t == nil {
			break
		}
		t.state = taskDone
		drained = append(drained, t)
	}
	p.queued = 0
	p.mu.Unlock()

	for _, t := range drained {
		t.done <- taskResult{err: ErrClosed}
	}
}
