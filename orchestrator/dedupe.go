package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/soundcheck-labs/backline/pool"
)

// heldMapHighWater triggers an expiry purge on insert.
const heldMapHighWater = 1024

// deduper coalesces identical concurrent requests into one network call
// and holds completed results for a short window, so near-simultaneous
// duplicates arriving just after completion still share the response.
type deduper struct {
	window time.Duration
	group  singleflight.Group

	mu   sync.Mutex
	held map[string]heldResult
}

type heldResult struct {
	resp *pool.Response
	at   time.Time
}

func newDeduper(window time.Duration) *deduper {
	return &deduper{
		window: window,
		held:   make(map[string]heldResult),
	}
}

// dedupKey derives the coalescing key from the parts of a request that
// determine its result: method, URL, and body.
func dedupKey(req *pool.Request) string {
	h := sha256.New()
	h.Write([]byte(req.Method))
	h.Write([]byte{0})
	h.Write([]byte(req.URL))
	h.Write([]byte{0})
	h.Write(req.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// do runs fn at most once per key among concurrent callers. A result
// completed within the hold window is returned to later callers without
// running fn again. Failures are never held; the next caller retries.
func (d *deduper) do(key string, fn func() (*pool.Response, error)) (*pool.Response, bool, error) {
	if d.window > 0 {
		d.mu.Lock()
		if h, ok := d.held[key]; ok {
			if time.Since(h.at) <= d.window {
				d.mu.Unlock()
				return h.resp, true, nil
			}
			delete(d.held, key)
		}
		d.mu.Unlock()
	}

	v, err, shared := d.group.Do(key, func() (any, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if d.window > 0 {
			d.mu.Lock()
			d.held[key] = heldResult{resp: resp, at: time.Now()}
			if len(d.held) > heldMapHighWater {
				d.purgeLocked(time.Now())
			}
			d.mu.Unlock()
		}
		return resp, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*pool.Response), shared, nil
}

func (d *deduper) purgeLocked(now time.Time) {
	for k, h := range d.held {
		if now.Sub(h.at) > d.window {
			delete(d.held, k)
		}
	}
}
