package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Priority orders queued requests. Active requests are never preempted.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Doer is the outbound transport collaborator. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Request describes one outbound call. Optional fields fall back to the
// pool's configured defaults.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout bounds each attempt. Zero means the pool default.
	Timeout time.Duration

	// Retries overrides the pool's retry budget. Negative means the
	// pool default; zero means no retries.
	Retries int

	Priority Priority
}

// NewRequest builds a Request with the retry budget deferred to the pool.
func NewRequest(method, url string) *Request {
	return &Request{
		Method:   method,
		URL:      url,
		Retries:  -1,
		Priority: PriorityNormal,
	}
}

func (r *Request) toHTTP(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Response is the materialized result of a request. The body is fully
// read so responses can be cached and shared between deduplicated
// callers safely.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// FromCache is set by the orchestrator when the response was
	// synthesized from a cache entry without touching the network.
	FromCache bool
}

// maxResponseBytes caps how much of a response body is materialized.
const maxResponseBytes = 10 * 1024 * 1024

func newResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Size is the approximate memory footprint of the response, used by
// cache byte ceilings.
func (r *Response) Size() int64 {
	return int64(len(r.Body))
}

// parseRetryAfter parses a Retry-After header value, supporting both
// delay-seconds and HTTP-date formats. The result is capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
