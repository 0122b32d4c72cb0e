package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records request-path telemetry for the access layer.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records a completed upstream request with its
	// duration and error status.
	RecordRequest(ctx context.Context, scope Scope, duration time.Duration, err error)

	// RecordRetry records a scheduled retry.
	RecordRetry(ctx context.Context, scope Scope)

	// RecordCacheHit records a cache hit for the named cache.
	RecordCacheHit(ctx context.Context, cacheName string)

	// RecordCacheMiss records a cache miss for the named cache.
	RecordCacheMiss(ctx context.Context, cacheName string)

	// RecordRateLimitDenial records a denied admission. global is true
	// when the global ceiling, not the caller's bucket, denied it.
	RecordRateLimitDenial(ctx context.Context, scope Scope, global bool)

	// RecordQueueDepth records the current pool wait queue depth.
	RecordQueueDepth(ctx context.Context, depth int64)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	requestCount metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	retryCount   metric.Int64Counter
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	denialCount  metric.Int64Counter
	queueDepth   metric.Int64Gauge
}

// NewMetrics creates a Metrics instance backed by the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	requestCount, err := meter.Int64Counter(
		"backline.requests.total",
		metric.WithDescription("Total number of upstream requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"backline.requests.errors",
		metric.WithDescription("Total number of failed upstream requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"backline.request.duration_ms",
		metric.WithDescription("Upstream request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"backline.retries.total",
		metric.WithDescription("Total number of scheduled retries"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"backline.cache.hits",
		metric.WithDescription("Total number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"backline.cache.misses",
		metric.WithDescription("Total number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	denialCount, err := meter.Int64Counter(
		"backline.ratelimit.denials",
		metric.WithDescription("Total number of rate limit denials"),
		metric.WithUnit("{denial}"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge(
		"backline.pool.queue_depth",
		metric.WithDescription("Current pool wait queue depth"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		requestCount: requestCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		retryCount:   retryCount,
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
		denialCount:  denialCount,
		queueDepth:   queueDepth,
	}, nil
}

func scopeAttrs(scope Scope) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if scope.Provider != "" {
		attrs = append(attrs, attribute.String("provider", scope.Provider))
	}
	if scope.Identity != "" {
		attrs = append(attrs, attribute.String("identity", scope.Identity))
	}
	return attrs
}

func (m *metricsImpl) RecordRequest(ctx context.Context, scope Scope, duration time.Duration, err error) {
	opt := metric.WithAttributes(scopeAttrs(scope)...)

	m.requestCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordRetry(ctx context.Context, scope Scope) {
	m.retryCount.Add(ctx, 1, metric.WithAttributes(scopeAttrs(scope)...))
}

func (m *metricsImpl) RecordCacheHit(ctx context.Context, cacheName string) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

func (m *metricsImpl) RecordCacheMiss(ctx context.Context, cacheName string) {
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

func (m *metricsImpl) RecordRateLimitDenial(ctx context.Context, scope Scope, global bool) {
	attrs := append(scopeAttrs(scope), attribute.Bool("global", global))
	m.denialCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metricsImpl) RecordQueueDepth(ctx context.Context, depth int64) {
	m.queueDepth.Record(ctx, depth)
}

// NopMetrics returns a Metrics implementation that does nothing.
func NopMetrics() Metrics { return nopMetrics{} }

type nopMetrics struct{}

func (nopMetrics) RecordRequest(ctx context.Context, scope Scope, duration time.Duration, err error) {
}
func (nopMetrics) RecordRetry(ctx context.Context, scope Scope)                           {}
func (nopMetrics) RecordCacheHit(ctx context.Context, cacheName string)                   {}
func (nopMetrics) RecordCacheMiss(ctx context.Context, cacheName string)                  {}
func (nopMetrics) RecordRateLimitDenial(ctx context.Context, scope Scope, global bool)    {}
func (nopMetrics) RecordQueueDepth(ctx context.Context, depth int64)                      {}
