// Package exporters provides factory functions for creating OpenTelemetry
// metrics readers.
package exporters

import (
	"context"
	"fmt"
	"io"
	"os"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Option customizes exporter construction.
type Option func(*options)

type options struct {
	registerer prom.Registerer
	writer     io.Writer
}

// WithPrometheusRegisterer routes Prometheus metrics into the given
// registry instead of the default one.
func WithPrometheusRegisterer(reg prom.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithWriter sets the destination for the stdout exporter.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// NewMetricsReader creates a metrics reader based on the exporter name.
// Supported exporters: prometheus, stdout, none
func NewMetricsReader(ctx context.Context, name string, opts ...Option) (sdkmetric.Reader, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.writer == nil {
		o.writer = os.Stdout
	}

	switch name {
	case "prometheus":
		promOpts := []prometheus.Option{}
		if o.registerer != nil {
			promOpts = append(promOpts, prometheus.WithRegisterer(o.registerer))
		}
		exp, err := prometheus.New(promOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		return exp, nil

	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "none", "":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", name)
	}
}
