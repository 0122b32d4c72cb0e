package exporters

import (
	"bytes"
	"context"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsReader_Prometheus(t *testing.T) {
	reg := prom.NewRegistry()
	reader, err := NewMetricsReader(context.Background(), "prometheus", WithPrometheusRegisterer(reg))
	if err != nil {
		t.Fatalf("NewMetricsReader: %v", err)
	}
	if reader == nil {
		t.Fatal("reader is nil")
	}
	reader.Shutdown(context.Background())
}

func TestNewMetricsReader_Stdout(t *testing.T) {
	var buf bytes.Buffer
	reader, err := NewMetricsReader(context.Background(), "stdout", WithWriter(&buf))
	if err != nil {
		t.Fatalf("NewMetricsReader: %v", err)
	}
	if reader == nil {
		t.Fatal("reader is nil")
	}
	reader.Shutdown(context.Background())
}

func TestNewMetricsReader_None(t *testing.T) {
	for _, name := range []string{"none", ""} {
		reader, err := NewMetricsReader(context.Background(), name)
		if err != nil {
			t.Fatalf("NewMetricsReader(%q): %v", name, err)
		}
		if reader == nil {
			t.Fatalf("NewMetricsReader(%q): reader is nil", name)
		}
		reader.Shutdown(context.Background())
	}
}

func TestNewMetricsReader_Unknown(t *testing.T) {
	_, err := NewMetricsReader(context.Background(), "statsd")
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
