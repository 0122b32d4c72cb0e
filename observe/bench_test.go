package observe

import (
	"context"
	"io"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func BenchmarkLogger_Info(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "request complete",
			Field{Key: "status", Value: 200},
			Field{Key: "duration_ms", Value: 12.5},
		)
	}
}

func BenchmarkLogger_FilteredOut(b *testing.B) {
	logger := NewLoggerWithWriter("error", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "noisy debug line")
	}
}

func BenchmarkMetrics_RecordRequest(b *testing.B) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("bench"))
	if err != nil {
		b.Fatalf("failed to create metrics: %v", err)
	}

	ctx := context.Background()
	scope := Scope{Provider: "spotify", Identity: "svc-playlists"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRequest(ctx, scope, 20*time.Millisecond, nil)
	}
}
