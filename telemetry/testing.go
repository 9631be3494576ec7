package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry holds in-memory OpenTelemetry components for tests.
type TestTelemetry struct {
	*TelemetryImpl
	mr *sdkmetric.ManualReader
	sr *tracetest.SpanRecorder
}

// NewTestTelemetry creates an enabled Telemetry whose spans and metrics stay in memory.
func NewTestTelemetry(t *testing.T) *TestTelemetry {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	mr := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(mr))

	tel, err := newTelemetry(tp, mp)
	if err != nil {
		t.Fatalf("create test telemetry: %v", err)
	}
	tel.enabled = true

	return &TestTelemetry{
		TelemetryImpl: tel,
		mr:            mr,
		sr:            sr,
	}
}

// GetReader returns the metric reader for testing
func (tt *TestTelemetry) GetReader() *sdkmetric.ManualReader {
	return tt.mr
}

// Spans returns the spans ended so far.
func (tt *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return tt.sr.Ended()
}

// Shutdown gracefully shuts down the test telemetry providers
func (tt *TestTelemetry) Shutdown(ctx context.Context) error {
	return tt.TelemetryImpl.Shutdown(ctx)
}
