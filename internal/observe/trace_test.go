package observe

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// withRecordingTracer swaps in a TracerProvider backed by an in-memory
// exporter for the duration of the test.
func withRecordingTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// ─── TestStartSpan_RecordsNamedSpan ──────────────────────────────────────────

func TestStartSpan_RecordsNamedSpan(t *testing.T) {
	exp := withRecordingTracer(t)

	ctx, span := StartSpan(context.Background(), "retrieval.lookup")
	if !trace.SpanContextFromContext(ctx).HasTraceID() {
		t.Fatal("context carries no trace ID after StartSpan")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "retrieval.lookup" {
		t.Fatalf("span name = %q, want retrieval.lookup", spans[0].Name)
	}
}

// ─── TestLogger_AnnotatesWithSpanContext ─────────────────────────────────────

func TestLogger_AnnotatesWithSpanContext(t *testing.T) {
	withRecordingTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()

	Logger(ctx).Info("inside span")
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("trace_id=")) {
		t.Errorf("log line missing trace_id: %s", out)
	}
	if !bytes.Contains([]byte(out), []byte("span_id=")) {
		t.Errorf("log line missing span_id: %s", out)
	}
}

// ─── TestLogger_NoSpanFallsBackToDefault ─────────────────────────────────────

func TestLogger_NoSpanFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("no span")
	out := buf.String()
	if bytes.Contains([]byte(out), []byte("trace_id=")) {
		t.Errorf("log line unexpectedly carries trace_id: %s", out)
	}
}
