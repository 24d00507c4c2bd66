// Package observe provides application-wide observability primitives for
// voicelink: OpenTelemetry metrics, distributed tracing, and structured
// logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicelink metrics.
const meterName = "github.com/overlapai/voicelink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// PlayoutDuration tracks the wall-clock duration of one agent utterance
	// playout, from first frame written to playback end.
	PlayoutDuration metric.Float64Histogram

	// RetrievalDuration tracks the latency of one context-retrieval round
	// (embedding plus nearest-neighbour query).
	RetrievalDuration metric.Float64Histogram

	// --- Counters ---

	// IngestFrames counts microphone frames appended to the session input
	// buffer.
	IngestFrames metric.Int64Counter

	// IngestDrops counts frames dropped from the ingest hand-off channel
	// under overflow.
	IngestDrops metric.Int64Counter

	// Utterances counts agent utterances started. Use with attribute:
	//   attribute.String("outcome", "completed"|"interrupted")
	// recorded on playout stop.
	Utterances metric.Int64Counter

	// Interruptions counts barge-ins (user speech cutting off a live
	// utterance).
	Interruptions metric.Int64Counter

	// StatePublishes counts agent-state attribute publications. Use with
	// attribute: attribute.String("state", ...).
	StatePublishes metric.Int64Counter

	// --- Error counters ---

	// RetrievalErrors counts context-retrieval failures (absorbed, never
	// surfaced to the audio path).
	RetrievalErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveParticipants tracks the number of remote participants currently
	// in the room.
	ActiveParticipants metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.PlayoutDuration, err = m.Float64Histogram("voicelink.playout.duration",
		metric.WithDescription("Wall-clock duration of one agent utterance playout."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("voicelink.retrieval.duration",
		metric.WithDescription("Latency of one context-retrieval round."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.IngestFrames, err = m.Int64Counter("voicelink.ingest.frames",
		metric.WithDescription("Microphone frames appended to the session input buffer."),
	); err != nil {
		return nil, err
	}
	if met.IngestDrops, err = m.Int64Counter("voicelink.ingest.drops",
		metric.WithDescription("Frames dropped from the ingest hand-off channel under overflow."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voicelink.utterances",
		metric.WithDescription("Agent utterances played, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voicelink.interruptions",
		metric.WithDescription("Barge-ins cutting off a live agent utterance."),
	); err != nil {
		return nil, err
	}
	if met.StatePublishes, err = m.Int64Counter("voicelink.state.publishes",
		metric.WithDescription("Agent-state attribute publications by state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.RetrievalErrors, err = m.Int64Counter("voicelink.retrieval.errors",
		metric.WithDescription("Context-retrieval failures absorbed by the augmenter."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveParticipants, err = m.Int64UpDownCounter("voicelink.active_participants",
		metric.WithDescription("Number of remote participants currently in the room."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance records one finished agent utterance with its outcome and
// playout duration in seconds.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string, seconds float64) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.PlayoutDuration.Record(ctx, seconds)
}

// RecordStatePublish records one agent-state attribute publication.
func (m *Metrics) RecordStatePublish(ctx context.Context, state string) {
	m.StatePublishes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordRetrieval records one context-retrieval round. A non-nil err also
// increments the error counter.
func (m *Metrics) RecordRetrieval(ctx context.Context, seconds float64, err error) {
	m.RetrievalDuration.Record(ctx, seconds)
	if err != nil {
		m.RetrievalErrors.Add(ctx, 1)
	}
}
