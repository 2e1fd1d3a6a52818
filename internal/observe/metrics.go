// Package observe provides application-wide observability primitives for
// voxlane: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all voxlane metrics.
const meterName = "github.com/voxlane/voxlane"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// StreamDuration tracks the full model response stream, first fragment
	// request to stream end.
	StreamDuration metric.Float64Histogram

	// SynthesisDuration tracks per-unit speech synthesis latency, fallback
	// attempts included.
	SynthesisDuration metric.Float64Histogram

	// TranscriptionDuration tracks speech-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// --- Counters ---

	// MessagesReceived counts inbound transport messages. Use with attribute:
	//   attribute.String("type", ...)
	MessagesReceived metric.Int64Counter

	// UnitsDispatched counts sentence units handed to the synthesizer.
	UnitsDispatched metric.Int64Counter

	// UnitsFailed counts sentence units whose synthesis failed terminally
	// (fallback included), delivered as text only.
	UnitsFailed metric.Int64Counter

	// AudioBytesOut counts synthesized audio bytes delivered to clients.
	AudioBytesOut metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks open websocket connections.
	ActiveConnections metric.Int64UpDownCounter

	// ActiveSessions tracks live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveCycles tracks response cycles currently streaming.
	ActiveCycles metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
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
	if met.StreamDuration, err = m.Float64Histogram("voxlane.stream.duration",
		metric.WithDescription("Duration of one full model response stream."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("voxlane.synthesis.duration",
		metric.WithDescription("Latency of per-unit speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("voxlane.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.MessagesReceived, err = m.Int64Counter("voxlane.messages.received",
		metric.WithDescription("Total inbound transport messages by type."),
	); err != nil {
		return nil, err
	}
	if met.UnitsDispatched, err = m.Int64Counter("voxlane.units.dispatched",
		metric.WithDescription("Total sentence units handed to the synthesizer."),
	); err != nil {
		return nil, err
	}
	if met.UnitsFailed, err = m.Int64Counter("voxlane.units.failed",
		metric.WithDescription("Total sentence units dropped after synthesis failure."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesOut, err = m.Int64Counter("voxlane.audio.bytes.out",
		metric.WithDescription("Total synthesized audio bytes delivered."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxlane.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConnections, err = m.Int64UpDownCounter("voxlane.active_connections",
		metric.WithDescription("Number of open websocket connections."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxlane.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCycles, err = m.Int64UpDownCounter("voxlane.active_cycles",
		metric.WithDescription("Number of response cycles currently streaming."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlane.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordStream records one completed (or aborted) model response stream.
func (m *Metrics) RecordStream(ctx context.Context, provider string, seconds float64) {
	m.StreamDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSynthesis records one terminal synthesis outcome: latency plus the
// failure counter when the unit was dropped.
func (m *Metrics) RecordSynthesis(ctx context.Context, seconds float64, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
		m.UnitsFailed.Add(ctx, 1)
	}
	m.SynthesisDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordTranscription records one speech-to-text call.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, seconds float64) {
	m.TranscriptionDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordMessage records one inbound transport message by type.
func (m *Metrics) RecordMessage(ctx context.Context, msgType string) {
	m.MessagesReceived.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", msgType)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
