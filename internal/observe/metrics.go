// Package observe provides application-wide observability primitives for
// Vocalink: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Vocalink metrics.
const meterName = "github.com/MrWong99/vocalink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency per window.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency per request.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// FramesIngested counts raw audio frames received on ingest channels.
	FramesIngested metric.Int64Counter

	// BufferTrims counts FIFO trims of over-capacity ingest buffers.
	BufferTrims metric.Int64Counter

	// Transcriptions counts emitted transcripts. Use with attribute:
	//   attribute.String("kind", "partial"|"final")
	Transcriptions metric.Int64Counter

	// SynthesisRequests counts completed synthesis requests. Use with
	// attribute: attribute.String("reason", "completed"|"canceled"|"empty_text")
	SynthesisRequests metric.Int64Counter

	// ProviderErrors counts engine call failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", "stt"|"tts"|"vad")
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions reports the number of live audio sessions. It is
	// observed asynchronously; wire the source of truth with
	// [Metrics.RegisterActiveSessions].
	ActiveSessions metric.Int64ObservableUpDownCounter

	// ActiveChannels tracks the number of open websocket channels across
	// control, ingest, and synthesis endpoints.
	ActiveChannels metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
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
	met := &Metrics{meter: m}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("vocalink.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription per window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("vocalink.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesIngested, err = m.Int64Counter("vocalink.ingest.frames",
		metric.WithDescription("Total raw audio frames received on ingest channels."),
	); err != nil {
		return nil, err
	}
	if met.BufferTrims, err = m.Int64Counter("vocalink.ingest.buffer_trims",
		metric.WithDescription("Total FIFO trims of over-capacity ingest buffers."),
	); err != nil {
		return nil, err
	}
	if met.Transcriptions, err = m.Int64Counter("vocalink.stt.transcriptions",
		metric.WithDescription("Total emitted transcripts by kind."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisRequests, err = m.Int64Counter("vocalink.tts.requests",
		metric.WithDescription("Total completed synthesis requests by terminal reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("vocalink.provider.errors",
		metric.WithDescription("Total engine call failures by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64ObservableUpDownCounter("vocalink.active_sessions",
		metric.WithDescription("Number of live audio sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveChannels, err = m.Int64UpDownCounter("vocalink.active_channels",
		metric.WithDescription("Number of open websocket channels."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("vocalink.http.request.duration",
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

// RegisterActiveSessions registers count as the callback feeding the
// active-sessions gauge. The returned registration unregisters the callback
// when the owning component shuts down.
func (m *Metrics) RegisterActiveSessions(count func() int64) (metric.Registration, error) {
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.ActiveSessions, count())
		return nil
	}, m.ActiveSessions)
}

// RecordTranscription records an emitted transcript of the given kind
// ("partial" or "final").
func (m *Metrics) RecordTranscription(ctx context.Context, kind string) {
	m.Transcriptions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSynthesis records a terminated synthesis request with its reason.
func (m *Metrics) RecordSynthesis(ctx context.Context, reason string) {
	m.SynthesisRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordProviderError records an engine call failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
