// Package observe provides application-wide observability primitives for
// kotoyomi: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware tying them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kotoyomi metrics.
const meterName = "github.com/kotoyomi/kotoyomi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// SynthesisDuration tracks the latency of one full two-step synthesis
	// exchange with the VOICEVOX engine.
	SynthesisDuration metric.Float64Histogram

	// PlaybackDuration tracks how long one utterance took to play to
	// completion on its voice connection.
	PlaybackDuration metric.Float64Histogram

	// Utterances counts drained queue items. Use with attribute:
	//   attribute.String("status", "played" | "synthesis_error" | "playback_error")
	Utterances metric.Int64Counter

	// Suppressed counts submissions declined by the normalizer. Use with
	// attribute: attribute.String("room", ...)
	Suppressed metric.Int64Counter

	// QueueDepth tracks the number of pending utterances across rooms.
	// Use with attribute: attribute.String("room", ...)
	QueueDepth metric.Int64UpDownCounter

	// HTTPRequestDuration tracks health/metrics endpoint latency. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// synthesis and playback latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SynthesisDuration, err = m.Float64Histogram("kotoyomi.synthesis.duration",
		metric.WithDescription("Latency of one two-step VOICEVOX synthesis exchange."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("kotoyomi.playback.duration",
		metric.WithDescription("Time for one utterance to play to completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("kotoyomi.utterances",
		metric.WithDescription("Total drained utterances by outcome status."),
	); err != nil {
		return nil, err
	}
	if met.Suppressed, err = m.Int64Counter("kotoyomi.messages.suppressed",
		metric.WithDescription("Total submissions declined by the normalizer."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("kotoyomi.queue.depth",
		metric.WithDescription("Pending utterances per room."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("kotoyomi.http.request.duration",
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
