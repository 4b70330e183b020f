// Package observe provides application-wide observability primitives for
// Loreweave: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Loreweave metrics.
const meterName = "github.com/emberforge/loreweave"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks end-to-end interactive turn latency. Use with
	// attribute: attribute.String("status", ...)
	TurnDuration metric.Float64Histogram

	// SummariseDuration tracks session close and summarisation latency.
	SummariseDuration metric.Float64Histogram

	// CompletionDuration tracks raw LLM completion latency by provider.
	CompletionDuration metric.Float64Histogram

	// --- Counters ---

	// Interactions counts interactive turns. Use with attribute:
	//   attribute.String("status", ...)
	Interactions metric.Int64Counter

	// Summaries counts session summarisations by status.
	Summaries metric.Int64Counter

	// AgentErrors counts agent build/invocation failures. Use with
	// attribute: attribute.String("operation", ...)
	AgentErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions reports the number of live chat sessions. It is an
	// observable gauge; wire it to the session registry with
	// [Metrics.ObserveActiveSessions].
	ActiveSessions metric.Int64ObservableGauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	meter metric.Meter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM-backed request latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("loreweave.turn.duration",
		metric.WithDescription("End-to-end latency of an interactive turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummariseDuration, err = m.Float64Histogram("loreweave.summarise.duration",
		metric.WithDescription("Latency of session close and summarisation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionDuration, err = m.Float64Histogram("loreweave.completion.duration",
		metric.WithDescription("Latency of raw LLM completions by provider."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Interactions, err = m.Int64Counter("loreweave.interactions",
		metric.WithDescription("Total interactive turns by status."),
	); err != nil {
		return nil, err
	}
	if met.Summaries, err = m.Int64Counter("loreweave.summaries",
		metric.WithDescription("Total session summarisations by status."),
	); err != nil {
		return nil, err
	}
	if met.AgentErrors, err = m.Int64Counter("loreweave.agent.errors",
		metric.WithDescription("Total agent build and invocation failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64ObservableGauge("loreweave.active_sessions",
		metric.WithDescription("Number of live chat sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("loreweave.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveActiveSessions registers fn as the callback producing the current
// live-session count. Call once at startup with the registry's Len.
func (m *Metrics) ObserveActiveSessions(fn func() int64) (metric.Registration, error) {
	return m.meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(m.ActiveSessions, fn())
			return nil
		},
		m.ActiveSessions,
	)
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

// RecordCompletion records a raw LLM completion latency with the standard
// attribute set.
func (m *Metrics) RecordCompletion(ctx context.Context, provider, status string, seconds float64) {
	m.CompletionDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}
