// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/inkbound/redline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CaptureDuration tracks text capture latency, including the clipboard
	// fallback when introspection fails.
	CaptureDuration metric.Float64Histogram

	// EngineDuration tracks correction engine (LLM or local model) latency.
	EngineDuration metric.Float64Histogram

	// WritebackDuration tracks write-back plus verification latency.
	WritebackDuration metric.Float64Histogram

	// CheckDuration tracks one live-feedback checker sweep.
	CheckDuration metric.Float64Histogram

	// --- Counters ---

	// CorrectionRequests counts correction attempts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	CorrectionRequests metric.Int64Counter

	// EngineErrors counts engine failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	EngineErrors metric.Int64Counter

	// FixesApplied counts live-feedback fixes by issue kind.
	FixesApplied metric.Int64Counter

	// --- Gauges ---

	// LiveIssues tracks the number of issues currently highlighted by the
	// feedback loop.
	LiveIssues metric.Int64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// an interactive correction pipeline: sub-100ms capture and write-back, and
// model calls that can run into tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureDuration, err = m.Float64Histogram("redline.capture.duration",
		metric.WithDescription("Latency of text capture."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EngineDuration, err = m.Float64Histogram("redline.engine.duration",
		metric.WithDescription("Latency of correction engine calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WritebackDuration, err = m.Float64Histogram("redline.writeback.duration",
		metric.WithDescription("Latency of write-back and verification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CheckDuration, err = m.Float64Histogram("redline.check.duration",
		metric.WithDescription("Latency of one live-feedback checker sweep."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CorrectionRequests, err = m.Int64Counter("redline.correction.requests",
		metric.WithDescription("Total correction attempts by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("redline.engine.errors",
		metric.WithDescription("Total engine failures by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.FixesApplied, err = m.Int64Counter("redline.fixes.applied",
		metric.WithDescription("Total live-feedback fixes applied by issue kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.LiveIssues, err = m.Int64Gauge("redline.live_issues",
		metric.WithDescription("Issues currently highlighted by the feedback loop."),
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

// RecordCorrection records one correction attempt with the standard
// attribute set.
func (m *Metrics) RecordCorrection(ctx context.Context, provider, status string) {
	m.CorrectionRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordEngineError records one engine failure with the standard attribute
// set.
func (m *Metrics) RecordEngineError(ctx context.Context, provider, kind string) {
	m.EngineErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFix records one applied live-feedback fix.
func (m *Metrics) RecordFix(ctx context.Context, kind string) {
	m.FixesApplied.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// SetLiveIssues records the current live issue count.
func (m *Metrics) SetLiveIssues(ctx context.Context, n int) {
	m.LiveIssues.Record(ctx, int64(n))
}
