// Package observe provides application-wide observability primitives for
// Parley: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Parley metrics.
const meterName = "github.com/MrWong99/parley"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CapabilityDuration tracks capability call latency. Use with attribute:
	//   attribute.String("capability", ...)
	CapabilityDuration metric.Float64Histogram

	// SynthesisDuration tracks speech synthesis latency, from the synthesis
	// request until audio is handed to the player.
	SynthesisDuration metric.Float64Histogram

	// DispatchDuration tracks end-to-end dispatch latency, from routing a
	// user turn until the reply is appended to the conversation.
	DispatchDuration metric.Float64Histogram

	// CapabilityRequests counts capability calls. Use with attributes:
	//   attribute.String("capability", ...), attribute.String("status", ...)
	CapabilityRequests metric.Int64Counter

	// RetryAttempts counts individual attempts made by the retrier. Use with
	// attribute: attribute.String("operation", ...)
	RetryAttempts metric.Int64Counter

	// CapabilityErrors counts capability calls that exhausted all attempts.
	// Use with attribute: attribute.String("capability", ...)
	CapabilityErrors metric.Int64Counter

	// SynthesisFailures counts speech synthesis or playback failures that
	// were swallowed by the pipeline.
	SynthesisFailures metric.Int64Counter

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks ops-server HTTP request processing time.
	// Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// generative-model round trips, which routinely take several seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CapabilityDuration, err = m.Float64Histogram("parley.capability.duration",
		metric.WithDescription("Latency of capability provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("parley.synthesis.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("parley.dispatch.duration",
		metric.WithDescription("End-to-end dispatch latency from routing to reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CapabilityRequests, err = m.Int64Counter("parley.capability.requests",
		metric.WithDescription("Total capability calls by capability and status."),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("parley.retry.attempts",
		metric.WithDescription("Total retry attempts by operation."),
	); err != nil {
		return nil, err
	}
	if met.CapabilityErrors, err = m.Int64Counter("parley.capability.errors",
		metric.WithDescription("Total capability calls that exhausted all attempts."),
	); err != nil {
		return nil, err
	}
	if met.SynthesisFailures, err = m.Int64Counter("parley.synthesis.failures",
		metric.WithDescription("Total swallowed speech synthesis or playback failures."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("parley.http.request.duration",
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

// RecordCapabilityRequest records a capability request counter increment with
// the standard attribute set.
func (m *Metrics) RecordCapabilityRequest(ctx context.Context, capability, status string) {
	m.CapabilityRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("capability", capability),
			attribute.String("status", status),
		),
	)
}

// RecordCapabilityError records a capability error counter increment.
func (m *Metrics) RecordCapabilityError(ctx context.Context, capability string) {
	m.CapabilityErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("capability", capability)),
	)
}

// RecordCapabilityDuration records the latency of one capability call,
// retries included.
func (m *Metrics) RecordCapabilityDuration(ctx context.Context, capability string, seconds float64) {
	m.CapabilityDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("capability", capability)),
	)
}

// RecordRetryAttempt records one retry attempt for the named operation.
func (m *Metrics) RecordRetryAttempt(ctx context.Context, operation string) {
	m.RetryAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordSynthesisFailure records one swallowed synthesis or playback failure.
func (m *Metrics) RecordSynthesisFailure(ctx context.Context, stage string) {
	m.SynthesisFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
