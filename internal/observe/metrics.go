// Package observe provides application-wide observability primitives for the
// voice gateway: OpenTelemetry metrics with a Prometheus exporter bridge so
// everything is scrapeable via the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([Default]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all gateway metrics.
const meterName = "github.com/spicebay/voicegate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Gauges ---

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Counters ---

	// CallsTerminated counts finished calls. Use with attribute:
	//   attribute.String("status", "completed"|"escalated"|"failed")
	CallsTerminated metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// OrdersCompleted counts successfully persisted orders.
	OrdersCompleted metric.Int64Counter

	// PersistenceErrors counts store failures. Use with attribute:
	//   attribute.String("op", ...)
	PersistenceErrors metric.Int64Counter

	// TransferAttempts counts call escalations to a human. Use with
	// attribute: attribute.String("status", "ok"|"error")
	TransferAttempts metric.Int64Counter

	// FramesDropped counts audio frames skipped on gating or conversion
	// errors. Use with attribute: attribute.String("direction", ...)
	FramesDropped metric.Int64Counter

	// --- Histograms ---

	// CallDuration tracks call length in seconds.
	CallDuration metric.Float64Histogram

	// ToolDuration tracks tool dispatch latency in seconds.
	ToolDuration metric.Float64Histogram
}

// callBuckets defines histogram bucket boundaries (in seconds) for phone
// call durations.
var callBuckets = []float64{
	15, 30, 60, 120, 180, 300, 600, 900,
}

// toolBuckets defines histogram bucket boundaries (in seconds) for tool
// dispatch latencies, dominated by the persistence pipeline.
var toolBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all metric instruments on the given provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.ActiveSessions, err = meter.Int64UpDownCounter(
		"voicegate.sessions.active",
		metric.WithDescription("Number of live call sessions"),
	); err != nil {
		return nil, err
	}

	if m.CallsTerminated, err = meter.Int64Counter(
		"voicegate.calls.terminated",
		metric.WithDescription("Finished calls by terminal status"),
	); err != nil {
		return nil, err
	}

	if m.ToolCalls, err = meter.Int64Counter(
		"voicegate.tool.calls",
		metric.WithDescription("Model-issued tool invocations"),
	); err != nil {
		return nil, err
	}

	if m.OrdersCompleted, err = meter.Int64Counter(
		"voicegate.orders.completed",
		metric.WithDescription("Successfully persisted orders"),
	); err != nil {
		return nil, err
	}

	if m.PersistenceErrors, err = meter.Int64Counter(
		"voicegate.store.errors",
		metric.WithDescription("Persistence failures by operation"),
	); err != nil {
		return nil, err
	}

	if m.TransferAttempts, err = meter.Int64Counter(
		"voicegate.transfers",
		metric.WithDescription("Escalations to the human transfer number"),
	); err != nil {
		return nil, err
	}

	if m.FramesDropped, err = meter.Int64Counter(
		"voicegate.audio.frames_dropped",
		metric.WithDescription("Audio frames dropped by gating or conversion errors"),
	); err != nil {
		return nil, err
	}

	if m.CallDuration, err = meter.Float64Histogram(
		"voicegate.call.duration",
		metric.WithDescription("Call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}

	if m.ToolDuration, err = meter.Float64Histogram(
		"voicegate.tool.duration",
		metric.WithDescription("Tool dispatch latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(toolBuckets...),
	); err != nil {
		return nil, err
	}

	return m, nil
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide Metrics instance backed by the global
// OTel meter provider. Instruments are created on first use; register the
// real provider via [InitProvider] before the first call.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// The no-op provider never fails; fall back to it so callers
			// can always record without nil checks.
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
