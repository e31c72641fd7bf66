package observe_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/spicebay/voicegate/internal/observe"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(provider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestNewMetrics_InstrumentsRecord(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ToolCalls.Add(ctx, 2, metric.WithAttributes(
		attribute.String("tool", "manageOrder"),
		attribute.String("status", "ok"),
	))
	m.CallDuration.Record(ctx, 42.5)

	rm := collect(t, reader)

	if _, ok := findMetric(rm, "voicegate.sessions.active"); !ok {
		t.Error("sessions.active not collected")
	}

	tc, ok := findMetric(rm, "voicegate.tool.calls")
	if !ok {
		t.Fatal("tool.calls not collected")
	}
	sum, ok := tc.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("tool.calls data type %T", tc.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("tool.calls = %+v, want one point of 2", sum.DataPoints)
	}

	cd, ok := findMetric(rm, "voicegate.call.duration")
	if !ok {
		t.Fatal("call.duration not collected")
	}
	hist, ok := cd.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("call.duration data type %T", cd.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("call.duration = %+v, want one recording", hist.DataPoints)
	}
}

func TestDefault_IsSingleton(t *testing.T) {
	if observe.Default() != observe.Default() {
		t.Error("Default should return the same instance")
	}
}
