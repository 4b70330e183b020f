package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestTurnDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.TurnDuration.Record(ctx, 1.5,
		metric.WithAttributes(attribute.String("status", "ok")))

	rm := collect(t, reader)
	data := findMetric(rm, "loreweave.turn.duration")
	if data == nil {
		t.Fatal("loreweave.turn.duration not found")
	}
	hist, ok := data.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want Histogram[float64]", data.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("datapoints = %d, want 1", len(hist.DataPoints))
	}
	if hist.DataPoints[0].Sum != 1.5 {
		t.Errorf("sum = %v, want 1.5", hist.DataPoints[0].Sum)
	}
}

func TestInteractionCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Interactions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	m.Interactions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "agent_error")))

	rm := collect(t, reader)
	data := findMetric(rm, "loreweave.interactions")
	if data == nil {
		t.Fatal("loreweave.interactions not found")
	}
	sum, ok := data.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", data.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Errorf("datapoints = %d, want one per status", len(sum.DataPoints))
	}
}

func TestObserveActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)

	count := int64(3)
	reg, err := m.ObserveActiveSessions(func() int64 { return count })
	if err != nil {
		t.Fatalf("ObserveActiveSessions: %v", err)
	}
	t.Cleanup(func() { _ = reg.Unregister() })

	rm := collect(t, reader)
	data := findMetric(rm, "loreweave.active_sessions")
	if data == nil {
		t.Fatal("loreweave.active_sessions not found")
	}
	gauge, ok := data.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("data type = %T, want Gauge[int64]", data.Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 3 {
		t.Errorf("datapoints = %+v, want one observation of 3", gauge.DataPoints)
	}

	count = 5
	rm = collect(t, reader)
	gauge = findMetric(rm, "loreweave.active_sessions").Data.(metricdata.Gauge[int64])
	if gauge.DataPoints[0].Value != 5 {
		t.Errorf("value = %d, want the callback's current value", gauge.DataPoints[0].Value)
	}
}

func TestDefaultMetrics_SamePointer(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics must return the same instance")
	}
}

func TestRecordCompletion(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordCompletion(context.Background(), "openai", "ok", 0.42)

	rm := collect(t, reader)
	if findMetric(rm, "loreweave.completion.duration") == nil {
		t.Fatal("loreweave.completion.duration not found")
	}
}
