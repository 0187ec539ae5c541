package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*metricsImpl, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

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

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	found := findMetric(rm, name)
	if found == nil {
		t.Fatalf("%s metric not found", name)
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64] for %s, got %T", name, found.Data)
	}
	if len(sum.DataPoints) == 0 {
		t.Fatalf("no data points for %s", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestMetrics_LookupCounters verifies hits and misses land on separate counters.
func TestMetrics_LookupCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLookup(ctx, "load_data", true)
	m.RecordLookup(ctx, "load_data", true)
	m.RecordLookup(ctx, "load_data", false)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.lookup.hits"); got != 2 {
		t.Errorf("expected 2 hits, got %d", got)
	}
	if got := sumValue(t, rm, "memo.lookup.misses"); got != 1 {
		t.Errorf("expected 1 miss, got %d", got)
	}
}

// TestMetrics_StoredBytes verifies persisted sizes accumulate.
func TestMetrics_StoredBytes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStored(ctx, "load_data", 100)
	m.RecordStored(ctx, "load_data", 250)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.store.stored_bytes"); got != 350 {
		t.Errorf("expected 350 stored bytes, got %d", got)
	}
}

// TestMetrics_Evictions verifies eviction counts accumulate.
func TestMetrics_Evictions(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordEvicted(context.Background(), "load_data", 3)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.store.evictions"); got != 3 {
		t.Errorf("expected 3 evictions, got %d", got)
	}
}

// TestMetrics_BypassAndInvalidate verifies the policy counters.
func TestMetrics_BypassAndInvalidate(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBypass(ctx, "load_data", "store unusable")
	m.RecordInvalidated(ctx, "load_data")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.bypass.total"); got != 1 {
		t.Errorf("expected 1 bypass, got %d", got)
	}
	if got := sumValue(t, rm, "memo.invalidate.total"); got != 1 {
		t.Errorf("expected 1 invalidation, got %d", got)
	}
}

// TestMetrics_ComputeErrorCounter verifies errors counter only moves on failure.
func TestMetrics_ComputeErrorCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCompute(ctx, "ok_fn", 50*time.Millisecond, nil)

	rm := collect(t, reader)
	if found := findMetric(rm, "memo.compute.errors"); found != nil {
		if sum, ok := found.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range sum.DataPoints {
				if dp.Value != 0 {
					t.Errorf("expected errors count 0 on success, got %d", dp.Value)
				}
			}
		}
	}

	m.RecordCompute(ctx, "bad_fn", 50*time.Millisecond, errors.New("boom"))

	rm = collect(t, reader)
	if got := sumValue(t, rm, "memo.compute.errors"); got != 1 {
		t.Errorf("expected 1 compute error, got %d", got)
	}
}

// TestMetrics_ComputeDurationHistogram verifies durations are recorded in ms.
func TestMetrics_ComputeDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordCompute(context.Background(), "load_data", 120*time.Millisecond, nil)

	rm := collect(t, reader)
	found := findMetric(rm, "memo.compute.duration_ms")
	if found == nil {
		t.Fatal("memo.compute.duration_ms metric not found")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", found.Data)
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if hist.DataPoints[0].Sum != 120 {
		t.Errorf("expected duration sum 120ms, got %f", hist.DataPoints[0].Sum)
	}
}
