package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newTestMonitor(t *testing.T, buf *bytes.Buffer) (*Monitor, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	tracer := newTracer(tracenoop.NewTracerProvider().Tracer("test"))
	return NewMonitor(tracer, m, NewLoggerWithWriter("debug", buf)), reader
}

// TestMonitor_HitMissRecorded verifies lookups flow through to the counters.
func TestMonitor_HitMissRecorded(t *testing.T) {
	var buf bytes.Buffer
	mon, reader := newTestMonitor(t, &buf)
	ctx := context.Background()

	mon.Hit(ctx, "load_data")
	mon.Miss(ctx, "load_data")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.lookup.hits"); got != 1 {
		t.Errorf("expected 1 hit, got %d", got)
	}
	if got := sumValue(t, rm, "memo.lookup.misses"); got != 1 {
		t.Errorf("expected 1 miss, got %d", got)
	}

	if !strings.Contains(buf.String(), "cache hit") || !strings.Contains(buf.String(), "cache miss") {
		t.Errorf("expected hit/miss debug logs, got: %s", buf.String())
	}
}

// TestMonitor_StoredAndEvicted verifies store lifecycle events are recorded.
func TestMonitor_StoredAndEvicted(t *testing.T) {
	var buf bytes.Buffer
	mon, reader := newTestMonitor(t, &buf)
	ctx := context.Background()

	mon.Stored(ctx, "load_data", 512)
	mon.Evicted(ctx, "load_data", 2)
	mon.Invalidated(ctx, "load_data")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.store.stored_bytes"); got != 512 {
		t.Errorf("expected 512 stored bytes, got %d", got)
	}
	if got := sumValue(t, rm, "memo.store.evictions"); got != 2 {
		t.Errorf("expected 2 evictions, got %d", got)
	}
	if got := sumValue(t, rm, "memo.invalidate.total"); got != 1 {
		t.Errorf("expected 1 invalidation, got %d", got)
	}
}

// TestMonitor_Bypassed verifies the reason reaches the debug log.
func TestMonitor_Bypassed(t *testing.T) {
	var buf bytes.Buffer
	mon, reader := newTestMonitor(t, &buf)

	mon.Bypassed(context.Background(), "load_data", "cache_results=false")

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.bypass.total"); got != 1 {
		t.Errorf("expected 1 bypass, got %d", got)
	}
	if !strings.Contains(buf.String(), "cache_results=false") {
		t.Errorf("expected bypass reason in log, got: %s", buf.String())
	}
}

// TestMonitor_ComputeScope_Success verifies duration and completion logging.
func TestMonitor_ComputeScope_Success(t *testing.T) {
	var buf bytes.Buffer
	mon, reader := newTestMonitor(t, &buf)

	_, done := mon.ComputeScope(context.Background(), "load_data")
	done(nil)

	rm := collect(t, reader)
	found := findMetric(rm, "memo.compute.duration_ms")
	if found == nil {
		t.Fatal("memo.compute.duration_ms metric not found")
	}
	hist, ok := found.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatalf("expected histogram data points, got %T", found.Data)
	}

	var logEntry map[string]any
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, line)
	}
	if logEntry["msg"] != "computation completed" {
		t.Errorf("expected completion log, got %v", logEntry["msg"])
	}
	if _, ok := logEntry["duration_ms"].(float64); !ok {
		t.Errorf("expected duration_ms field, got %v", logEntry)
	}
	if logEntry["memo.function"] != "load_data" {
		t.Errorf("expected memo.function field, got %v", logEntry)
	}
}

// TestMonitor_ComputeScope_Failure verifies the error counter and error log.
func TestMonitor_ComputeScope_Failure(t *testing.T) {
	var buf bytes.Buffer
	mon, reader := newTestMonitor(t, &buf)

	_, done := mon.ComputeScope(context.Background(), "load_data")
	done(errors.New("backend down"))

	rm := collect(t, reader)
	if got := sumValue(t, rm, "memo.compute.errors"); got != 1 {
		t.Errorf("expected 1 compute error, got %d", got)
	}

	var logEntry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &logEntry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}
	if logEntry["msg"] != "computation failed" {
		t.Errorf("expected failure log, got %v", logEntry["msg"])
	}
	if logEntry["error"] != "backend down" {
		t.Errorf("expected error field, got %v", logEntry["error"])
	}
	if logEntry["level"] != "error" {
		t.Errorf("expected error level, got %v", logEntry["level"])
	}
}

// TestNewMonitor_NilComponents verifies nil components degrade to no-ops.
func TestNewMonitor_NilComponents(t *testing.T) {
	mon := NewMonitor(nil, nil, nil)
	ctx := context.Background()

	// None of these may panic.
	mon.Hit(ctx, "f")
	mon.Miss(ctx, "f")
	mon.Stored(ctx, "f", 1)
	mon.Evicted(ctx, "f", 1)
	mon.Bypassed(ctx, "f", "reason")
	mon.Invalidated(ctx, "f")
	cctx, done := mon.ComputeScope(ctx, "f")
	if cctx == nil {
		t.Error("ComputeScope returned a nil context")
	}
	done(errors.New("boom"))
}

// TestMonitorFromObserver verifies the convenience constructor.
func TestMonitorFromObserver(t *testing.T) {
	if _, err := MonitorFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("MonitorFromObserver(nil) error = %v, want ErrNilObserver", err)
	}

	obs, err := NewObserver(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("NewObserver error = %v", err)
	}
	defer obs.Shutdown(context.Background())

	mon, err := MonitorFromObserver(obs)
	if err != nil {
		t.Fatalf("MonitorFromObserver error = %v", err)
	}
	mon.Hit(context.Background(), "f")
}
