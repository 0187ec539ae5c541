package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache operation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records a cache lookup and whether it hit.
	RecordLookup(ctx context.Context, fn string, hit bool)

	// RecordStored records a persisted result and its encoded size.
	RecordStored(ctx context.Context, fn string, bytes int64)

	// RecordEvicted records entries removed by a size-bound eviction pass.
	RecordEvicted(ctx context.Context, fn string, removed int)

	// RecordBypass records a call that skipped caching.
	RecordBypass(ctx context.Context, fn string, reason string)

	// RecordInvalidated records a forced-recompute invalidation.
	RecordInvalidated(ctx context.Context, fn string)

	// RecordCompute records a computation with duration and error status.
	RecordCompute(ctx context.Context, fn string, duration time.Duration, err error)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	hits         metric.Int64Counter
	misses       metric.Int64Counter
	storedBytes  metric.Int64Counter
	evictions    metric.Int64Counter
	bypasses     metric.Int64Counter
	invalidation metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// newMetrics creates a new Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	hits, err := meter.Int64Counter(
		"memo.lookup.hits",
		metric.WithDescription("Cache lookups served from the store"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"memo.lookup.misses",
		metric.WithDescription("Cache lookups that found no entry"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	storedBytes, err := meter.Int64Counter(
		"memo.store.stored_bytes",
		metric.WithDescription("Encoded bytes persisted to cache stores"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"memo.store.evictions",
		metric.WithDescription("Entries removed by size-bound eviction"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	bypasses, err := meter.Int64Counter(
		"memo.bypass.total",
		metric.WithDescription("Calls that skipped caching"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	invalidation, err := meter.Int64Counter(
		"memo.invalidate.total",
		metric.WithDescription("Entries removed by forced recompute"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"memo.compute.errors",
		metric.WithDescription("Computations that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"memo.compute.duration_ms",
		metric.WithDescription("Computation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		hits:         hits,
		misses:       misses,
		storedBytes:  storedBytes,
		evictions:    evictions,
		bypasses:     bypasses,
		invalidation: invalidation,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func fnAttrs(fn string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("memo.function", fn))
}

func (m *metricsImpl) RecordLookup(ctx context.Context, fn string, hit bool) {
	if hit {
		m.hits.Add(ctx, 1, fnAttrs(fn))
	} else {
		m.misses.Add(ctx, 1, fnAttrs(fn))
	}
}

func (m *metricsImpl) RecordStored(ctx context.Context, fn string, bytes int64) {
	m.storedBytes.Add(ctx, bytes, fnAttrs(fn))
}

func (m *metricsImpl) RecordEvicted(ctx context.Context, fn string, removed int) {
	m.evictions.Add(ctx, int64(removed), fnAttrs(fn))
}

func (m *metricsImpl) RecordBypass(ctx context.Context, fn string, reason string) {
	m.bypasses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("memo.function", fn),
		attribute.String("memo.bypass.reason", reason),
	))
}

func (m *metricsImpl) RecordInvalidated(ctx context.Context, fn string) {
	m.invalidation.Add(ctx, 1, fnAttrs(fn))
}

func (m *metricsImpl) RecordCompute(ctx context.Context, fn string, duration time.Duration, err error) {
	opt := fnAttrs(fn)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, string, bool)                  {}
func (noopMetrics) RecordStored(context.Context, string, int64)                 {}
func (noopMetrics) RecordEvicted(context.Context, string, int)                  {}
func (noopMetrics) RecordBypass(context.Context, string, string)                {}
func (noopMetrics) RecordInvalidated(context.Context, string)                   {}
func (noopMetrics) RecordCompute(context.Context, string, time.Duration, error) {}

// Ensure implementations satisfy Metrics.
var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = noopMetrics{}
)
