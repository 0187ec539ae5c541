package observe

import (
	"context"
	"time"
)

// Monitor turns cache lifecycle events into traces, metrics, and logs. It
// satisfies the memo package's Events interface and is wired into a Cacher
// as its Events sink.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: propagates context through tracing spans.
//   - Errors: computation errors are recorded and never altered.
type Monitor struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMonitor creates a Monitor from the given observability components.
func NewMonitor(tracer Tracer, metrics Metrics, logger Logger) *Monitor {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = &noopLogger{}
	}
	return &Monitor{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// MonitorFromObserver creates a Monitor from an Observer.
// This is a convenience function for common use cases.
func MonitorFromObserver(obs Observer) (*Monitor, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMonitor(newTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Hit records a lookup served from the store.
func (m *Monitor) Hit(ctx context.Context, fn string) {
	m.metrics.RecordLookup(ctx, fn, true)
	m.logger.WithCache(CacheMeta{Function: fn}).Debug(ctx, "cache hit")
}

// Miss records a lookup that found no entry.
func (m *Monitor) Miss(ctx context.Context, fn string) {
	m.metrics.RecordLookup(ctx, fn, false)
	m.logger.WithCache(CacheMeta{Function: fn}).Debug(ctx, "cache miss")
}

// Stored records a persisted result.
func (m *Monitor) Stored(ctx context.Context, fn string, bytes int64) {
	m.metrics.RecordStored(ctx, fn, bytes)
}

// Evicted records entries removed by a size-bound eviction pass.
func (m *Monitor) Evicted(ctx context.Context, fn string, removed int) {
	m.metrics.RecordEvicted(ctx, fn, removed)
	m.logger.WithCache(CacheMeta{Function: fn}).Debug(ctx, "cache eviction",
		Field{Key: "removed", Value: removed})
}

// Bypassed records a call that skipped caching.
func (m *Monitor) Bypassed(ctx context.Context, fn string, reason string) {
	m.metrics.RecordBypass(ctx, fn, reason)
	m.logger.WithCache(CacheMeta{Function: fn}).Debug(ctx, "cache bypassed",
		Field{Key: "reason", Value: reason})
}

// Invalidated records a forced-recompute invalidation.
func (m *Monitor) Invalidated(ctx context.Context, fn string) {
	m.metrics.RecordInvalidated(ctx, fn)
}

// ComputeScope starts a span and timer around one computation. The returned
// callback ends the span, records duration and error status, and logs the
// outcome.
func (m *Monitor) ComputeScope(ctx context.Context, fn string) (context.Context, func(err error)) {
	meta := CacheMeta{Function: fn}
	cctx, span := m.tracer.StartSpan(ctx, meta)
	start := time.Now()

	return cctx, func(err error) {
		duration := time.Since(start)

		m.tracer.EndSpan(span, err)
		m.metrics.RecordCompute(ctx, fn, duration, err)

		logger := m.logger.WithCache(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}
		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			logger.Error(ctx, "computation failed", fields...)
		} else {
			logger.Info(ctx, "computation completed", fields...)
		}
	}
}
