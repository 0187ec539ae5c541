package memo

import (
	"context"

	"github.com/jonwraymond/memocache/observe"
)

// Events receives cache lifecycle notifications. The observe package provides
// an OpenTelemetry-backed implementation; the zero-cost default drops
// everything.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic and should return quickly.
type Events interface {
	// Hit is called when a lookup is served from the store.
	Hit(ctx context.Context, fn string)

	// Miss is called when a lookup finds no entry.
	Miss(ctx context.Context, fn string)

	// Stored is called after a computed result is persisted.
	Stored(ctx context.Context, fn string, bytes int64)

	// Evicted is called when a store trims entries to its byte limit.
	Evicted(ctx context.Context, fn string, removed int)

	// Bypassed is called when a call skips caching entirely.
	Bypassed(ctx context.Context, fn string, reason string)

	// Invalidated is called when a forced recompute removes a stored entry.
	Invalidated(ctx context.Context, fn string)

	// ComputeScope is called immediately before the wrapped function runs.
	// The returned context is passed to the function; the returned callback
	// must be called exactly once when the computation finishes.
	ComputeScope(ctx context.Context, fn string) (context.Context, func(err error))
}

// nopEvents drops all notifications.
type nopEvents struct{}

// NopEvents returns an Events implementation that does nothing.
func NopEvents() Events {
	return nopEvents{}
}

func (nopEvents) Hit(context.Context, string)               {}
func (nopEvents) Miss(context.Context, string)              {}
func (nopEvents) Stored(context.Context, string, int64)     {}
func (nopEvents) Evicted(context.Context, string, int)      {}
func (nopEvents) Bypassed(context.Context, string, string)  {}
func (nopEvents) Invalidated(context.Context, string)       {}
func (nopEvents) ComputeScope(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Ensure the observe Monitor satisfies Events.
var _ Events = (*observe.Monitor)(nil)
