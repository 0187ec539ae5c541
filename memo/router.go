package memo

import (
	"context"
	"path/filepath"
)

// Rule derives a per-dataset cache location from a call argument: when the
// named argument carries a filesystem location, results are cached next to
// the data at <value>/<Subpath> instead of the default store.
type Rule struct {
	// SourceArg is the parameter whose value is a filesystem location.
	SourceArg string

	// Subpath is joined onto the argument's value to form the store
	// location.
	Subpath string
}

// Router decides which store handles a call: an explicit run-time override
// path, a routing-rule-derived location, or the process-default store.
//
// Stores resolved from an override or a rule are opened fresh on every call;
// only the default store is a long-lived instance. Re-opening is a deliberate
// simplicity tradeoff: callers that hit a non-default location often should
// construct a Cacher there instead.
type Router struct {
	defaultStore *Store
	rule         *Rule
	open         func(ctx context.Context, location string, byteLimit int64) (*Store, error)
}

// NewRouter creates a router around a default store (which may be nil when
// the default location was unusable). opts applies to stores the router
// opens on demand.
func NewRouter(defaultStore *Store, rule *Rule, opts *OpenOptions) *Router {
	return &Router{
		defaultStore: defaultStore,
		rule:         rule,
		open: func(ctx context.Context, location string, byteLimit int64) (*Store, error) {
			return Open(ctx, location, byteLimit, opts)
		},
	}
}

// Resolve returns the store for one call. A nil store with a nil error means
// the location is unusable and caching is bypassed for this call; a missing
// parent directory propagates as ErrMissingParent.
//
// An explicit overridePath always wins. Otherwise, a configured rule whose
// source argument is present with a non-empty string value derives the
// location. Otherwise the default store is used. On-demand stores get an
// auto-computed byte limit.
func (r *Router) Resolve(ctx context.Context, overridePath string, args Args) (*Store, error) {
	if overridePath != "" {
		return r.open(ctx, overridePath, 0)
	}
	if r.rule != nil && r.rule.SourceArg != "" {
		if v, ok := args[r.rule.SourceArg]; ok {
			if base, ok := v.(string); ok && base != "" {
				return r.open(ctx, filepath.Join(ExpandHome(base), r.rule.Subpath), 0)
			}
		}
	}
	return r.defaultStore, nil
}
