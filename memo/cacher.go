package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/memocache/observe"
)

// DefaultCacheDirName is the directory under the user's home that holds the
// process-default cache.
const DefaultCacheDirName = ".memocache"

// DefaultCachePath returns the process-wide default cache root.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultCacheDirName
	}
	return filepath.Join(home, DefaultCacheDirName)
}

// Config configures a Cacher. The zero value caches at DefaultCachePath with
// an auto-computed byte limit.
type Config struct {
	// CachePath is the default store location.
	CachePath string

	// ByteLimit caps the default store's resident size. Zero means free
	// space at the location minus one gigabyte.
	ByteLimit int64

	// MinFreeBytes is the free-space floor below which a location is
	// unusable. Zero means DefaultMinFreeBytes.
	MinFreeBytes int64

	// Rule optionally routes calls to per-dataset stores.
	Rule *Rule

	// Logger receives diagnostics. Nil means a warn-level stderr logger.
	Logger observe.Logger

	// Events receives cache lifecycle notifications. Nil means none.
	Events Events

	// Engine overrides the storage engine. Nil means FSEngine.
	Engine EngineOpener
}

func (c Config) withDefaults() Config {
	if c.CachePath == "" {
		c.CachePath = DefaultCachePath()
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	if c.Events == nil {
		c.Events = NopEvents()
	}
	return c
}

// Cacher wraps functions with disk-backed memoization at a default store
// location.
//
// Contract:
// - Concurrency: safe for concurrent use; concurrent calls computing the
//   same fingerprint are deduplicated in-flight.
// - Lifecycle: lives for the process; there is no Close.
type Cacher struct {
	cfg    Config
	store  *Store // nil when the default location is unusable
	router *Router
	log    observe.Logger
	events Events
	group  singleflight.Group
}

// New creates a Cacher. A missing parent directory for the cache path is a
// configuration error; an unusable path (permissions, space) is logged and
// produces a Cacher whose calls all bypass the cache.
func New(ctx context.Context, cfg Config) (*Cacher, error) {
	cfg = cfg.withDefaults()
	opts := &OpenOptions{
		Engine:       cfg.Engine,
		Logger:       cfg.Logger,
		Events:       cfg.Events,
		MinFreeBytes: cfg.MinFreeBytes,
	}
	store, err := Open(ctx, cfg.CachePath, cfg.ByteLimit, opts)
	if err != nil {
		return nil, err
	}
	return &Cacher{
		cfg:    cfg,
		store:  store,
		router: NewRouter(store, cfg.Rule, opts),
		log:    cfg.Logger,
		events: cfg.Events,
	}, nil
}

var (
	defaultOnce   sync.Once
	defaultCacher *Cacher
	defaultErr    error
)

// Default returns the process-wide Cacher at DefaultCachePath, created on
// first use and shared by all callers that do not construct their own.
func Default() (*Cacher, error) {
	defaultOnce.Do(func() {
		defaultCacher, defaultErr = New(context.Background(), Config{})
	})
	return defaultCacher, defaultErr
}

// Store returns the default store, or nil when the default location was
// unusable.
func (c *Cacher) Store() *Store {
	return c.store
}

// String describes where and how much this Cacher caches.
func (c *Cacher) String() string {
	if c.store == nil {
		return fmt.Sprintf("memo.Cacher at %s (location unusable, caching bypassed)",
			ExpandHome(c.cfg.CachePath))
	}
	return fmt.Sprintf("memo.Cacher caching at %s with a maximum allocation of %s",
		c.store.Location(), humanize.Bytes(uint64(c.store.ByteLimit())))
}

// Fn is the computation a Func memoizes. Results must round-trip through the
// store codec (JSON); errors are never cached and propagate unchanged.
type Fn func(ctx context.Context, args Args) (any, error)

// Func is a wrapped function holding its policy, signature, and store by
// reference.
type Func struct {
	cacher *Cacher
	sig    Signature
	fn     Fn
}

// Wrap binds fn to this Cacher under the given signature.
func (c *Cacher) Wrap(sig Signature, fn Fn) (*Func, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return &Func{cacher: c, sig: sig, fn: fn}, nil
}

// Signature returns the wrapped function's signature.
func (f *Func) Signature() Signature {
	return f.sig
}

// ControlFlags are run-time cache modifiers extracted from a call's keyword
// arguments. They are never part of the fingerprint.
type ControlFlags struct {
	Recompute    bool
	CacheResults bool
	CachePath    string
}

// extractFlags reads the control flags from keyword arguments and returns
// the keyword set to forward. A control name is removed from the forwarded
// set only when the signature does not declare it; a declared control
// parameter is forwarded to the function and honored as a flag at the same
// time. Control flags are read from keyword arguments only, never from
// positional ones.
func (f *Func) extractFlags(keyword map[string]any) (ControlFlags, map[string]any) {
	flags := ControlFlags{CacheResults: true}
	kw := make(map[string]any, len(keyword))
	for k, v := range keyword {
		kw[k] = v
	}

	if v, ok := kw[ControlRecompute]; ok {
		if b, ok := v.(bool); ok {
			flags.Recompute = b
		}
		if !f.sig.Declares(ControlRecompute) {
			delete(kw, ControlRecompute)
		}
	}
	if v, ok := kw[ControlCacheResults]; ok {
		if b, ok := v.(bool); ok {
			flags.CacheResults = b
		}
		if !f.sig.Declares(ControlCacheResults) {
			delete(kw, ControlCacheResults)
		}
	}
	if v, ok := kw[ControlCachePath]; ok {
		if s, ok := v.(string); ok {
			flags.CachePath = s
		}
		if !f.sig.Declares(ControlCachePath) {
			delete(kw, ControlCachePath)
		}
	}
	return flags, kw
}

// Call invokes the wrapped function through the caching policy.
//
// Cached paths (hit or fresh store) return the result decoded from its
// stored form, so a hit and the computation that produced it are
// indistinguishable. Bypassed calls return the computed value directly.
func (f *Func) Call(ctx context.Context, positional []any, keyword map[string]any) (any, error) {
	flags, fkw := f.extractFlags(keyword)

	args, err := f.sig.Bind(positional, fkw)
	if err != nil {
		return nil, err
	}

	if !flags.CacheResults {
		f.cacher.events.Bypassed(ctx, f.sig.Name, "cache_results=false")
		return f.invoke(ctx, args)
	}

	store, err := f.cacher.router.Resolve(ctx, flags.CachePath, args)
	if err != nil {
		return nil, err
	}
	if store == nil {
		f.cacher.events.Bypassed(ctx, f.sig.Name, "store unusable")
		return f.invoke(ctx, args)
	}

	fp := Fingerprint{Function: f.sig.Name, Args: f.sig.fingerprintArgs(args)}
	key, err := fp.Key()
	if err != nil {
		return nil, err
	}

	// Forced recomputes never share an in-flight result.
	if flags.Recompute {
		return f.lookupOrCompute(ctx, store, fp, true, args)
	}
	v, err, _ := f.cacher.group.Do(key, func() (any, error) {
		return f.lookupOrCompute(ctx, store, fp, false, args)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (f *Func) lookupOrCompute(ctx context.Context, store *Store, fp Fingerprint, recompute bool, args Args) (any, error) {
	if recompute {
		if err := store.Invalidate(ctx, fp); err != nil {
			return nil, err
		}
		f.cacher.events.Invalidated(ctx, fp.Function)
	} else {
		raw, ok, err := store.Lookup(ctx, fp)
		if err != nil {
			return nil, err
		}
		if ok {
			f.cacher.events.Hit(ctx, fp.Function)
			return decodeValue(raw)
		}
	}
	f.cacher.events.Miss(ctx, fp.Function)

	result, err := f.invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	raw, err := encodeValue(result)
	if err != nil {
		return nil, fmt.Errorf("memo: encode result of %s: %w", f.sig.Name, err)
	}
	if err := store.Store(ctx, fp, raw); err != nil {
		return nil, err
	}
	// Round-trip through the codec so hits and fresh computations decode
	// identically.
	return decodeValue(raw)
}

// invoke runs the wrapped function inside a compute scope. Function errors
// propagate unchanged; there is no retry or suppression.
func (f *Func) invoke(ctx context.Context, args Args) (any, error) {
	cctx, done := f.cacher.events.ComputeScope(ctx, f.sig.Name)
	result, err := f.fn(cctx, args)
	done(err)
	return result, err
}

// Typed adapts a wrapped function to a concrete result type. Cached results
// decode directly into T; bypassed results are asserted, falling back to a
// codec round-trip when the dynamic type differs.
func Typed[T any](f *Func) func(ctx context.Context, positional []any, keyword map[string]any) (T, error) {
	return func(ctx context.Context, positional []any, keyword map[string]any) (T, error) {
		var zero T
		v, err := f.Call(ctx, positional, keyword)
		if err != nil {
			return zero, err
		}
		if typed, ok := v.(T); ok {
			return typed, nil
		}
		raw, err := encodeValue(v)
		if err != nil {
			return zero, fmt.Errorf("memo: encode result of %s: %w", f.sig.Name, err)
		}
		var typed T
		if err := json.Unmarshal(raw, &typed); err != nil {
			return zero, fmt.Errorf("memo: decode result of %s: %w", f.sig.Name, err)
		}
		return typed, nil
	}
}

// encodeValue serializes a result for storage.
func encodeValue(v any) ([]byte, error) {
	return json.Marshal(v)
}

// decodeValue deserializes a stored result.
func decodeValue(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("memo: decode stored result: %w", err)
	}
	return v, nil
}
