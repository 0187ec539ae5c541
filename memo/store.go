package memo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jonwraymond/memocache/observe"
)

// Engine is the persistent key-value store backing a Store. The core depends
// only on this contract; FSEngine is the default implementation.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use within one
//   process. Cross-process writers to the same key race at the engine's
//   granularity; no additional atomicity is guaranteed above it.
// - Errors: Get returns (nil, false, nil) on miss; Delete is idempotent.
type Engine interface {
	// Put stores value under key, replacing any existing entry.
	Put(key string, value []byte) error

	// Get retrieves the value for key. Returns (nil, false, nil) on miss.
	Get(key string) ([]byte, bool, error)

	// Delete removes the entry for key. No error if absent.
	Delete(key string) error

	// ReduceToSize evicts entries, in an order of the engine's choosing,
	// until resident size is at most limit bytes. Returns the number of
	// entries removed.
	ReduceToSize(limit int64) (int, error)

	// SizeBytes returns the resident size of all entries.
	SizeBytes() (int64, error)
}

// AgePurger is implemented by engines that can expire idle entries.
type AgePurger interface {
	// PurgeOlderThan removes entries last touched before cutoff and returns
	// the number removed.
	PurgeOlderThan(cutoff time.Time) (int, error)
}

// EngineOpener constructs an Engine rooted at an existing directory.
type EngineOpener func(root string) (Engine, error)

// OpenOptions customizes Open. The zero value selects the filesystem engine,
// the default warn-level logger, and no event notifications.
type OpenOptions struct {
	Engine       EngineOpener
	Logger       observe.Logger
	Events       Events
	MinFreeBytes int64
}

func (o OpenOptions) withDefaults() OpenOptions {
	if o.Engine == nil {
		o.Engine = func(root string) (Engine, error) { return NewFSEngine(root) }
	}
	if o.Logger == nil {
		o.Logger = defaultLogger()
	}
	if o.Events == nil {
		o.Events = NopEvents()
	}
	return o
}

// Store owns one physical cache location: a directory-backed key-value store
// with a byte-size eviction ceiling.
//
// Contract:
// - Invariant: resident size at the location is at most ByteLimit after
//   every Store call.
// - Lifecycle: created lazily on first use of a location, lives for the
//   process; there is no Close.
type Store struct {
	location  string
	byteLimit int64
	engine    Engine
	log       observe.Logger
	events    Events
}

// Open opens (creating if necessary) a cache store at location.
//
// A missing parent directory is a configuration error and returns
// ErrMissingParent. A location that is merely unusable (not writable, or
// less than the minimum free space) is a soft condition: Open logs a
// diagnostic and returns (nil, nil), and callers degrade to uncached
// execution.
//
// A byteLimit of zero or less defaults to the free space at location minus
// one gigabyte.
func Open(ctx context.Context, location string, byteLimit int64, opts *OpenOptions) (*Store, error) {
	var o OpenOptions
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults()

	location = ExpandHome(location)
	parent := filepath.Dir(location)
	if _, err := os.Stat(parent); err != nil {
		return nil, fmt.Errorf("%w: %s (create %s or choose another location)",
			ErrMissingParent, location, parent)
	}

	probe := Probe{Log: o.Logger}
	if !probe.Usable(ctx, location, o.MinFreeBytes) {
		return nil, nil
	}

	if err := os.Mkdir(location, 0o755); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("memo: create cache directory %s: %w", location, err)
	}

	free, err := FreeBytes(location)
	if err != nil {
		return nil, fmt.Errorf("memo: probe free space at %s: %w", location, err)
	}
	if byteLimit <= 0 {
		byteLimit = free - reserveBytes
		if byteLimit < 0 {
			byteLimit = 0
		}
	}
	if free < LowSpaceBytes {
		o.Logger.Warn(ctx, "opening cache store with low free space",
			observe.Field{Key: "location", Value: location},
			observe.Field{Key: "free", Value: humanize.Bytes(uint64(free))},
			observe.Field{Key: "allocation", Value: humanize.Bytes(uint64(byteLimit))})
	}

	engine, err := o.Engine(location)
	if err != nil {
		return nil, fmt.Errorf("memo: open storage engine at %s: %w", location, err)
	}

	return &Store{
		location:  location,
		byteLimit: byteLimit,
		engine:    engine,
		log:       o.Logger,
		events:    o.Events,
	}, nil
}

// Location returns the directory this store writes to.
func (s *Store) Location() string {
	return s.location
}

// ByteLimit returns the eviction ceiling in bytes.
func (s *Store) ByteLimit() int64 {
	return s.byteLimit
}

// Lookup retrieves the stored result for fp. Returns (nil, false, nil) on
// miss.
func (s *Store) Lookup(ctx context.Context, fp Fingerprint) ([]byte, bool, error) {
	key, err := fp.Key()
	if err != nil {
		return nil, false, err
	}
	value, ok, err := s.engine.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("memo: lookup %s: %w", key, err)
	}
	return value, ok, nil
}

// Store persists (fp, value) and immediately evicts down to the byte limit.
func (s *Store) Store(ctx context.Context, fp Fingerprint, value []byte) error {
	key, err := fp.Key()
	if err != nil {
		return err
	}
	if err := s.engine.Put(key, value); err != nil {
		return fmt.Errorf("memo: store %s: %w", key, err)
	}
	s.events.Stored(ctx, fp.Function, int64(len(value)))

	removed, err := s.engine.ReduceToSize(s.byteLimit)
	if err != nil {
		return fmt.Errorf("memo: evict at %s: %w", s.location, err)
	}
	if removed > 0 {
		s.events.Evicted(ctx, fp.Function, removed)
		s.log.Debug(ctx, "evicted cache entries",
			observe.Field{Key: "location", Value: s.location},
			observe.Field{Key: "removed", Value: removed})
	}
	return nil
}

// Invalidate removes any stored entry for fp. No error if absent.
func (s *Store) Invalidate(ctx context.Context, fp Fingerprint) error {
	key, err := fp.Key()
	if err != nil {
		return err
	}
	if err := s.engine.Delete(key); err != nil {
		return fmt.Errorf("memo: invalidate %s: %w", key, err)
	}
	return nil
}

// Clear removes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.engine.ReduceToSize(0); err != nil {
		return fmt.Errorf("memo: clear %s: %w", s.location, err)
	}
	return nil
}

// PurgeOlderThan removes entries last touched more than age ago. Engines
// that do not implement AgePurger report zero removals.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int, error) {
	purger, ok := s.engine.(AgePurger)
	if !ok {
		return 0, nil
	}
	removed, err := purger.PurgeOlderThan(time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("memo: purge %s: %w", s.location, err)
	}
	if removed > 0 {
		s.log.Debug(ctx, "purged idle cache entries",
			observe.Field{Key: "location", Value: s.location},
			observe.Field{Key: "removed", Value: removed})
	}
	return removed, nil
}

// SizeBytes returns the resident size of the store.
func (s *Store) SizeBytes() (int64, error) {
	return s.engine.SizeBytes()
}
