package health

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/jonwraymond/memocache/memo"
)

// NewStoreChecker builds a checker for a cache store. A nil store (the soft
// unusable-location outcome at open time) reports unhealthy; free space
// under 5GB reports degraded; otherwise healthy, with location, resident
// size, and byte limit in the details.
func NewStoreChecker(name string, store *memo.Store) Checker {
	return NewCheckerFunc(name, func(ctx context.Context) Result {
		if store == nil {
			return Unhealthy("cache store unusable, caching bypassed", ErrNilStore)
		}

		resident, err := store.SizeBytes()
		if err != nil {
			return Unhealthy("failed to read cache store size", err)
		}
		free, err := memo.FreeBytes(store.Location())
		if err != nil {
			return Unhealthy("failed to read free space at cache location", err)
		}

		details := map[string]any{
			"location":       store.Location(),
			"resident_bytes": resident,
			"byte_limit":     store.ByteLimit(),
			"free":           humanize.Bytes(uint64(free)),
		}
		if free < memo.LowSpaceBytes {
			return Degraded("less than 5GB free at cache location").WithDetails(details)
		}
		return Healthy("cache store ok").WithDetails(details)
	})
}
