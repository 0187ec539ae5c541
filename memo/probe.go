package memo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/jonwraymond/memocache/observe"
)

const (
	// DefaultMinFreeBytes is the free-space floor below which a location is
	// considered unusable.
	DefaultMinFreeBytes int64 = 100 << 20 // 100 MiB

	// LowSpaceBytes is the threshold below which a still-usable location
	// draws a warning: caching will quickly fill the remaining space.
	LowSpaceBytes int64 = 5_000_000_000

	// reserveBytes is held back from free space when no byte limit is
	// configured at open time.
	reserveBytes int64 = 1_000_000_000
)

var (
	defaultLogOnce sync.Once
	defaultLog     observe.Logger
)

// defaultLogger is the stderr warn-level logger used when none is injected.
func defaultLogger() observe.Logger {
	defaultLogOnce.Do(func() {
		defaultLog = observe.NewLogger("warn")
	})
	return defaultLog
}

// Probe checks whether a directory can host a cache store. It holds no state
// beyond the logger its diagnostics go to.
type Probe struct {
	Log observe.Logger
}

func (p Probe) logger() observe.Logger {
	if p.Log != nil {
		return p.Log
	}
	return defaultLogger()
}

// Usable reports whether path can host a cache store with at least
// minFreeBytes of free space. It never returns an error: permission and
// space problems are logged and reported as false. A zero or negative
// minFreeBytes means DefaultMinFreeBytes.
//
// The path itself may not exist yet; its parent is probed in that case.
func (p Probe) Usable(ctx context.Context, path string, minFreeBytes int64) bool {
	if minFreeBytes <= 0 {
		minFreeBytes = DefaultMinFreeBytes
	}
	path = ExpandHome(path)

	probeAt := path
	if _, err := os.Stat(path); err != nil {
		parent := filepath.Dir(path)
		if _, err := os.Stat(parent); err != nil {
			p.logger().Warn(ctx, "cache location and its parent do not exist, caching aborted",
				observe.Field{Key: "path", Value: path})
			return false
		}
		probeAt = parent
	}

	if !writable(probeAt) {
		p.logger().Warn(ctx, "cache location is not writable, caching aborted",
			observe.Field{Key: "path", Value: probeAt})
		return false
	}

	free, err := FreeBytes(probeAt)
	if err != nil {
		p.logger().Warn(ctx, "failed to check free space, caching aborted",
			observe.Field{Key: "path", Value: probeAt},
			observe.Field{Key: "error", Value: err.Error()})
		return false
	}
	if free < minFreeBytes {
		p.logger().Warn(ctx, "insufficient free space at cache location, caching aborted",
			observe.Field{Key: "path", Value: probeAt},
			observe.Field{Key: "free", Value: humanize.Bytes(uint64(free))},
			observe.Field{Key: "required", Value: humanize.Bytes(uint64(minFreeBytes))})
		return false
	}
	if free < LowSpaceBytes {
		p.logger().Warn(ctx, "less than 5GB free at cache location, caching will quickly fill the remaining space",
			observe.Field{Key: "path", Value: probeAt},
			observe.Field{Key: "free", Value: humanize.Bytes(uint64(free))})
	}
	return true
}

// writable reports whether the current process can write to path.
func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

// FreeBytes returns the number of bytes available to unprivileged writers at
// path.
func FreeBytes(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}

// ExpandHome resolves a leading "~" or "~/" to the current user's home
// directory. Paths without the prefix are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
