package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	entryExt  = ".bin"
	tmpPrefix = ".tmp-"
)

// FSEngine is a filesystem key-value engine: one file per entry in a flat
// directory, named by the SHA-256 of the key. Writes go through a temp file
// and rename so readers never observe partial entries. Get refreshes the
// entry's mtime, giving ReduceToSize least-recently-used eviction order.
type FSEngine struct {
	root string

	// mu serializes Put/ReduceToSize within this process. Readers go
	// straight to the filesystem.
	mu sync.Mutex
}

// NewFSEngine creates an engine rooted at an existing directory.
func NewFSEngine(root string) (*FSEngine, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("memo: engine root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("memo: engine root %s is not a directory", root)
	}
	return &FSEngine{root: root}, nil
}

// Root returns the engine's directory.
func (e *FSEngine) Root() string {
	return e.root
}

// entryPath maps a key to its file. Keys are hashed so arbitrary key content
// never reaches the filesystem.
func (e *FSEngine) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(e.root, hex.EncodeToString(sum[:])+entryExt)
}

// Put stores value under key, replacing any existing entry.
func (e *FSEngine) Put(key string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tmp, err := os.CreateTemp(e.root, tmpPrefix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, e.entryPath(key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Get retrieves the value for key and refreshes its access time.
func (e *FSEngine) Get(key string) ([]byte, bool, error) {
	path := e.entryPath(key)
	value, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// Best effort: a failed touch only weakens the eviction order.
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return value, true, nil
}

// Delete removes the entry for key. No error if absent.
func (e *FSEngine) Delete(key string) error {
	err := os.Remove(e.entryPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ReduceToSize removes least-recently-used entries until resident size is at
// most limit bytes.
func (e *FSEngine) ReduceToSize(limit int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit < 0 {
		limit = 0
	}

	entries, total, err := e.list()
	if err != nil {
		return 0, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].mtime.Before(entries[j].mtime)
	})

	removed := 0
	for _, ent := range entries {
		if total <= limit {
			break
		}
		if err := os.Remove(ent.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		total -= ent.size
		removed++
	}
	return removed, nil
}

// SizeBytes returns the cumulative size of all entries.
func (e *FSEngine) SizeBytes() (int64, error) {
	_, total, err := e.list()
	return total, err
}

// PurgeOlderThan removes entries last touched before cutoff.
func (e *FSEngine) PurgeOlderThan(cutoff time.Time) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, _, err := e.list()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, ent := range entries {
		if !ent.mtime.Before(cutoff) {
			continue
		}
		if err := os.Remove(ent.path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}

type fsEntry struct {
	path  string
	size  int64
	mtime time.Time
}

// list enumerates entry files, skipping temp files and anything the engine
// did not write.
func (e *FSEngine) list() ([]fsEntry, int64, error) {
	dirents, err := os.ReadDir(e.root)
	if err != nil {
		return nil, 0, err
	}

	var entries []fsEntry
	var total int64
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, entryExt) || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, 0, err
		}
		entries = append(entries, fsEntry{
			path:  filepath.Join(e.root, name),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
		total += info.Size()
	}
	return entries, total, nil
}

// Ensure FSEngine implements Engine and AgePurger.
var (
	_ Engine    = (*FSEngine)(nil)
	_ AgePurger = (*FSEngine)(nil)
)
