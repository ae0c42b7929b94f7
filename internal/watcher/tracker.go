package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WatchEntry holds the polling state for one pending file. Entries are owned
// by the Tracker and never escape it.
type WatchEntry struct {
	Path          string
	FirstSeenAt   time.Time
	LastSize      int64
	LastModified  time.Time
	LastChangeAt  time.Time
	LastCheckedAt time.Time
}

// StatFunc reports a file's current size and modification time.
type StatFunc func(path string) (int64, time.Time, error)

func osStat(path string) (int64, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// Tracker maintains per-path size and mtime history and decides when a file
// has stopped changing. One mutex guards the whole map; there is never more
// than one entry per canonicalized path.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]*WatchEntry
	reported map[string]struct{}
	window   time.Duration
	stat     StatFunc
	now      func() time.Time
}

// NewTracker constructs a Tracker with the given stability window.
func NewTracker(window time.Duration) *Tracker {
	return &Tracker{
		entries:  make(map[string]*WatchEntry),
		reported: make(map[string]struct{}),
		window:   window,
		stat:     osStat,
		now:      time.Now,
	}
}

// Observe records a create or modify event for path. Paths already reported
// in this tracker lifetime are ignored.
func (t *Tracker) Observe(path string) {
	canonical := filepath.Clean(path)

	size, modified, err := t.stat(canonical)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, done := t.reported[canonical]; done {
		return
	}

	now := t.now()
	entry, ok := t.entries[canonical]
	if !ok {
		t.entries[canonical] = &WatchEntry{
			Path:         canonical,
			FirstSeenAt:  now,
			LastSize:     size,
			LastModified: modified,
			LastChangeAt: now,
		}
		return
	}
	if entry.LastSize != size || !entry.LastModified.Equal(modified) {
		entry.LastSize = size
		entry.LastModified = modified
		entry.LastChangeAt = now
	}
}

// Sweep re-stats every tracked entry and returns the paths that have been
// stable for at least the window. Returned paths are marked reported and
// removed; vanished or unreadable files are dropped silently.
func (t *Tracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var stable []string
	for path, entry := range t.entries {
		size, modified, err := t.stat(path)
		if err != nil {
			// Gone or unreadable. Forget it without a callback.
			delete(t.entries, path)
			continue
		}
		entry.LastCheckedAt = now

		if size != entry.LastSize || !modified.Equal(entry.LastModified) {
			entry.LastSize = size
			entry.LastModified = modified
			entry.LastChangeAt = now
			continue
		}

		if now.Sub(entry.LastChangeAt) >= t.window {
			stable = append(stable, path)
			t.reported[path] = struct{}{}
			delete(t.entries, path)
		}
	}
	return stable
}

// Unreport clears the debounce mark for path so a future write is picked up
// again. Used when a reported path could not be handed off.
func (t *Tracker) Unreport(path string) {
	canonical := filepath.Clean(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.reported, canonical)
}

// Pending reports the number of tracked entries.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Reset discards all tracked entries and debounce history.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*WatchEntry)
	t.reported = make(map[string]struct{})
}
