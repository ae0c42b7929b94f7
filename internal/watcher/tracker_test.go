package watcher

import (
	"errors"
	"testing"
	"time"
)

type fakeFS struct {
	size map[string]int64
	mod  map[string]time.Time
	err  map[string]error
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		size: make(map[string]int64),
		mod:  make(map[string]time.Time),
		err:  make(map[string]error),
	}
}

func (f *fakeFS) stat(path string) (int64, time.Time, error) {
	if err, ok := f.err[path]; ok {
		return 0, time.Time{}, err
	}
	size, ok := f.size[path]
	if !ok {
		return 0, time.Time{}, errors.New("no such file")
	}
	return size, f.mod[path], nil
}

func newTestTracker(fs *fakeFS, window time.Duration) (*Tracker, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tracker := NewTracker(window)
	tracker.stat = fs.stat
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestSweepReportsStableFileOnce(t *testing.T) {
	fs := newFakeFS()
	fs.size["/in/SCAN-a.pdf"] = 100
	fs.mod["/in/SCAN-a.pdf"] = time.Unix(1000, 0)

	tracker, now := newTestTracker(fs, 2*time.Second)
	tracker.Observe("/in/SCAN-a.pdf")

	// Inside the window: still pending.
	*now = now.Add(time.Second)
	if stable := tracker.Sweep(); len(stable) != 0 {
		t.Fatalf("reported too early: %v", stable)
	}

	*now = now.Add(1500 * time.Millisecond)
	stable := tracker.Sweep()
	if len(stable) != 1 || stable[0] != "/in/SCAN-a.pdf" {
		t.Fatalf("expected one stable path, got %v", stable)
	}

	// Subsequent sweeps and observes are debounced.
	*now = now.Add(10 * time.Second)
	tracker.Observe("/in/SCAN-a.pdf")
	if stable := tracker.Sweep(); len(stable) != 0 {
		t.Fatalf("path reported twice: %v", stable)
	}
}

func TestSweepResetsClockOnChange(t *testing.T) {
	fs := newFakeFS()
	fs.size["/in/SCAN-a.pdf"] = 100
	fs.mod["/in/SCAN-a.pdf"] = time.Unix(1000, 0)

	tracker, now := newTestTracker(fs, 2*time.Second)
	tracker.Observe("/in/SCAN-a.pdf")

	// File grows just before the window would elapse.
	*now = now.Add(1900 * time.Millisecond)
	fs.size["/in/SCAN-a.pdf"] = 200
	if stable := tracker.Sweep(); len(stable) != 0 {
		t.Fatalf("changed file reported: %v", stable)
	}

	// One more window must pass from the change.
	*now = now.Add(time.Second)
	if stable := tracker.Sweep(); len(stable) != 0 {
		t.Fatalf("reported before new window elapsed: %v", stable)
	}
	*now = now.Add(1500 * time.Millisecond)
	if stable := tracker.Sweep(); len(stable) != 1 {
		t.Fatalf("expected stable after renewed window, got %v", stable)
	}
}

func TestSweepDropsVanishedFileSilently(t *testing.T) {
	fs := newFakeFS()
	fs.size["/in/SCAN-a.pdf"] = 100
	fs.mod["/in/SCAN-a.pdf"] = time.Unix(1000, 0)

	tracker, now := newTestTracker(fs, 2*time.Second)
	tracker.Observe("/in/SCAN-a.pdf")
	delete(fs.size, "/in/SCAN-a.pdf")

	*now = now.Add(3 * time.Second)
	if stable := tracker.Sweep(); len(stable) != 0 {
		t.Fatalf("vanished file reported: %v", stable)
	}
	if tracker.Pending() != 0 {
		t.Fatal("vanished file still tracked")
	}
}

func TestSweepDropsUnreadableFileSilently(t *testing.T) {
	fs := newFakeFS()
	fs.size["/in/SCAN-a.pdf"] = 100
	fs.mod["/in/SCAN-a.pdf"] = time.Unix(1000, 0)

	tracker, now := newTestTracker(fs, 2*time.Second)
	tracker.Observe("/in/SCAN-a.pdf")
	fs.err["/in/SCAN-a.pdf"] = errors.New("permission denied")

	*now = now.Add(3 * time.Second)
	if stable := tracker.Sweep(); len(stable) != 0 {
		t.Fatalf("unreadable file reported: %v", stable)
	}
	if tracker.Pending() != 0 {
		t.Fatal("unreadable file still tracked")
	}
}

func TestObserveCanonicalizesPath(t *testing.T) {
	fs := newFakeFS()
	fs.size["/in/SCAN-a.pdf"] = 100
	fs.mod["/in/SCAN-a.pdf"] = time.Unix(1000, 0)

	tracker, _ := newTestTracker(fs, 2*time.Second)
	tracker.Observe("/in/SCAN-a.pdf")
	tracker.Observe("/in/./SCAN-a.pdf")
	tracker.Observe("/in//SCAN-a.pdf")

	if tracker.Pending() != 1 {
		t.Fatalf("expected one entry for canonicalized path, got %d", tracker.Pending())
	}
}

func TestUnreportAllowsRedetection(t *testing.T) {
	fs := newFakeFS()
	fs.size["/in/SCAN-a.pdf"] = 100
	fs.mod["/in/SCAN-a.pdf"] = time.Unix(1000, 0)

	tracker, now := newTestTracker(fs, time.Second)
	tracker.Observe("/in/SCAN-a.pdf")
	*now = now.Add(2 * time.Second)
	if got := tracker.Sweep(); len(got) != 1 {
		t.Fatalf("setup sweep: %v", got)
	}

	tracker.Unreport("/in/SCAN-a.pdf")
	tracker.Observe("/in/SCAN-a.pdf")
	*now = now.Add(2 * time.Second)
	if got := tracker.Sweep(); len(got) != 1 {
		t.Fatalf("expected redetection after Unreport, got %v", got)
	}
}
