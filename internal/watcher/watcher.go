package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"scanwatch/internal/config"
	"scanwatch/internal/logging"
)

// ErrAlreadyRunning is returned by Start when the watcher is active.
var ErrAlreadyRunning = errors.New("watcher already running")

const joinTimeout = 5 * time.Second

// ReadyFunc receives the path of a file whose bytes have stopped changing.
// Exactly one call is made per path within a watcher lifetime.
type ReadyFunc func(path string)

// Watcher observes one directory (non-recursive) for files matching a
// case-sensitive name prefix and reports each one once it has been stable
// for the configured window.
//
// Detection and consumption are decoupled: the poll loop only judges
// stability and pushes ready paths onto a bounded queue; a single consumer
// goroutine drains that queue into the callback. A slow consumer therefore
// never delays stability evaluation of other pending files.
type Watcher struct {
	dir          string
	prefix       string
	pollInterval time.Duration
	window       time.Duration
	onReady      ReadyFunc
	logger       *slog.Logger

	tracker *Tracker
	queue   chan string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	fsn     *fsnotify.Watcher
	wg      sync.WaitGroup
}

// New constructs a Watcher from config. onReady must be non-nil.
func New(cfg *config.Config, onReady ReadyFunc, logger *slog.Logger) (*Watcher, error) {
	if onReady == nil {
		return nil, errors.New("watcher: ready callback is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	window := time.Duration(cfg.Processing.StabilityWindowSeconds * float64(time.Second))
	return &Watcher{
		dir:          cfg.Paths.WatchDir,
		prefix:       cfg.Processing.FilePrefix,
		pollInterval: time.Duration(cfg.Processing.PollIntervalMs) * time.Millisecond,
		window:       window,
		onReady:      onReady,
		logger:       logging.NewComponentLogger(logger, "watcher"),
		tracker:      NewTracker(window),
		queue:        make(chan string, cfg.Processing.QueueCapacity),
	}, nil
}

// Start begins filesystem event subscription, the stability poll loop, and
// the ready-queue consumer. It fails if the watcher is already running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}

	fsn, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fsn.Add(w.dir); err != nil {
		fsn.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	w.fsn = fsn
	w.stopCh = make(chan struct{})
	w.tracker.Reset()
	w.running = true

	w.wg.Add(3)
	go w.eventLoop()
	go w.pollLoop()
	go w.consumeLoop()

	w.logger.Info("watching directory",
		logging.String("dir", w.dir),
		logging.String("prefix", w.prefix),
		logging.Duration("stability_window", w.window))
	return nil
}

// Stop unsubscribes, halts the loops, and clears tracked state. No callbacks
// fire after Stop returns. Calling Stop on a stopped watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.fsn.Close()
	w.mu.Unlock()

	if !waitTimeout(&w.wg, joinTimeout) {
		w.logger.Warn("watcher loops did not stop within join timeout")
	}
	w.tracker.Reset()
	w.logger.Info("watcher stopped")
}

// Pending reports the number of files currently awaiting stability.
func (w *Watcher) Pending() int {
	return w.tracker.Pending()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsn.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasPrefix(name, w.prefix) {
				continue
			}
			w.tracker.Observe(event.Name)
		case err, ok := <-w.fsn.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("filesystem event error", logging.Error(err))
			}
		}
	}
}

func (w *Watcher) pollLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			for _, path := range w.tracker.Sweep() {
				select {
				case w.queue <- path:
					w.logger.Debug("file stable", logging.String("path", path))
				default:
					// Queue full. Drop the debounce mark so the next
					// write event re-tracks the file.
					w.tracker.Unreport(path)
					w.tracker.Observe(path)
					w.logger.Warn("ready queue full, deferring file",
						logging.String("path", path))
				}
			}
		}
	}
}

func (w *Watcher) consumeLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case path := <-w.queue:
			w.onReady(path)
		}
	}
}

// IsStable blocks for the stability window and reports whether path's size
// and mtime were unchanged across it. It is independent of the background
// loops and tracked-entry state.
func (w *Watcher) IsStable(ctx context.Context, path string) (bool, error) {
	sizeBefore, modBefore, err := w.tracker.stat(path)
	if err != nil {
		return false, err
	}

	timer := time.NewTimer(w.window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
	}

	sizeAfter, modAfter, err := w.tracker.stat(path)
	if err != nil {
		return false, err
	}
	return sizeBefore == sizeAfter && modBefore.Equal(modAfter), nil
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
