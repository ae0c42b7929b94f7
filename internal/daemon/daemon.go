package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scanwatch/internal/config"
	"scanwatch/internal/fileutil"
	"scanwatch/internal/logging"
	"scanwatch/internal/notifications"
	"scanwatch/internal/queue"
	"scanwatch/internal/services"
	"scanwatch/internal/watcher"
	"scanwatch/internal/workflow"
)

// tempDirMaxAge bounds how long abandoned working directories survive a
// crash before startup sweeping removes them.
const tempDirMaxAge = 24 * time.Hour

// Daemon coordinates the watcher and workflow manager and enforces
// single-instance execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	watcher  *watcher.Watcher
	workflow *workflow.Manager
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	PendingScans int
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, w *watcher.Watcher, wf *workflow.Manager, notifier notifications.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || w == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, watcher, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "scanwatchd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		watcher:  w,
		workflow: wf,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "scanwatch.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, sweeps stale working directories, and
// launches the workflow manager, directory watcher, and health monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scanwatch daemon instance is already running")
	}

	if removed, sweepErr := fileutil.SweepTempDir(d.cfg.Paths.TempDir, tempDirMaxAge); sweepErr != nil {
		d.logger.Warn("temp dir sweep failed", logging.Error(sweepErr))
	} else if removed > 0 {
		d.logger.Info("removed stale working directories", logging.Int("count", removed))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.teardown()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.watcher.Start(); err != nil {
		d.workflow.Stop()
		d.teardown()
		return fmt.Errorf("start watcher: %w", err)
	}

	d.wg.Add(1)
	go d.healthLoop(d.ctx)

	d.running.Store(true)
	d.logger.Info("scanwatch daemon started",
		logging.String("watch_dir", d.cfg.Paths.WatchDir),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the watcher, workflow, and health monitor, then releases the
// daemon lock. An in-flight pipeline run finishes before Stop returns.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
	}
	d.watcher.Stop()
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.cancel = nil
	d.running.Store(false)
	d.logger.Info("scanwatch daemon stopped")
}

func (d *Daemon) teardown() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// RetryFailed resets failed items (optionally a subset) back to pending and
// wakes the workflow lane.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	count, err := d.store.RetryFailed(ctx, ids...)
	if err == nil && count > 0 {
		d.workflow.Wake()
	}
	return count, err
}

// ResetStuck transitions in-flight items back to pending for retry.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// AddFile enqueues a document manually, bypassing the watcher. The file
// still goes through the full pipeline.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string) (*queue.Item, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "", "add_file", fmt.Sprintf("source file %q is not accessible", absPath), err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", absPath)
	}
	if !strings.EqualFold(filepath.Ext(absPath), ".pdf") {
		return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(absPath))
	}
	item, err := d.store.NewFile(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("enqueue manual file: %w", err)
	}
	d.workflow.Wake()
	d.logger.Info("manual file queued",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("source", absPath))
	return item, nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		PendingScans: d.watcher.Pending(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
