package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scanwatch/internal/config"
	"scanwatch/internal/daemon"
	"scanwatch/internal/logging"
	"scanwatch/internal/notifications"
	"scanwatch/internal/pipeline"
	"scanwatch/internal/testsupport"
	"scanwatch/internal/watcher"
	"scanwatch/internal/workflow"
)

type noopProcessor struct{}

func (noopProcessor) Process(_ context.Context, path string) pipeline.Result {
	return pipeline.Result{Success: true, OriginalPath: path, DocumentType: "Letter"}
}

func newTestDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	notifier := notifications.NewService(cfg)
	mgr := workflow.NewManager(cfg, store, noopProcessor{}, notifier, logger)
	w, err := watcher.New(cfg, mgr.Enqueue, logger)
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}
	d, err := daemon.New(cfg, store, w, mgr, notifier, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if !status.Workflow.Running {
		t.Fatal("expected workflow to report running")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockBlocksSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newTestDaemon(t, cfg)
	second := newTestDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected second instance to fail to acquire the lock")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second start after release: %v", err)
	}
}

func TestDaemonSweepsStaleWorkDirs(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	stale := filepath.Join(cfg.Paths.TempDir, "run-stale")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	d := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale work dir survived startup sweep: %v", err)
	}
}

func TestDaemonAddFileValidates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	ctx := context.Background()

	if _, err := d.AddFile(ctx, ""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := d.AddFile(ctx, filepath.Join(cfg.Paths.WatchDir, "missing.pdf")); err == nil {
		t.Fatal("expected error for missing file")
	}

	txt := testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "notes.txt"), []byte("x"))
	if _, err := d.AddFile(ctx, txt); err == nil {
		t.Fatal("expected error for non-pdf extension")
	}

	pdf := testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "manual.pdf"), []byte("%PDF-1.4"))
	item, err := d.AddFile(ctx, pdf)
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if item == nil || item.SourcePath != pdf {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestDaemonQueueFacade(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg)
	ctx := context.Background()

	pdf := testsupport.WriteFile(t, filepath.Join(cfg.Paths.WatchDir, "facade.pdf"), []byte("%PDF-1.4"))
	if _, err := d.AddFile(ctx, pdf); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	items, err := d.ListQueue(ctx, nil)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue length = %d", len(items))
	}

	health, err := d.QueueHealth(ctx)
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if health.Pending != 1 {
		t.Fatalf("pending = %d", health.Pending)
	}

	removed, err := d.ClearQueue(ctx)
	if err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
}
