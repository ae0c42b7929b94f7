package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"scanwatch/internal/logging"
	"scanwatch/internal/pipeline"
	"scanwatch/internal/queue"
	"scanwatch/internal/services"
	"scanwatch/internal/testsupport"
)

type fakeProcessor struct {
	mu      sync.Mutex
	calls   []string
	results map[string]pipeline.Result
}

func (f *fakeProcessor) Process(ctx context.Context, path string) pipeline.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if res, ok := f.results[path]; ok {
		res.OriginalPath = path
		res.CorrelationID = fmt.Sprintf("corr-%d", len(f.calls))
		return res
	}
	return pipeline.Result{
		Success:       true,
		OriginalPath:  path,
		DocumentType:  "Invoice",
		FinalPath:     "/filed/20260115_Acme_Invoice.pdf",
		CorrelationID: fmt.Sprintf("corr-%d", len(f.calls)),
		ElapsedMs:     5,
	}
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu        sync.Mutex
	detected  []string
	completed []string
	unknown   []string
	failures  []string
	health    []string
}

func (r *recordingNotifier) NotifyFileDetected(_ context.Context, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detected = append(r.detected, filename)
	return nil
}

func (r *recordingNotifier) NotifyProcessingCompleted(_ context.Context, documentType, finalName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, documentType+"/"+finalName)
	return nil
}

func (r *recordingNotifier) NotifyUnknownDocument(_ context.Context, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknown = append(r.unknown, filename)
	return nil
}

func (r *recordingNotifier) NotifyError(_ context.Context, err error, contextLabel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, contextLabel)
	return nil
}

func (r *recordingNotifier) NotifyHealthAlert(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = append(r.health, message)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func (r *recordingNotifier) snapshot() (detected, completed, unknown, failures []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.detected...),
		append([]string(nil), r.completed...),
		append([]string(nil), r.unknown...),
		append([]string(nil), r.failures...)
}

func newTestManager(t *testing.T, proc *fakeProcessor) (*Manager, *queue.Store, *recordingNotifier) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	mgr := NewManager(cfg, store, proc, notifier, logging.NewNop())
	return mgr, store, notifier
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Item {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		item, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get item: %v", err)
		}
		if item != nil && item.Status == want {
			return item
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("item %d never reached status %s", id, want)
	return nil
}

func TestEnqueueQueuesPendingItem(t *testing.T) {
	mgr, store, notifier := newTestManager(t, &fakeProcessor{})

	mgr.Enqueue("/inbox/SCAN-1.pdf")

	item, err := store.NextForStatuses(context.Background(), queue.StatusPending)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if item == nil {
		t.Fatal("expected a pending item")
	}
	if item.SourcePath != "/inbox/SCAN-1.pdf" {
		t.Fatalf("source path = %q", item.SourcePath)
	}

	detected, _, _, _ := notifier.snapshot()
	if len(detected) != 1 || detected[0] != "SCAN-1.pdf" {
		t.Fatalf("detected notifications = %v", detected)
	}
}

func TestSuccessfulItemPersistsResult(t *testing.T) {
	proc := &fakeProcessor{}
	mgr, store, notifier := newTestManager(t, proc)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	mgr.Enqueue("/inbox/SCAN-2.pdf")
	pending, err := store.NextForStatuses(context.Background(), queue.StatusPending, queue.StatusProcessing, queue.StatusCompleted)
	if err != nil || pending == nil {
		t.Fatalf("lookup queued item: item=%v err=%v", pending, err)
	}

	item := waitForStatus(t, store, pending.ID, queue.StatusCompleted)
	if item.DocumentType != "Invoice" {
		t.Fatalf("document type = %q", item.DocumentType)
	}
	if item.FinalPath == "" {
		t.Fatal("final path not persisted")
	}
	if item.CorrelationID == "" {
		t.Fatal("correlation id not persisted")
	}
	if item.ErrorMessage != "" {
		t.Fatalf("unexpected error message %q", item.ErrorMessage)
	}
	if item.LastHeartbeat != nil {
		t.Fatal("heartbeat should be cleared after completion")
	}

	_, completed, _, _ := notifier.snapshot()
	if len(completed) != 1 {
		t.Fatalf("completed notifications = %v", completed)
	}
}

func TestClassifyFailureNotifiesUnknown(t *testing.T) {
	proc := &fakeProcessor{
		results: map[string]pipeline.Result{
			"/inbox/SCAN-3.pdf": {
				Success:     false,
				FailedStage: pipeline.StageClassify,
				FinalPath:   "/inbox/20260115_UNKNOWN_SCAN-3.pdf",
				Err:         services.Wrap(services.ErrTransient, pipeline.StageClassify, "chat", "model unavailable", nil),
			},
		},
	}
	mgr, store, notifier := newTestManager(t, proc)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	mgr.Enqueue("/inbox/SCAN-3.pdf")
	queued, err := store.NextForStatuses(context.Background(), queue.StatusPending, queue.StatusProcessing, queue.StatusFailed)
	if err != nil || queued == nil {
		t.Fatalf("lookup queued item: item=%v err=%v", queued, err)
	}

	item := waitForStatus(t, store, queued.ID, queue.StatusFailed)
	if item.ProgressStage != pipeline.StageClassify {
		t.Fatalf("progress stage = %q", item.ProgressStage)
	}
	if item.ErrorMessage == "" {
		t.Fatal("error message not persisted")
	}

	_, _, unknown, failures := notifier.snapshot()
	if len(unknown) != 1 {
		t.Fatalf("unknown notifications = %v", unknown)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected error notifications %v", failures)
	}
}

func TestConfigurationFailureLandsInReview(t *testing.T) {
	proc := &fakeProcessor{
		results: map[string]pipeline.Result{
			"/inbox/SCAN-4.pdf": {
				Success:     false,
				FailedStage: pipeline.StageClassify,
				Err:         services.Wrap(services.ErrConfiguration, pipeline.StageClassify, "auth", "api key rejected", nil),
			},
		},
	}
	mgr, store, _ := newTestManager(t, proc)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	mgr.Enqueue("/inbox/SCAN-4.pdf")
	queued, err := store.NextForStatuses(context.Background(), queue.StatusPending, queue.StatusProcessing, queue.StatusReview)
	if err != nil || queued == nil {
		t.Fatalf("lookup queued item: item=%v err=%v", queued, err)
	}

	waitForStatus(t, store, queued.ID, queue.StatusReview)
}

func TestStartTwiceFails(t *testing.T) {
	mgr, _, _ := newTestManager(t, &fakeProcessor{})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	if err := mgr.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start error = %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	mgr, _, _ := newTestManager(t, &fakeProcessor{})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	mgr.Stop()
	mgr.Stop()
}

func TestStartRecoversStuckProcessingItems(t *testing.T) {
	proc := &fakeProcessor{}
	mgr, store, _ := newTestManager(t, proc)

	item, err := store.NewFile(context.Background(), "/inbox/SCAN-5.pdf")
	if err != nil {
		t.Fatalf("new file: %v", err)
	}
	now := time.Now().UTC()
	item.Status = queue.StatusProcessing
	item.LastHeartbeat = &now
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	waitForStatus(t, store, item.ID, queue.StatusCompleted)
	if proc.callCount() != 1 {
		t.Fatalf("process calls = %d", proc.callCount())
	}
}

func TestItemsProcessInArrivalOrder(t *testing.T) {
	proc := &fakeProcessor{}
	mgr, store, _ := newTestManager(t, proc)

	var ids []int64
	for i := 1; i <= 3; i++ {
		item, err := store.NewFile(context.Background(), fmt.Sprintf("/inbox/SCAN-order-%d.pdf", i))
		if err != nil {
			t.Fatalf("new file: %v", err)
		}
		ids = append(ids, item.ID)
	}

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer mgr.Stop()

	for _, id := range ids {
		waitForStatus(t, store, id, queue.StatusCompleted)
	}

	proc.mu.Lock()
	calls := append([]string(nil), proc.calls...)
	proc.mu.Unlock()
	for i, call := range calls {
		want := fmt.Sprintf("/inbox/SCAN-order-%d.pdf", i+1)
		if call != want {
			t.Fatalf("call %d = %q, want %q", i, call, want)
		}
	}
}
