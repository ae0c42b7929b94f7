package workflow

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"scanwatch/internal/config"
	"scanwatch/internal/logging"
	"scanwatch/internal/notifications"
	"scanwatch/internal/pipeline"
	"scanwatch/internal/queue"
	"scanwatch/internal/resilience"
	"scanwatch/internal/services"
)

// ErrAlreadyRunning is returned by Start when the manager is active.
var ErrAlreadyRunning = errors.New("workflow manager already running")

// Processor runs one file through the pipeline. Satisfied by
// *pipeline.Orchestrator.
type Processor interface {
	Process(ctx context.Context, path string) pipeline.Result
}

// Manager drains the queue with a single lane: one goroutine pulls pending
// items in insertion order and runs them through the pipeline one at a time.
// This lane is the system's only pipeline caller, so processing is strictly
// serialized end to end.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	processor Processor
	notifier  notifications.Service
	logger    *slog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wake     chan struct{}
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool
	LastError string
	LastItem  *queue.Item
	Queue     queue.HealthSummary
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	summary := StatusSummary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		item := *m.lastItem
		summary.LastItem = &item
	}
	m.mu.Unlock()

	health, err := m.store.Health(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue health", logging.Error(err))
	}
	summary.Queue = health
	return summary
}

func (m *Manager) recordOutcome(item *queue.Item, err error) {
	m.mu.Lock()
	m.lastErr = err
	if item != nil {
		copied := *item
		m.lastItem = &copied
	}
	m.mu.Unlock()
}

// NewManager constructs a Manager.
func NewManager(cfg *config.Config, store *queue.Store, processor Processor, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		processor: processor,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		wake:      make(chan struct{}, 1),
	}
}

// Start resets stuck items from a previous run and launches the lane.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.logger.Info("reset stuck items to pending", logging.Int64("count", reset))
	}

	m.stopCh = make(chan struct{})
	m.running = true
	m.wg.Add(1)
	go m.runLane()
	m.logger.Info("workflow manager started")
	return nil
}

// Stop halts the lane. An in-flight pipeline run completes before Stop
// returns; it is never cancelled mid-pipeline.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Enqueue records a stabilized file in the queue and wakes the lane. This is
// the watcher's ready callback target.
func (m *Manager) Enqueue(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	item, err := m.store.NewFile(ctx, path)
	if err != nil {
		m.logger.Error("enqueue failed",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	if item == nil {
		return
	}
	m.logger.Info("file queued",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("path", path))
	if err := m.notifier.NotifyFileDetected(ctx, filepath.Base(path)); err != nil {
		m.logger.Warn("notify file detected", logging.Error(err))
	}

	m.Wake()
}

// Wake nudges the lane to poll the queue immediately instead of waiting out
// the current poll interval.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) runLane() {
	defer m.wg.Done()
	pollInterval := time.Duration(m.cfg.Workflow.QueuePollInterval) * time.Second
	errorRetry := time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		item, err := m.store.NextForStatuses(context.Background(), queue.StatusPending)
		if err != nil {
			m.logger.Error("queue poll failed", logging.Error(err))
			if !m.sleepOrStop(errorRetry) {
				return
			}
			continue
		}
		if item == nil {
			if !m.sleepOrStop(pollInterval) {
				return
			}
			continue
		}

		m.processItem(item)
	}
}

// sleepOrStop waits for the duration, an enqueue wake-up, or shutdown.
// It reports false when the manager is stopping.
func (m *Manager) sleepOrStop(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.stopCh:
		return false
	case <-m.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (m *Manager) processItem(item *queue.Item) {
	ctx := services.WithItemID(context.Background(), item.ID)

	now := time.Now().UTC()
	item.Status = queue.StatusProcessing
	item.ProgressStage = "Processing"
	item.LastHeartbeat = &now
	if err := m.store.Update(ctx, item); err != nil {
		m.logger.Error("mark processing failed",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}

	result := m.processor.Process(ctx, item.SourcePath)

	item.CorrelationID = result.CorrelationID
	item.DocumentType = result.DocumentType
	item.FinalPath = result.FinalPath
	item.ElapsedMs = result.ElapsedMs
	item.LastHeartbeat = nil

	if result.Success {
		item.Status = queue.StatusCompleted
		item.ProgressStage = "Completed"
		item.ErrorMessage = ""
	} else {
		item.Status = services.FailureStatus(result.Err)
		item.ProgressStage = result.FailedStage
		item.ErrorMessage = services.Details(result.Err).Message
	}

	if err := m.store.Update(ctx, item); err != nil {
		m.logger.Error("persist result failed",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err))
	}

	m.recordOutcome(item, result.Err)
	m.report(ctx, item, result)
}

// report logs the outcome at a level matching its severity and sends the
// matching notification. Critical failures are flagged for the operator but
// never halt the lane; the next queued file still gets its turn.
func (m *Manager) report(ctx context.Context, item *queue.Item, result pipeline.Result) {
	base := filepath.Base(item.SourcePath)

	if result.Success {
		if err := m.notifier.NotifyProcessingCompleted(ctx, item.DocumentType, filepath.Base(item.FinalPath)); err != nil {
			m.logger.Warn("notify completion", logging.Error(err))
		}
		return
	}

	severity := resilience.Classify(result.Err)
	fields := []any{
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String(logging.FieldCorrelationID, result.CorrelationID),
		logging.String("severity", string(severity)),
		logging.Error(result.Err),
	}
	switch severity {
	case resilience.SeverityCritical:
		fields = append(fields, logging.Bool(logging.FieldAlert, true))
		m.logger.Error("item failed with environment trouble", fields...)
		if err := m.notifier.NotifyError(ctx, result.Err, base); err != nil {
			m.logger.Warn("notify error", logging.Error(err))
		}
	case resilience.SeverityFatal:
		fields = append(fields, logging.Bool(logging.FieldAlert, true))
		m.logger.Error("item failed with fatal condition", fields...)
		if err := m.notifier.NotifyError(ctx, result.Err, base); err != nil {
			m.logger.Warn("notify error", logging.Error(err))
		}
	default:
		m.logger.Error("item failed", fields...)
		if result.FailedStage == pipeline.StageClassify {
			if err := m.notifier.NotifyUnknownDocument(ctx, base); err != nil {
				m.logger.Warn("notify unknown document", logging.Error(err))
			}
		} else if err := m.notifier.NotifyError(ctx, result.Err, base); err != nil {
			m.logger.Warn("notify error", logging.Error(err))
		}
	}
}
