package main

import (
	"log/slog"

	"scanwatch/internal/config"
	"scanwatch/internal/daemon"
	"scanwatch/internal/notifications"
	"scanwatch/internal/pipeline"
	"scanwatch/internal/queue"
	"scanwatch/internal/rename"
	"scanwatch/internal/resilience"
	"scanwatch/internal/services/classifier"
	"scanwatch/internal/services/render"
	"scanwatch/internal/watcher"
	"scanwatch/internal/workflow"
)

// buildDaemon assembles the full processing graph. Each external dependency
// gets its own executor so one failing service never trips another's breaker.
func buildDaemon(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	policy := resilience.PolicyFromConfig(cfg.Retry)
	breaker := resilience.BreakerFromConfig(cfg.CircuitBreaker)

	classifyExec := resilience.New("classify", policy, breaker, logger)
	extractExec := resilience.New("extract", policy, breaker, logger)
	renameExec := resilience.New("rename", policy, resilience.BreakerSettings{}, logger)

	orch, err := pipeline.New(cfg, pipeline.Deps{
		Extractor:    render.NewExtractor(cfg.PdftoppmBinary()),
		Optimizer:    render.NewOptimizer(cfg.Processing.MaxImageDimension),
		Classifier:   classifier.NewClient(cfg.Classifier),
		Renamer:      rename.NewManager(renameExec, logger),
		ClassifyExec: classifyExec,
		ExtractExec:  extractExec,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	notifier := notifications.NewService(cfg)
	wf := workflow.NewManager(cfg, store, orch, notifier, logger)
	w, err := watcher.New(cfg, wf.Enqueue, logger)
	if err != nil {
		return nil, err
	}

	return daemon.New(cfg, store, w, wf, notifier, logger)
}
