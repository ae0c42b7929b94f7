package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scanwatch/internal/config"
	"scanwatch/internal/fileutil"
	"scanwatch/internal/logging"
	"scanwatch/internal/rename"
	"scanwatch/internal/resilience"
	"scanwatch/internal/services"
	"scanwatch/internal/services/classifier"
)

// Pipeline stage names, used in logs and error wrapping.
const (
	StageValidate = "validate"
	StageExtract  = "extract"
	StageOptimize = "optimize"
	StageClassify = "classify"
	StageRename   = "rename"
	StageVerify   = "verify"
	StageCleanup  = "cleanup"
)

// PageExtractor renders document pages into classifier-ready images.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path, workDir string, maxPages int) ([][]byte, error)
}

// ImageOptimizer normalizes one page image.
type ImageOptimizer interface {
	Optimize(data []byte) ([]byte, error)
}

// DocumentClassifier assigns a document type and identifiers to page images.
type DocumentClassifier interface {
	Classify(ctx context.Context, pages [][]byte) (classifier.Classification, error)
}

// Result records the outcome of one pipeline run. Immutable once returned.
// FailedStage names the stage a failed run stopped at; empty on success.
type Result struct {
	Success       bool
	OriginalPath  string
	DocumentType  string
	FinalPath     string
	FailedStage   string
	ElapsedMs     int64
	CorrelationID string
	Err           error
}

// Orchestrator drives one file through validate, extract, optimize,
// classify, rename, verify, and cleanup. Runs are strictly serialized: a
// mutex guarantees at most one file is inside the pipeline system-wide,
// which keeps concurrent calls away from the rate-limited classifier.
type Orchestrator struct {
	cfg        *config.Config
	extractor  PageExtractor
	optimizer  ImageOptimizer
	classifier DocumentClassifier
	renamer    *rename.Manager

	classifyExec *resilience.Executor
	extractExec  *resilience.Executor

	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Deps carries the orchestrator's collaborators. The two executors must be
// distinct instances so classifier failures never trip the breaker used for
// local tooling, and vice versa.
type Deps struct {
	Extractor    PageExtractor
	Optimizer    ImageOptimizer
	Classifier   DocumentClassifier
	Renamer      *rename.Manager
	ClassifyExec *resilience.Executor
	ExtractExec  *resilience.Executor
	Logger       *slog.Logger
	Now          func() time.Time
}

// New constructs an Orchestrator.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Extractor == nil:
		return nil, fmt.Errorf("pipeline: extractor is required")
	case deps.Optimizer == nil:
		return nil, fmt.Errorf("pipeline: optimizer is required")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("pipeline: classifier is required")
	case deps.Renamer == nil:
		return nil, fmt.Errorf("pipeline: renamer is required")
	case deps.ClassifyExec == nil || deps.ExtractExec == nil:
		return nil, fmt.Errorf("pipeline: executors are required")
	case deps.ClassifyExec == deps.ExtractExec:
		return nil, fmt.Errorf("pipeline: classify and extract executors must be distinct instances")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:          cfg,
		extractor:    deps.Extractor,
		optimizer:    deps.Optimizer,
		classifier:   deps.Classifier,
		renamer:      deps.Renamer,
		classifyExec: deps.ClassifyExec,
		extractExec:  deps.ExtractExec,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		now:          now,
	}, nil
}

// Process runs one file through the pipeline and always returns a Result,
// converting panics into failed results so the consumer loop keeps running.
func (o *Orchestrator) Process(ctx context.Context, path string) (result Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	correlationID := uuid.NewString()
	ctx = services.WithRequestID(ctx, correlationID)
	start := o.now()

	result = Result{
		OriginalPath:  path,
		CorrelationID: correlationID,
	}
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Err = fmt.Errorf("pipeline panic: %v", r)
			o.logger.Error("pipeline run panicked",
				logging.String(logging.FieldCorrelationID, correlationID),
				logging.String("path", path),
				logging.Any("panic", r))
		}
		result.ElapsedMs = o.now().Sub(start).Milliseconds()
		o.logRunDone(result)
	}()

	o.run(ctx, path, &result)
	return result
}

func (o *Orchestrator) run(ctx context.Context, path string, result *Result) {
	log := logging.WithContext(ctx, o.logger)

	// VALIDATE: a file that fails here is not touched at all.
	o.stageStart(ctx, StageValidate, path, result)
	if err := o.validate(path); err != nil {
		result.Err = err
		return
	}

	workDir, err := fileutil.TempDir(o.cfg.Paths.TempDir, "run-")
	if err != nil {
		result.FailedStage = StageExtract
		result.Err = services.Wrap(services.ErrExternalTool, StageExtract, "tempdir", "create working directory", err)
		o.quarantine(ctx, path, rename.TagError, result)
		return
	}
	// CLEANUP: always runs once the work dir exists; never affects outcome.
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("cleanup failed",
				logging.String(logging.FieldStage, StageCleanup),
				logging.Error(err))
		}
	}()

	// EXTRACT
	o.stageStart(ctx, StageExtract, path, result)
	var pages [][]byte
	err = o.extractExec.Execute(ctx, func(ctx context.Context) error {
		var extractErr error
		pages, extractErr = o.extractor.ExtractPages(ctx, path, workDir, o.cfg.Processing.MaxPages)
		return extractErr
	})
	if err != nil {
		result.Err = err
		o.quarantine(ctx, path, rename.TagError, result)
		return
	}

	// OPTIMIZE
	o.stageStart(ctx, StageOptimize, path, result)
	for i, page := range pages {
		optimized, optErr := o.optimizer.Optimize(page)
		if optErr != nil {
			result.Err = fmt.Errorf("optimize page %d: %w", i+1, optErr)
			o.quarantine(ctx, path, rename.TagError, result)
			return
		}
		pages[i] = optimized
	}

	// CLASSIFY
	o.stageStart(ctx, StageClassify, path, result)
	var classification classifier.Classification
	err = o.classifyExec.Execute(ctx, func(ctx context.Context) error {
		var classifyErr error
		classification, classifyErr = o.classifier.Classify(ctx, pages)
		return classifyErr
	})
	if err != nil {
		result.Err = err
		o.quarantine(ctx, path, rename.TagUnknown, result)
		return
	}
	result.DocumentType = classification.DocumentType

	// RENAME
	o.stageStart(ctx, StageRename, path, result)
	stem := rename.BuildStem(o.now(), classification.DocumentType, classification.Identifiers)
	finalPath, err := o.renamer.Move(ctx, path, o.cfg.Paths.OutputDir, stem)
	if err != nil {
		// The file keeps its pre-rename path; no quarantine on top of a
		// failed rename.
		result.Err = err
		return
	}
	result.FinalPath = finalPath

	// VERIFY: a rename that leaves the file unreadable is still a failure.
	o.stageStart(ctx, StageVerify, finalPath, result)
	if err := fileutil.VerifyReadable(finalPath); err != nil {
		result.Err = services.Wrap(services.ErrUnreadable, StageVerify, "readback", "renamed file is not accessible", err)
		return
	}

	result.Success = true
	result.FailedStage = ""
}

func (o *Orchestrator) validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, StageValidate, "stat", "file is missing or inaccessible", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, StageValidate, "stat", "path is a directory", nil)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return services.Wrap(services.ErrValidation, StageValidate, "type", fmt.Sprintf("unsupported file type %q", filepath.Ext(path)), nil)
	}
	if err := fileutil.VerifyReadable(path); err != nil {
		return services.Wrap(services.ErrValidation, StageValidate, "read", "file is not readable", err)
	}
	return nil
}

// quarantine renames a failed file in place with a visible tag so it is
// never silently dropped. Best effort: a quarantine failure is logged and
// the original path stands.
func (o *Orchestrator) quarantine(ctx context.Context, path, tag string, result *Result) {
	stem := rename.QuarantineStem(o.now(), tag, fileutil.Stem(path))
	tagged, err := o.renamer.MoveInPlace(ctx, path, stem)
	if err != nil {
		o.logger.Error("quarantine rename failed",
			logging.String(logging.FieldCorrelationID, result.CorrelationID),
			logging.String("path", path),
			logging.String("tag", tag),
			logging.Error(err))
		return
	}
	result.FinalPath = tagged
}

// stageStart marks the stage the run is entering. The mark stays in the
// result when the run fails and is cleared on success.
func (o *Orchestrator) stageStart(ctx context.Context, stage, path string, result *Result) {
	result.FailedStage = stage
	logging.WithContext(ctx, o.logger).Info("stage started",
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldEventType, "stage_started"),
		logging.String("path", path))
}

func (o *Orchestrator) logRunDone(result Result) {
	fields := []logging.Attr{
		logging.String(logging.FieldCorrelationID, result.CorrelationID),
		logging.String("path", result.OriginalPath),
		logging.Int64("elapsed_ms", result.ElapsedMs),
		logging.String(logging.FieldEventType, "run_completed"),
	}
	if result.Success {
		fields = append(fields,
			logging.String("document_type", result.DocumentType),
			logging.String("final_path", result.FinalPath))
		o.logger.LogAttrs(context.Background(), slog.LevelInfo, "file processed", fields...)
		return
	}
	fields = append(fields, logging.Error(result.Err))
	if result.FinalPath != "" {
		fields = append(fields, logging.String("quarantine_path", result.FinalPath))
	}
	o.logger.LogAttrs(context.Background(), slog.LevelError, "file processing failed", fields...)
}
