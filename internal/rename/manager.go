package rename

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"scanwatch/internal/fileutil"
	"scanwatch/internal/logging"
	"scanwatch/internal/resilience"
)

// Manager performs conflict-safe, atomic renames through its own resilient
// executor so transient sharing violations are retried independently of the
// classifier's breaker.
type Manager struct {
	exec   *resilience.Executor
	logger *slog.Logger
}

// NewManager constructs a Manager. exec must be dedicated to filesystem
// operations; sharing it with other call sites mixes breaker state.
func NewManager(exec *resilience.Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		exec:   exec,
		logger: logging.NewComponentLogger(logger, "rename"),
	}
}

// Move renames src into destDir under the requested stem, keeping src's
// extension. If the target name exists, integer suffixes _1, _2, ... are
// appended to the stem until a free name is found. The replace itself is
// atomic and retried on transient failure. Returns the final path.
func (m *Manager) Move(ctx context.Context, src, destDir, stem string) (string, error) {
	ext := filepath.Ext(src)

	var finalPath string
	err := m.exec.Execute(ctx, func(context.Context) error {
		target, err := resolveConflict(destDir, stem, ext)
		if err != nil {
			return err
		}
		if err := atomicRename(src, target); err != nil {
			return err
		}
		finalPath = target
		return nil
	})
	if err != nil {
		return "", err
	}

	m.logger.Info("file renamed",
		logging.String("source", src),
		logging.String("final_path", finalPath))
	return finalPath, nil
}

// MoveInPlace renames src within its own directory, used for quarantine tags.
func (m *Manager) MoveInPlace(ctx context.Context, src, stem string) (string, error) {
	return m.Move(ctx, src, filepath.Dir(src), stem)
}

// resolveConflict finds the first non-existing candidate path. The search is
// unbounded but terminates at the first free name.
func resolveConflict(destDir, stem, ext string) (string, error) {
	candidate := filepath.Join(destDir, stem+ext)
	for suffix := 1; ; suffix++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", stem, suffix, ext))
	}
}

// atomicRename renames src to dst, falling back to copy+remove when the
// destination is on a different filesystem.
func atomicRename(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if copyErr := fileutil.CopyFile(src, dst); copyErr != nil {
			return fmt.Errorf("cross-device copy %s: %w", dst, copyErr)
		}
		if rmErr := os.Remove(src); rmErr != nil {
			return fmt.Errorf("remove source after copy: %w", rmErr)
		}
		return nil
	}
	return fmt.Errorf("rename %s: %w", src, err)
}
