package testsupport

import (
	"path/filepath"
	"testing"

	"scanwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Directories are created eagerly so components can use them immediately.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WatchDir = filepath.Join(base, "inbox")
	cfg.Paths.OutputDir = filepath.Join(base, "filed")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.TempDir = filepath.Join(base, "tmp")
	cfg.Paths.SocketPath = filepath.Join(base, "scanwatch.sock")
	cfg.Classifier.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithPrefix overrides the watched filename prefix.
func WithPrefix(prefix string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Processing.FilePrefix = prefix
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WatchDir)
}
