package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchDir   string `toml:"watch_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	TempDir    string `toml:"temp_dir"`
	SocketPath string `toml:"socket_path"`
}

// Processing contains intake and stability detection settings.
type Processing struct {
	FilePrefix             string  `toml:"file_prefix"`
	PollIntervalMs         int     `toml:"poll_interval_ms"`
	StabilityWindowSeconds float64 `toml:"stability_window_seconds"`
	QueueCapacity          int     `toml:"queue_capacity"`
	MaxPages               int     `toml:"max_pages"`
	MaxImageDimension      int     `toml:"max_image_dimension"`
}

// Classifier contains configuration for the remote classification API.
type Classifier struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Retry contains retry and backoff settings for resilient execution.
type Retry struct {
	MaxAttempts     int     `toml:"max_attempts"`
	InitialDelayMs  int     `toml:"initial_delay_ms"`
	ExponentialBase float64 `toml:"exponential_base"`
	MaxDelayMs      int     `toml:"max_delay_ms"`
	JitterBoundMs   int     `toml:"jitter_bound_ms"`
}

// CircuitBreaker contains breaker thresholds and timing.
type CircuitBreaker struct {
	FailureThreshold   int `toml:"failure_threshold"`
	WindowSeconds      int `toml:"window_seconds"`
	OpenTimeoutSeconds int `toml:"open_timeout_seconds"`
}

// Workflow contains daemon timing and intervals.
type Workflow struct {
	QueuePollInterval   int `toml:"queue_poll_interval"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
	HealthCheckInterval int `toml:"health_check_interval"`
	HealthAlertAfter    int `toml:"health_alert_after"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Unknown        bool   `toml:"unknown"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for scanwatch.
//
// Configuration sections by subsystem:
//   - Paths: watched, output, log, and temp directories plus the IPC socket
//   - Processing: filename prefix filter, stability detection, page limits
//   - Classifier: remote classification API connection settings
//   - Retry: backoff parameters for resilient execution
//   - CircuitBreaker: failure threshold and cooldown for the classifier breaker
//   - Workflow: queue polling and health check intervals
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths          Paths          `toml:"paths"`
	Processing     Processing     `toml:"processing"`
	Classifier     Classifier     `toml:"classifier"`
	Retry          Retry          `toml:"retry"`
	CircuitBreaker CircuitBreaker `toml:"circuit_breaker"`
	Workflow       Workflow       `toml:"workflow"`
	Notifications  Notifications  `toml:"notifications"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scanwatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/scanwatch/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scanwatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// OutputDir is created on a best-effort basis so the daemon can run when
// the destination share is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WatchDir, c.Paths.LogDir, c.Paths.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// PdftoppmBinary returns the executable used for page extraction.
func (c *Config) PdftoppmBinary() string {
	return "pdftoppm"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
