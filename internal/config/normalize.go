package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeClassifier()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	if c.Processing.FilePrefix == "" {
		c.Processing.FilePrefix = defaultFilePrefix
	}
	if c.Processing.PollIntervalMs <= 0 {
		c.Processing.PollIntervalMs = defaultPollIntervalMs
	}
	if c.Processing.StabilityWindowSeconds <= 0 {
		c.Processing.StabilityWindowSeconds = defaultStabilityWindow
	}
	if c.Processing.QueueCapacity <= 0 {
		c.Processing.QueueCapacity = defaultQueueCapacity
	}
	if c.Processing.MaxPages <= 0 {
		c.Processing.MaxPages = defaultMaxPages
	}
	if c.Processing.MaxImageDimension <= 0 {
		c.Processing.MaxImageDimension = defaultMaxImageDimension
	}
}

func (c *Config) normalizeClassifier() {
	if c.Classifier.APIKey == "" {
		if value, ok := os.LookupEnv("SCANWATCH_API_KEY"); ok {
			c.Classifier.APIKey = strings.TrimSpace(value)
		}
	}
	c.Classifier.BaseURL = strings.TrimSpace(c.Classifier.BaseURL)
	if c.Classifier.BaseURL == "" {
		c.Classifier.BaseURL = defaultClassifierBaseURL
	}
	c.Classifier.Model = strings.TrimSpace(c.Classifier.Model)
	if c.Classifier.Model == "" {
		c.Classifier.Model = defaultClassifierModel
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = defaultClassifierTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = defaultLogRetentionDays
	}
}
