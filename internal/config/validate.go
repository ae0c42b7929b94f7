package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateCircuitBreaker(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.WatchDir == c.Paths.OutputDir {
		return errors.New("paths.output_dir must differ from paths.watch_dir")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if strings.TrimSpace(c.Processing.FilePrefix) == "" {
		return errors.New("processing.file_prefix must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"processing.poll_interval_ms":    c.Processing.PollIntervalMs,
		"processing.queue_capacity":      c.Processing.QueueCapacity,
		"processing.max_pages":           c.Processing.MaxPages,
		"processing.max_image_dimension": c.Processing.MaxImageDimension,
	}); err != nil {
		return err
	}
	if c.Processing.StabilityWindowSeconds <= 0 {
		return errors.New("processing.stability_window_seconds must be positive")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if err := ensurePositiveMap(map[string]int{
		"retry.initial_delay_ms": c.Retry.InitialDelayMs,
		"retry.max_delay_ms":     c.Retry.MaxDelayMs,
	}); err != nil {
		return err
	}
	if c.Retry.ExponentialBase < 1 {
		return errors.New("retry.exponential_base must be >= 1")
	}
	if c.Retry.JitterBoundMs < 0 {
		return errors.New("retry.jitter_bound_ms must be >= 0")
	}
	if c.Retry.MaxDelayMs < c.Retry.InitialDelayMs {
		return errors.New("retry.max_delay_ms must be >= retry.initial_delay_ms")
	}
	return nil
}

func (c *Config) validateCircuitBreaker() error {
	return ensurePositiveMap(map[string]int{
		"circuit_breaker.failure_threshold":    c.CircuitBreaker.FailureThreshold,
		"circuit_breaker.window_seconds":       c.CircuitBreaker.WindowSeconds,
		"circuit_breaker.open_timeout_seconds": c.CircuitBreaker.OpenTimeoutSeconds,
	})
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":   c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":  c.Workflow.ErrorRetryInterval,
		"workflow.health_check_interval": c.Workflow.HealthCheckInterval,
		"workflow.health_alert_after":    c.Workflow.HealthAlertAfter,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
