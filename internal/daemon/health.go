package daemon

import (
	"context"
	"fmt"
	"os"
	"time"

	"scanwatch/internal/logging"
)

// healthLoop periodically verifies that the watch directory and queue store
// are usable. After a configured number of consecutive failures it raises a
// single operator alert; the daemon itself keeps running regardless, because
// a degraded environment can recover without a restart.
func (d *Daemon) healthLoop(ctx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Workflow.HealthCheckInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	consecutive := 0
	alerted := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := d.checkHealth(ctx)
		if err == nil {
			if consecutive > 0 {
				d.logger.Info("health restored",
					logging.Int("failed_checks", consecutive))
			}
			consecutive = 0
			alerted = false
			continue
		}

		consecutive++
		d.logger.Error("health check failed",
			logging.Int("consecutive", consecutive),
			logging.Error(err))

		if consecutive >= d.cfg.Workflow.HealthAlertAfter && !alerted {
			alerted = true
			d.logger.Error("health degraded beyond threshold",
				logging.Bool(logging.FieldAlert, true),
				logging.Int("consecutive", consecutive),
				logging.Error(err))
			msg := fmt.Sprintf("%d consecutive health check failures: %v", consecutive, err)
			if notifyErr := d.notifier.NotifyHealthAlert(ctx, msg); notifyErr != nil {
				d.logger.Warn("health alert notification failed", logging.Error(notifyErr))
			}
		}
	}
}

func (d *Daemon) checkHealth(ctx context.Context) error {
	info, err := os.Stat(d.cfg.Paths.WatchDir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch directory %q is not a directory", d.cfg.Paths.WatchDir)
	}
	if _, err := d.store.Health(ctx); err != nil {
		return fmt.Errorf("queue store: %w", err)
	}
	return nil
}
