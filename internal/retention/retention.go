package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"echoclub/pkg/config"
	"echoclub/pkg/logger"
	"echoclub/pkg/store"
)

// Defaults mirror the hosted cleanup job this replaces: an hourly sweep
// removing messages older than 24 hours.
const (
	defaultCron   = "0 * * * *"
	defaultPeriod = 24 * time.Hour
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	period := defaultPeriod
	if cfg.Period != "" {
		p, err := time.ParseDuration(cfg.Period)
		if err != nil {
			return nil, fmt.Errorf("invalid retention period %q: %w", cfg.Period, err)
		}
		period = p
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", period.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(period); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce deletes every message whose timestamp is older than the retention
// window. Deletes go through the normal store path, so live subscribers
// reconcile the disappearance exactly like a user-initiated clear.
func RunOnce(period time.Duration) error {
	cutoff := time.Now().UTC().Add(-period).UnixNano()
	msgs, err := store.ListMessages()
	if err != nil {
		return fmt.Errorf("retention read: %w", err)
	}
	deleted := 0
	for _, m := range msgs {
		if m.TS > cutoff {
			// Messages are ordered by timestamp; everything after the
			// cutoff is newer.
			break
		}
		if err := store.DeleteMessage(m.ID); err != nil {
			logger.Error("retention_delete_failed", "id", m.ID, "error", err)
			continue
		}
		deleted++
	}
	logger.Info("retention_run_complete", "deleted", deleted, "scanned", len(msgs))
	return nil
}
