// Package sweeper runs the scheduled cleanup of expired widget sessions.
// Conversations, messages and their versions are a permanent audit trail
// and are deliberately never swept.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"assistdb/pkg/logger"
	"assistdb/pkg/store"
)

// Start launches the sweep scheduler if enabled and returns a cancel func.
// An empty cron expression defaults to hourly.
func Start(ctx context.Context, enabled bool, cronExpr string) (context.CancelFunc, error) {
	if !enabled {
		logger.Info("sweeper_disabled")
		return func() {}, nil
	}
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweeper_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid sweeper cron expression: %s", cronExpr)
	}
	logger.Info("sweeper_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression and sleeps
// until then, which supports full cron syntax without minute polling.
func runScheduler(ctx context.Context, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweeper_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("sweeper_stopping")
			return
		}

		if err := RunOnce(); err != nil {
			logger.Error("sweeper_run_error", "error", err)
		}
	}
}

// RunOnce performs a single sweep pass. Exposed for admin triggers and
// tests.
func RunOnce() error {
	n, err := store.SweepWidgetSessions(time.Now())
	if err != nil {
		return fmt.Errorf("widget session sweep failed: %w", err)
	}
	logger.Info("sweeper_run_complete", "expired_sessions", n)
	return nil
}
