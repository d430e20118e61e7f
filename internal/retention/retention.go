// Package retention purges closed threads past the configured age on a
// cron schedule. Open threads are never touched.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/rNintendoSwitch/Parakarry/pkg/config"
	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
	"github.com/rNintendoSwitch/Parakarry/pkg/timeutil"
)

const defaultMinPeriod = 7 * 24 * time.Hour

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config) (context.CancelFunc, error) {
	ret := cfg.Retention
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	period, err := timeutil.ParseDuration(ret.Period)
	if err != nil {
		return nil, fmt.Errorf("invalid retention period %q: %w", ret.Period, err)
	}
	minPeriod := defaultMinPeriod
	if ret.MinPeriod != "" {
		if mp, err := timeutil.ParseDuration(ret.MinPeriod); err == nil {
			minPeriod = mp
		}
	}
	if period < minPeriod {
		// guard against an accidental mass purge from a typo'd period
		return nil, fmt.Errorf("retention period %s below minimum %s", period, minPeriod)
	}

	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", ret.Period, "dry_run", ret.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr, period)
	return cancel, nil
}

func runScheduler(ctx context.Context, cfg *config.Config, cronExpr string, period time.Duration) {
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
			if err := RunOnce(ctx, cfg, period); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single purge pass: closed threads whose close time is
// older than period are deleted with their transcripts, in batches.
func RunOnce(ctx context.Context, cfg *config.Config, period time.Duration) error {
	cutoff := time.Now().UTC().Add(-period).UnixNano()
	threads, err := store.ListThreads()
	if err != nil {
		return err
	}

	batchSize := cfg.Retention.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	sleep := cfg.Retention.BatchSleep.Duration()

	purged := 0
	inBatch := 0
	for _, th := range threads {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if th.Open || th.ClosedTS == 0 || th.ClosedTS >= cutoff {
			continue
		}
		if cfg.Retention.DryRun {
			logger.Info("retention_would_purge", "thread", th.ID, "closed_ts", th.ClosedTS)
			purged++
			continue
		}
		if err := store.DeleteThread(th.ID); err != nil {
			logger.Error("retention_purge_failed", "thread", th.ID, "error", err)
			continue
		}
		purged++
		inBatch++
		if inBatch >= batchSize {
			inBatch = 0
			if sleep > 0 {
				select {
				case <-time.After(sleep):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	logger.Info("retention_run_complete", "purged", purged, "dry_run", cfg.Retention.DryRun)
	return nil
}
