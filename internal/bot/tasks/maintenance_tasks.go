package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// newRetentionCheckTask runs the retention sweep when the cleanup interval
// has elapsed since the last one.
func newRetentionCheckTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "retention_check")

	return func(ctx context.Context) error {
		ran, err := deps.Retention.CheckRetention(ctx)
		if err != nil {
			return fmt.Errorf("retention check failed: %w", err)
		}
		log.DebugContext(ctx, "Retention check finished", "swept", ran)
		return nil
	}
}

// newArchiveMaintenanceTask prunes archived reports older than the
// retention horizon and vacuums the archive.
func newArchiveMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "archive_maintenance")

	return func(ctx context.Context) error {
		start := time.Now()
		cutoff := deps.now().Add(-deps.Config.Storage.RetentionHorizon)

		removed, pruneErr := deps.Archive.PruneReports(ctx, cutoff)
		if pruneErr != nil {
			log.ErrorContext(ctx, "Pruning archived reports failed", "error", pruneErr)
		}
		vacuumErr := deps.Archive.RunSQLMaintenance(ctx)

		if err := errors.Join(pruneErr, vacuumErr); err != nil {
			return fmt.Errorf("archive maintenance failed: %w", err)
		}
		log.InfoContext(ctx, "Archive maintenance completed", "reports_removed", removed, "duration", time.Since(start))
		return nil
	}
}
