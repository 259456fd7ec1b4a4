package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/edgard/chatkeeper/internal/analytics"
	"github.com/edgard/chatkeeper/internal/conversation"
)

// newDailySummaryTask pushes today's report to every target group.
func newDailySummaryTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		date := conversation.DateOf(deps.now(), deps.Config.Reports.Location())
		return pushReports(ctx, deps, "daily_summary", date, deps.Reports.Daily)
	}
}

// newWeeklyStatsTask pushes last week's report to every target group.
func newWeeklyStatsTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		weekStart := analytics.PreviousWeekStart(deps.now(), deps.Config.Reports.Location())
		return pushReports(ctx, deps, "weekly_stats", weekStart, deps.Reports.Weekly)
	}
}

func pushReports(
	ctx context.Context,
	deps TaskDeps,
	task, date string,
	build func(ctx context.Context, groupID, date string) (string, error),
) error {
	log := deps.Logger.With("task", task)
	groups := Targets(ctx, deps)
	if len(groups) == 0 {
		log.InfoContext(ctx, "No groups to report on")
		return nil
	}

	var errs []error
	for _, groupID := range groups {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		chatID, err := strconv.ParseInt(groupID, 10, 64)
		if err != nil {
			log.WarnContext(ctx, "Skipping group with non-numeric id", "group_id", groupID)
			continue
		}

		text, err := build(ctx, groupID, date)
		if err != nil {
			log.ErrorContext(ctx, "Report generation failed", "group_id", groupID, "date", date, "error", err)
			errs = append(errs, err)
			text = deps.Config.Messages.ReportFailed
		}
		if err := deps.Sender.Send(ctx, chatID, text); err != nil {
			log.ErrorContext(ctx, "Failed to push report", "group_id", groupID, "error", err)
			errs = append(errs, fmt.Errorf("failed to push report to %s: %w", groupID, err))
			continue
		}
		log.InfoContext(ctx, "Report pushed", "group_id", groupID, "date", date)
	}
	return errors.Join(errs...)
}

// Targets returns the configured report groups or, when none are
// configured, every group with a message log.
func Targets(ctx context.Context, deps TaskDeps) []string {
	if deps.Groups != nil {
		if ids := deps.Groups.Groups(); len(ids) > 0 {
			return ids
		}
	}
	if deps.Active == nil {
		return nil
	}
	return deps.Active.GroupIDs(ctx)
}
