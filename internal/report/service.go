// Package report generates, formats and archives group reports. Scheduled
// jobs and chat commands share it.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/edgard/chatkeeper/internal/analytics"
	"github.com/edgard/chatkeeper/internal/database"
)

// Observer counts generated reports.
type Observer interface {
	ObserveReport(kind string, err error)
}

// Service produces report texts ready to send.
type Service struct {
	agg      *analytics.Aggregator
	archive  database.Store
	observer Observer
	logger   *slog.Logger
}

// NewService creates a Service. archive and observer may be nil.
func NewService(agg *analytics.Aggregator, archive database.Store, observer Observer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		agg:      agg,
		archive:  archive,
		observer: observer,
		logger:   logger.With("component", "report"),
	}
}

// Daily builds the daily report text for groupID and date.
func (s *Service) Daily(ctx context.Context, groupID, date string) (string, error) {
	summary, err := s.agg.DailySummary(ctx, groupID, date)
	s.observe(database.KindDaily, err)
	if err != nil {
		return "", fmt.Errorf("failed to build daily report for group %s: %w", groupID, err)
	}

	text := analytics.FormatDailyReport(summary)
	s.store(ctx, &database.Report{
		GroupID:       groupID,
		Kind:          database.KindDaily,
		PeriodStart:   date,
		TotalMessages: summary.TotalMessages,
		Body:          text,
	})
	return text, nil
}

// Weekly builds the weekly report text for the week starting at weekStart.
func (s *Service) Weekly(ctx context.Context, groupID, weekStart string) (string, error) {
	summary, err := s.agg.WeeklySummary(ctx, groupID, weekStart)
	s.observe(database.KindWeekly, err)
	if err != nil {
		return "", fmt.Errorf("failed to build weekly report for group %s: %w", groupID, err)
	}

	text := analytics.FormatWeeklyReport(summary)
	s.store(ctx, &database.Report{
		GroupID:       groupID,
		Kind:          database.KindWeekly,
		PeriodStart:   weekStart,
		TotalMessages: summary.TotalMessages,
		Body:          text,
	})
	return text, nil
}

// store archives r. Archive failures never fail the report.
func (s *Service) store(ctx context.Context, r *database.Report) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveReport(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "Failed to archive report", "group_id", r.GroupID, "kind", r.Kind, "error", err)
	}
}

func (s *Service) observe(kind string, err error) {
	if s.observer != nil {
		s.observer.ObserveReport(kind, err)
	}
}
