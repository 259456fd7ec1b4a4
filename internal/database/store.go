package database

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the report archive operations.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveReport inserts report and fills in its ID and, when unset, CreatedAt.
	SaveReport(ctx context.Context, report *Report) error

	// ListReports returns up to limit reports for groupID, newest first.
	ListReports(ctx context.Context, groupID string, limit int) ([]Report, error)

	// PruneReports deletes reports created before cutoff.
	PruneReports(ctx context.Context, cutoff time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "archive"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) SaveReport(ctx context.Context, report *Report) error {
	if report == nil {
		return fmt.Errorf("cannot save nil report")
	}
	if report.GroupID == "" {
		return fmt.Errorf("report must have a group_id")
	}
	if report.Kind != KindDaily && report.Kind != KindWeekly {
		return fmt.Errorf("unknown report kind %q", report.Kind)
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reports (group_id, kind, period_start, total_messages, body, created_at)
		VALUES (:group_id, :kind, :period_start, :total_messages, :body, :created_at)`, report)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save report", "group_id", report.GroupID, "kind", report.Kind, "error", err)
		return fmt.Errorf("failed to insert report: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read report id: %w", err)
	}
	report.ID = id

	s.logger.DebugContext(ctx, "Report archived", "id", id, "group_id", report.GroupID, "kind", report.Kind)
	return nil
}

func (s *sqlxStore) ListReports(ctx context.Context, groupID string, limit int) ([]Report, error) {
	if limit <= 0 {
		limit = 20
	}
	reports := []Report{}
	err := s.db.SelectContext(ctx, &reports, `
		SELECT id, group_id, kind, period_start, total_messages, body, created_at
		FROM reports
		WHERE group_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports for group %s: %w", groupID, err)
	}
	return reports, nil
}

func (s *sqlxStore) PruneReports(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned reports: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Pruned archived reports", "removed", n, "cutoff", cutoff)
	}
	return n, nil
}

// RunSQLMaintenance executes VACUUM. It must run outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		s.logger.ErrorContext(ctx, "VACUUM failed", "error", err)
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance finished", "duration", time.Since(start))
	return nil
}
