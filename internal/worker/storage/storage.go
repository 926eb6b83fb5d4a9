package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/constituent-transfer/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// RecordEvent appends event to the audit table. Redelivered events are
// ignored by event_id; the bool reports whether a row was written.
func (s *Storage) RecordEvent(ctx context.Context, event *domain.TransferEvent) (bool, error) {
	query := `
		INSERT INTO transfer_events (
			event_id, event_type, job_id, user_id, status, error,
			total, processed, failed, artifact, occurred_at
		) VALUES (
			:event_id, :event_type, :job_id, :user_id, :status, :error,
			:total, :processed, :failed, :artifact, :occurred_at
		)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := s.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return false, domain.NewRetryableError(fmt.Errorf("failed to record event: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, domain.NewRetryableError(fmt.Errorf("failed to get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		s.logger.Info("Event already recorded",
			slog.String("event_id", event.EventID),
			slog.String("job_id", event.JobID),
		)
		return false, nil
	}

	s.logger.Info("Event recorded",
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.Type),
		slog.String("job_id", event.JobID),
	)

	return true, nil
}

// EventsForJob returns a job's recorded events, oldest first
func (s *Storage) EventsForJob(ctx context.Context, jobID string) ([]domain.TransferEvent, error) {
	query := `
		SELECT event_id, event_type, job_id, user_id, status, error,
			total, processed, failed, artifact, occurred_at
		FROM transfer_events
		WHERE job_id = $1
		ORDER BY occurred_at, recorded_at
	`

	var events []domain.TransferEvent
	if err := s.db.SelectContext(ctx, &events, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return events, nil
}
