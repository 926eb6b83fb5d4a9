package transfer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

// ExportHeader is the fixed column order of export artifacts
var ExportHeader = []string{
	"id", "email", "first_name", "last_name", "address", "address_2",
	"city", "state", "zip", "country", "created_at",
}

const exportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var errExportCanceled = errors.New("export canceled")

func artifactName(id string, at time.Time) string {
	return fmt.Sprintf("constituents-%s-%d.csv", id, at.UnixMilli())
}

func exportRow(c domain.Constituent) []string {
	return []string{
		c.ID,
		c.Email,
		c.FirstName,
		c.LastName,
		c.Address,
		c.Address2,
		c.City,
		c.State,
		c.Zip,
		c.Country,
		c.CreatedAt.UTC().Format(exportTimeLayout),
	}
}

func batchCount(total int) int {
	return (total + BatchSize - 1) / BatchSize
}

func (m *Manager) runExport(ctx context.Context, id string) {
	job, ok := m.registry.UpdateExport(id, func(j *ExportJob) {
		j.Status = StatusProcessing
	})
	if !ok {
		return
	}
	m.broker.Publish(job.OwnerID, id, job.Snapshot())

	logger := m.logger.With(slog.String("export_id", id), slog.String("owner_id", job.OwnerID))
	logger.Info("Export started", slog.Int("total", job.Progress.Total))

	name := artifactName(id, m.now())
	path := filepath.Join(m.exportDir, name)

	err := m.writeExport(ctx, job, path)
	switch {
	case errors.Is(err, errExportCanceled):
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("Failed to remove partial export", slog.Any("error", rmErr))
		}
		m.registry.RemoveExport(id)
		m.broker.Drop(job.OwnerID, id)
		logger.Info("Export aborted")
		return
	case err != nil:
		m.failExport(logger, job, err)
		return
	}

	ownerID := job.OwnerID
	job, ok = m.registry.UpdateExport(id, func(j *ExportJob) {
		j.Status = StatusCompleted
		j.ArtifactName = name
	})
	if !ok {
		// canceled between the last batch and completion
		_ = os.Remove(path)
		m.broker.Drop(ownerID, id)
		return
	}

	m.broker.Publish(job.OwnerID, id, job.Snapshot())
	m.broker.Drop(job.OwnerID, id)

	logger.Info("Export completed",
		slog.String("artifact", name),
		slog.Int("processed", job.Progress.Processed),
	)

	m.publishEvent(Event{
		Type:      EventExportCompleted,
		JobID:     id,
		OwnerID:   job.OwnerID,
		Status:    job.Status,
		Total:     job.Progress.Total,
		Processed: job.Progress.Processed,
		Artifact:  name,
	})
}

// writeExport streams every batch into path. It returns errExportCanceled when
// the job token fires or the record disappears between batches.
func (m *Manager) writeExport(ctx context.Context, job ExportJob, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to create export artifact: %w", err))
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(ExportHeader); err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to write export header: %w", err))
	}

	// a batch that has started runs to completion even if the job is canceled
	queryCtx := context.WithoutCancel(ctx)

	for batch := 0; batch < batchCount(job.Progress.Total); batch++ {
		if m.exportCanceled(ctx, job.ID) {
			return errExportCanceled
		}

		rows, err := m.store.List(queryCtx, job.OwnerID, job.Pagination.WithPage(BatchSize, batch))
		if err != nil {
			return fmt.Errorf("failed to read batch %d: %w", batch, err)
		}

		for _, c := range rows {
			if err := w.Write(exportRow(c)); err != nil {
				return domain.NewTransientError(fmt.Errorf("failed to write export row: %w", err))
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return domain.NewTransientError(fmt.Errorf("failed to flush export batch: %w", err))
		}

		updated, ok := m.registry.UpdateExport(job.ID, func(j *ExportJob) {
			j.Progress.Processed += len(rows)
		})
		if !ok {
			return errExportCanceled
		}
		m.broker.Publish(updated.OwnerID, updated.ID, updated.Snapshot())

		if len(rows) < BatchSize {
			break
		}
	}

	if err := file.Close(); err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to close export artifact: %w", err))
	}

	return nil
}

func (m *Manager) exportCanceled(ctx context.Context, id string) bool {
	if ctx.Err() != nil {
		return true
	}
	_, ok := m.registry.GetExport(id)
	return !ok
}

func (m *Manager) failExport(logger *slog.Logger, job ExportJob, cause error) {
	logger.Error("Export failed", slog.Any("error", cause))

	failed, ok := m.registry.UpdateExport(job.ID, func(j *ExportJob) {
		j.Status = StatusFailed
		j.Error = failureMessage(cause)
	})
	if !ok {
		m.broker.Drop(job.OwnerID, job.ID)
		return
	}

	m.broker.Publish(failed.OwnerID, failed.ID, failed.Snapshot())
	m.broker.Drop(failed.OwnerID, failed.ID)

	m.publishEvent(Event{
		Type:      EventExportFailed,
		JobID:     failed.ID,
		OwnerID:   failed.OwnerID,
		Status:    failed.Status,
		Error:     failed.Error,
		Total:     failed.Progress.Total,
		Processed: failed.Progress.Processed,
	})
}

// failureMessage is what a job exposes to its owner. Storage and file causes
// stay in the logs.
func failureMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	return "processing failed, please try again later"
}
