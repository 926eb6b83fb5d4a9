package transfer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

const uploadChunkSize = 32 * 1024

// PresignUpload registers a pending upload for the owner. The caller sends the
// file to the returned job's upload url.
func (m *Manager) PresignUpload(ownerID string) (UploadJob, error) {
	now := m.now()
	job := UploadJob{
		ID:        m.newID(),
		OwnerID:   ownerID,
		CreatedAt: now,
		Status:    StatusPending,
	}
	job.ArtifactName = artifactName(job.ID, now)

	if err := m.registry.CreateUpload(job); err != nil {
		return UploadJob{}, err
	}

	m.logger.Info("Upload job created",
		slog.String("upload_id", job.ID),
		slog.String("owner_id", ownerID),
	)

	return job, nil
}

// GetUpload returns the owner's upload job
func (m *Manager) GetUpload(ownerID, id string) (UploadJob, error) {
	job, ok := m.registry.GetUpload(id)
	if !ok || job.OwnerID != ownerID {
		return UploadJob{}, fmt.Errorf("%w: upload %s", domain.ErrNotFound, id)
	}
	return job, nil
}

// WatchUpload subscribes to the upload's progress
func (m *Manager) WatchUpload(ownerID, id string) (*Subscription, Snapshot, error) {
	if _, err := m.GetUpload(ownerID, id); err != nil {
		return nil, Snapshot{}, err
	}

	sub := m.broker.Subscribe(ownerID, id)
	job, ok := m.registry.GetUpload(id)
	if !ok {
		sub.Close()
		return nil, Snapshot{}, fmt.Errorf("%w: upload %s", domain.ErrNotFound, id)
	}

	return sub, job.Snapshot(), nil
}

// RunUpload stores body as the upload's file, then parses and reconciles it
// in batches. It runs on the caller's goroutine and returns the final counts.
func (m *Manager) RunUpload(ctx context.Context, id string, body io.Reader) (UploadProgress, error) {
	done, err := m.supervisor.Track()
	if err != nil {
		return UploadProgress{}, err
	}
	defer done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.baseCtx, cancel)
	defer stop()

	job, err := m.registry.UpdateUpload(id, func(j *UploadJob) error {
		if j.Status != StatusPending {
			return fmt.Errorf("%w: upload %s is %s", domain.ErrConflict, id, j.Status)
		}
		j.Status = StatusUploading
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UploadProgress{}, fmt.Errorf("%w: upload %s", domain.ErrNotFound, id)
		}
		return UploadProgress{}, err
	}
	m.broker.Publish(job.OwnerID, id, job.Snapshot())

	logger := m.logger.With(slog.String("upload_id", id), slog.String("owner_id", job.OwnerID))
	logger.Info("Upload started")

	path := filepath.Join(m.uploadDir, job.ArtifactName)
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove upload file", slog.Any("error", err))
		}
	}()

	progress, err := m.processUpload(ctx, job, path, body)
	if err != nil {
		m.failUpload(logger, job, progress, err)
		return progress, err
	}

	completed, err := m.registry.UpdateUpload(id, func(j *UploadJob) error {
		j.Status = StatusCompleted
		j.Progress = &progress
		return nil
	})
	if err != nil {
		return progress, err
	}

	m.broker.Publish(completed.OwnerID, id, completed.Snapshot())
	m.broker.Drop(completed.OwnerID, id)

	logger.Info("Upload completed",
		slog.Int("total", progress.Total),
		slog.Int("processed", progress.Processed),
		slog.Int("failed", progress.Failed),
	)

	m.publishEvent(Event{
		Type:      EventUploadCompleted,
		JobID:     id,
		OwnerID:   completed.OwnerID,
		Status:    completed.Status,
		Total:     progress.Total,
		Processed: progress.Processed,
		Failed:    progress.Failed,
	})

	return progress, nil
}

func (m *Manager) processUpload(ctx context.Context, job UploadJob, path string, body io.Reader) (UploadProgress, error) {
	if err := m.ingest(ctx, job, path, body); err != nil {
		return UploadProgress{}, err
	}

	processing, err := m.registry.UpdateUpload(job.ID, func(j *UploadJob) error {
		j.Status = StatusProcessing
		j.Progress = &UploadProgress{}
		return nil
	})
	if err != nil {
		return UploadProgress{}, err
	}
	m.broker.Publish(processing.OwnerID, job.ID, processing.Snapshot())

	return m.parseUpload(ctx, job, path)
}

// ingest copies body to path chunk by chunk, publishing the byte count as it goes
func (m *Manager) ingest(ctx context.Context, job UploadJob, path string, body io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to create upload file: %w", err))
	}
	defer file.Close()

	buf := make([]byte, uploadChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload interrupted: %w", err)
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return domain.NewTransientError(fmt.Errorf("failed to write upload chunk: %w", err))
			}

			updated, err := m.registry.UpdateUpload(job.ID, func(j *UploadJob) error {
				j.BytesUploaded += int64(n)
				return nil
			})
			if err != nil {
				return err
			}
			m.broker.Publish(updated.OwnerID, job.ID, updated.Snapshot())
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read upload body: %w", readErr)
		}
	}

	if err := file.Close(); err != nil {
		return domain.NewTransientError(fmt.Errorf("failed to close upload file: %w", err))
	}

	return nil
}

// parseUpload reads the stored file and reconciles valid rows every BatchSize rows
func (m *Manager) parseUpload(ctx context.Context, job UploadJob, path string) (UploadProgress, error) {
	var progress UploadProgress

	file, err := os.Open(path)
	if err != nil {
		return progress, domain.NewTransientError(fmt.Errorf("failed to open upload file: %w", err))
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return progress, nil
	}
	if err != nil {
		return progress, fmt.Errorf("%w: unreadable header row: %v", domain.ErrValidation, err)
	}

	columns := headerIndex(header)
	if _, ok := columns["email"]; !ok {
		return progress, fmt.Errorf("%w: header row has no email column", domain.ErrValidation)
	}

	// store writes outlive a canceled request so a batch is never half applied
	writeCtx := context.WithoutCancel(ctx)
	batch := make([]domain.ConstituentInput, 0, BatchSize)
	rowsInBatch := 0

	flush := func() error {
		if rowsInBatch == 0 {
			return nil
		}
		if len(batch) > 0 {
			if err := m.reconcile(writeCtx, job.OwnerID, batch); err != nil {
				return err
			}
		}
		progress.Processed += len(batch)

		updated, err := m.registry.UpdateUpload(job.ID, func(j *UploadJob) error {
			p := progress
			j.Progress = &p
			return nil
		})
		if err != nil {
			return err
		}
		m.broker.Publish(updated.OwnerID, job.ID, updated.Snapshot())

		batch = batch[:0]
		rowsInBatch = 0
		return nil
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var parseErr *csv.ParseError
		switch {
		case errors.As(err, &parseErr):
			progress.Total++
			progress.Failed++
			rowsInBatch++
		case err != nil:
			return progress, domain.NewTransientError(fmt.Errorf("failed to read upload row: %w", err))
		default:
			progress.Total++
			rowsInBatch++
			row, rowErr := rowInput(job.OwnerID, columns, record)
			if rowErr != nil {
				progress.Failed++
			} else {
				batch = append(batch, row)
			}
		}

		if rowsInBatch >= BatchSize {
			if err := ctx.Err(); err != nil {
				return progress, fmt.Errorf("upload interrupted: %w", err)
			}
			if err := flush(); err != nil {
				return progress, err
			}
		}
	}

	if err := flush(); err != nil {
		return progress, err
	}

	return progress, nil
}

func headerIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	return columns
}

// rowInput maps one record onto the input schema. The id column is ignored and
// the owner always comes from the job.
func rowInput(ownerID string, columns map[string]int, record []string) (domain.ConstituentInput, error) {
	get := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	in := domain.ConstituentInput{
		OwnerID:   ownerID,
		Email:     strings.ToLower(get("email")),
		FirstName: get("first_name"),
		LastName:  get("last_name"),
		Address:   get("address"),
		Address2:  get("address_2"),
		City:      get("city"),
		State:     get("state"),
		Zip:       get("zip"),
		Country:   get("country"),
	}

	if raw := get("created_at"); raw != "" {
		createdAt, err := domain.ParseCreatedAt(raw)
		if err != nil {
			return domain.ConstituentInput{}, err
		}
		in.CreatedAt = &createdAt
	}

	if err := in.Validate(); err != nil {
		return domain.ConstituentInput{}, err
	}

	return in, nil
}

func (m *Manager) failUpload(logger *slog.Logger, job UploadJob, progress UploadProgress, cause error) {
	logger.Error("Upload failed", slog.Any("error", cause))

	failed, err := m.registry.UpdateUpload(job.ID, func(j *UploadJob) error {
		j.Status = StatusFailed
		j.Error = failureMessage(cause)
		return nil
	})
	if err != nil {
		m.broker.Drop(job.OwnerID, job.ID)
		return
	}

	m.broker.Publish(failed.OwnerID, job.ID, failed.Snapshot())
	m.broker.Drop(failed.OwnerID, job.ID)

	m.publishEvent(Event{
		Type:      EventUploadFailed,
		JobID:     job.ID,
		OwnerID:   failed.OwnerID,
		Status:    failed.Status,
		Error:     failed.Error,
		Total:     progress.Total,
		Processed: progress.Processed,
		Failed:    progress.Failed,
	})
}
