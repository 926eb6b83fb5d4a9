package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the api service when a job reaches a terminal state
const (
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
	EventUploadCompleted = "upload.completed"
	EventUploadFailed    = "upload.failed"
)

// Terminal job statuses carried by events
const (
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

var knownEventTypes = map[string]string{
	EventExportCompleted: JobStatusCompleted,
	EventExportFailed:    JobStatusFailed,
	EventUploadCompleted: JobStatusCompleted,
	EventUploadFailed:    JobStatusFailed,
}

// TransferEvent is one job event as delivered by RabbitMQ and stored in transfer_events
type TransferEvent struct {
	EventID    string    `json:"event_id" db:"event_id"`
	Type       string    `json:"type" db:"event_type"`
	JobID      string    `json:"job_id" db:"job_id"`
	OwnerID    string    `json:"owner_id" db:"user_id"`
	Status     string    `json:"status" db:"status"`
	Error      *string   `json:"error,omitempty" db:"error"`
	Total      int       `json:"total" db:"total"`
	Processed  int       `json:"processed" db:"processed"`
	Failed     int       `json:"failed" db:"failed"`
	Artifact   *string   `json:"artifact,omitempty" db:"artifact"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// Validate rejects events that could never be recorded
func (e *TransferEvent) Validate() error {
	for name, id := range map[string]string{"event_id": e.EventID, "job_id": e.JobID, "owner_id": e.OwnerID} {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: %s %q is not a uuid", ErrInvalidPayload, name, id)
		}
	}

	status, ok := knownEventTypes[e.Type]
	if !ok {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidPayload, e.Type)
	}
	if e.Status != status {
		return fmt.Errorf("%w: status %q does not match event type %q", ErrInvalidPayload, e.Status, e.Type)
	}

	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at is required", ErrInvalidPayload)
	}

	return nil
}
