package transfer

import (
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

// Job status constants
const (
	StatusPending    = "PENDING"
	StatusUploading  = "UPLOADING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// BatchSize is the number of records read or reconciled per batch
const BatchSize = 1000

// IsTerminal reports whether a job in this status will never change again
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// ExportProgress counts exported rows against the total fixed at creation
type ExportProgress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
}

// ExportJob is one export of an owner's constituents to a CSV artifact
type ExportJob struct {
	ID           string
	OwnerID      string
	CreatedAt    time.Time
	Status       string
	Pagination   domain.PaginationSpec
	Progress     ExportProgress
	ArtifactName string
	Error        string
}

// Snapshot returns the progress message for this job
func (j ExportJob) Snapshot() Snapshot {
	if j.Status == StatusFailed {
		return Snapshot{Status: j.Status, Error: j.Error}
	}
	return Snapshot{Status: j.Status, Progress: j.Progress}
}

// UploadProgress counts parsed rows. Total == Processed + Failed once complete.
type UploadProgress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// UploadJob is one CSV import into an owner's constituents
type UploadJob struct {
	ID            string
	OwnerID       string
	CreatedAt     time.Time
	Status        string
	BytesUploaded int64
	Progress      *UploadProgress
	ArtifactName  string
	Error         string
}

// Snapshot returns the progress message for this job
func (j UploadJob) Snapshot() Snapshot {
	switch {
	case j.Status == StatusFailed:
		return Snapshot{Status: j.Status, Error: j.Error}
	case j.Status == StatusUploading:
		return Snapshot{Status: j.Status, Progress: j.BytesUploaded}
	case j.Progress != nil:
		return Snapshot{Status: j.Status, Progress: *j.Progress}
	default:
		return Snapshot{Status: j.Status}
	}
}

func (j UploadJob) clone() UploadJob {
	if j.Progress != nil {
		p := *j.Progress
		j.Progress = &p
	}
	return j
}
