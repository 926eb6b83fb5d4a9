package dto

import (
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/transfer"
)

type ExportCreatedResponse struct {
	ExportID string `json:"export_id"`
}

type ExportJobDTO struct {
	ExportID     string                  `json:"export_id"`
	Status       string                  `json:"status"`
	Progress     transfer.ExportProgress `json:"progress"`
	ArtifactName string                  `json:"artifact_name,omitempty"`
	Error        string                  `json:"error,omitempty"`
	CreatedAt    string                  `json:"created_at"`
}

func NewExportJobDTO(job transfer.ExportJob) ExportJobDTO {
	return ExportJobDTO{
		ExportID:     job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		ArtifactName: job.ArtifactName,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type DownloadURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

type PresignUploadResponse struct {
	UploadID string `json:"upload_id"`
	URL      string `json:"url"`
	Method   string `json:"method"`
}

type UploadJobDTO struct {
	UploadID      string                   `json:"upload_id"`
	Status        string                   `json:"status"`
	BytesUploaded int64                    `json:"bytes_uploaded"`
	Progress      *transfer.UploadProgress `json:"progress,omitempty"`
	Error         string                   `json:"error,omitempty"`
	CreatedAt     string                   `json:"created_at"`
}

func NewUploadJobDTO(job transfer.UploadJob) UploadJobDTO {
	return UploadJobDTO{
		UploadID:      job.ID,
		Status:        job.Status,
		BytesUploaded: job.BytesUploaded,
		Progress:      job.Progress,
		Error:         job.Error,
		CreatedAt:     job.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Database string `json:"database"`
}
