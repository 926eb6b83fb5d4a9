package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// PresignUpload handles POST /constituents/upload
// Registers an upload and returns the url the file must be PUT to
func (h *UploadHandler) PresignUpload(c *gin.Context) {
	job, err := h.transfers.PresignUpload(ownerID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.OK(dto.PresignUploadResponse{
		UploadID: job.ID,
		URL:      h.serverURL + "/constituents/upload/" + job.ID,
		Method:   http.MethodPut,
	}))
}

// Upload handles PUT /constituents/upload/:upload_id
// The raw request body is the CSV file. Knowing the upload id is the credential.
func (h *UploadHandler) Upload(c *gin.Context) {
	uploadID := c.Param("upload_id")

	h.logger.Info("Upload received",
		slog.String("upload_id", uploadID),
		slog.Int64("content_length", c.Request.ContentLength),
	)

	// the body streams for as long as the file takes, so the server wide
	// read and write deadlines do not apply to this request
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetReadDeadline(time.Time{}); err != nil {
		h.logger.Warn("Failed to clear upload read deadline", slog.String("upload_id", uploadID), slog.Any("error", err))
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("Failed to clear upload write deadline", slog.String("upload_id", uploadID), slog.Any("error", err))
	}

	progress, err := h.transfers.RunUpload(c.Request.Context(), uploadID, c.Request.Body)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(progress))
}

// GetUpload handles GET /constituents/upload/:upload_id
func (h *UploadHandler) GetUpload(c *gin.Context) {
	job, err := h.transfers.GetUpload(ownerID(c), c.Param("upload_id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.NewUploadJobDTO(job)))
}

// Progress handles GET /constituents/upload/:upload_id/progress as an SSE stream
func (h *UploadHandler) Progress(c *gin.Context) {
	sub, initial, err := h.transfers.WatchUpload(ownerID(c), c.Param("upload_id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	streamSSE(c, sub, initial)
}
