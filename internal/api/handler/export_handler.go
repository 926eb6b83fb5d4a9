package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/api/dto"
	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/gin-gonic/gin"
)

// CreateExport handles POST /constituents/export
// Starts an export of the caller's constituents matching the query, or
// returns the export already running for them
func (h *ExportHandler) CreateExport(c *gin.Context) {
	spec, err := ParsePaginationSpec(c)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	id, err := h.transfers.CreateExport(c.Request.Context(), ownerID(c), spec)
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.OK(dto.ExportCreatedResponse{ExportID: id}))
}

// ActiveExport handles GET /constituents/export/active
func (h *ExportHandler) ActiveExport(c *gin.Context) {
	id, err := h.transfers.ActiveExport(ownerID(c))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.ExportCreatedResponse{ExportID: id}))
}

// GetExport handles GET /constituents/export/:export_id
func (h *ExportHandler) GetExport(c *gin.Context) {
	job, err := h.transfers.GetExport(ownerID(c), c.Param("export_id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.NewExportJobDTO(job)))
}

// CancelExport handles DELETE /constituents/export/:export_id
func (h *ExportHandler) CancelExport(c *gin.Context) {
	if err := h.transfers.CancelExport(ownerID(c), c.Param("export_id")); err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Progress handles GET /constituents/export/:export_id/progress as an SSE stream
func (h *ExportHandler) Progress(c *gin.Context) {
	sub, initial, err := h.transfers.WatchExport(ownerID(c), c.Param("export_id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	streamSSE(c, sub, initial)
}

// ProgressWS handles GET /constituents/export/:export_id/progress/ws
func (h *ExportHandler) ProgressWS(c *gin.Context) {
	sub, initial, err := h.transfers.WatchExport(ownerID(c), c.Param("export_id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	streamWS(c, h.logger, sub, initial)
}

// DownloadURL handles GET /constituents/export/:export_id/url
// Returns a short lived link to a completed export's artifact
func (h *ExportHandler) DownloadURL(c *gin.Context) {
	token, expiresAt, err := h.transfers.IssueDownloadToken(ownerID(c), c.Param("export_id"))
	if err != nil {
		RespondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.OK(dto.DownloadURLResponse{
		URL:       h.serverURL + "/constituents/download?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}))
}

// Download handles GET /constituents/download?token=
// The token is the only credential
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, dto.Fail("token is required"))
		return
	}

	path, name, err := h.transfers.RedeemDownload(token)
	if err != nil {
		h.logger.Info("Download refused", slog.Any("error", err))
		// token problems all read as not found, except expiry
		if StatusFor(err) == http.StatusNotFound {
			err = domain.ErrNotFound
		}
		RespondError(c, h.logger, err)
		return
	}

	c.FileAttachment(path, name)
}
