package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/constituent-transfer/internal/transfer"
	"github.com/gin-gonic/gin"
)

// OwnerIDKey is the gin context key holding the authenticated user id
const OwnerIDKey = "owner_id"

// SessionStore resolves a session id to its user
type SessionStore interface {
	UserIDForSession(ctx context.Context, sessionID string) (string, error)
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Transfers *transfer.Manager
	Sessions  SessionStore
	Database  HealthChecker
	ServerURL string
	Service   string
}

// ExportHandler handles constituent export requests
type ExportHandler struct {
	logger    *slog.Logger
	transfers *transfer.Manager
	serverURL string
}

// NewExportHandler creates a new ExportHandler instance
func NewExportHandler(deps *Dependencies) *ExportHandler {
	return &ExportHandler{
		logger:    deps.Logger,
		transfers: deps.Transfers,
		serverURL: deps.ServerURL,
	}
}

// UploadHandler handles constituent upload requests
type UploadHandler struct {
	logger    *slog.Logger
	transfers *transfer.Manager
	serverURL string
}

// NewUploadHandler creates a new UploadHandler instance
func NewUploadHandler(deps *Dependencies) *UploadHandler {
	return &UploadHandler{
		logger:    deps.Logger,
		transfers: deps.Transfers,
		serverURL: deps.ServerURL,
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(OwnerIDKey)
}
