package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/constituent-transfer/internal/api/dto"
	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/gin-gonic/gin"
)

const internalErrorMessage = "something went wrong, please try again later"

// StatusFor maps a domain error to its HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotReady):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err in the error envelope. Internal causes are logged
// and replaced with a generic message.
func RespondError(c *gin.Context, logger *slog.Logger, err error) {
	status := StatusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		message = internalErrorMessage
	}

	c.AbortWithStatusJSON(status, dto.Fail(message))
}
