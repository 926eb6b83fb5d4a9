package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// Health handles GET /health
func Health(deps *Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := dto.HealthResponse{Status: "healthy", Service: deps.Service, Database: "up"}

		if deps.Database != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := deps.Database.HealthCheck(ctx); err != nil {
				deps.Logger.Warn("Health check failed", slog.Any("error", err))
				resp.Status = "unhealthy"
				resp.Database = "down"
				c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp, Error: "database unavailable"})
				return
			}
		}

		c.JSON(http.StatusOK, dto.OK(resp))
	}
}
