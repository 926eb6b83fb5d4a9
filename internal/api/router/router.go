package router

import (
	"github.com/cuongbtq/constituent-transfer/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health(deps))

	exportHandler := handler.NewExportHandler(deps)
	uploadHandler := handler.NewUploadHandler(deps)
	auth := AuthMiddleware(deps.Sessions, deps.Logger)

	constituents := r.Group("/constituents")
	{
		// the signed token and the upload id are the credentials here
		constituents.GET("/download", exportHandler.Download)
		constituents.PUT("/upload/:upload_id", uploadHandler.Upload)

		exports := constituents.Group("/export", auth)
		{
			exports.POST("", exportHandler.CreateExport)
			exports.GET("/active", exportHandler.ActiveExport)
			exports.GET("/:export_id", exportHandler.GetExport)
			exports.DELETE("/:export_id", exportHandler.CancelExport)
			exports.GET("/:export_id/progress", exportHandler.Progress)
			exports.GET("/:export_id/progress/ws", exportHandler.ProgressWS)
			exports.GET("/:export_id/url", exportHandler.DownloadURL)
		}

		uploads := constituents.Group("/upload", auth)
		{
			uploads.POST("", uploadHandler.PresignUpload)
			uploads.GET("/:upload_id", uploadHandler.GetUpload)
			uploads.GET("/:upload_id/progress", uploadHandler.Progress)
		}
	}

	return r
}
