package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/constituent-transfer/internal/api/handler"
	"github.com/cuongbtq/constituent-transfer/internal/api/router"
	"github.com/cuongbtq/constituent-transfer/internal/api/storage"
	"github.com/cuongbtq/constituent-transfer/internal/config"
	"github.com/cuongbtq/constituent-transfer/internal/transfer"
	"github.com/cuongbtq/constituent-transfer/shared/logger"
	"github.com/cuongbtq/constituent-transfer/shared/postgresql"
	"github.com/cuongbtq/constituent-transfer/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := postgresql.NewClient(cfg.Database.ClientConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	var events transfer.EventPublisher = transfer.NopPublisher{}
	if cfg.Events.Enabled {
		rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		events = transfer.NewAMQPPublisher(rabbitClient)
	} else {
		appLogger.Info("Job events disabled")
	}

	store := storage.NewStorage(dbClient)

	manager, err := transfer.NewManager(&transfer.Config{
		Logger:    appLogger.Logger.With(slog.String("component", "transfer")),
		Store:     store,
		Tokens:    transfer.NewTokenIssuer(cfg.Transfer.DownloadSecret, nil),
		Events:    events,
		ExportDir: cfg.Transfer.ExportDir,
		UploadDir: cfg.Transfer.UploadDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize transfer manager: %w", err)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:    appLogger.Logger,
		Transfers: manager,
		Sessions:  store,
		Database:  dbClient,
		ServerURL: cfg.Server.URL,
		Service:   cfg.App.Name,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.String("public_url", cfg.Server.URL),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		_ = manager.Shutdown(context.Background())
		return err
	}

	// Jobs stop first: the registry rejects new work and closing the broker
	// ends open progress streams, which srv.Shutdown would otherwise wait on.
	jobsCtx, jobsCancel := context.WithTimeout(context.Background(), cfg.Transfer.ShutdownTimeout)
	defer jobsCancel()

	jobsErr := manager.Shutdown(jobsCtx)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	if jobsErr != nil {
		return fmt.Errorf("transfer jobs did not stop: %w", jobsErr)
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
