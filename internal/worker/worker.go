package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeliverySource starts a consumer on the events queue
type DeliverySource interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// EventRecorder stores transfer events, ignoring ones already stored
type EventRecorder interface {
	RecordEvent(ctx context.Context, event *domain.TransferEvent) (bool, error)
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Source      DeliverySource
	Recorder    EventRecorder
	Concurrency int
	JobTimeout  time.Duration
}

// Worker consumes transfer events and records them for auditing
type Worker struct {
	logger      *slog.Logger
	source      DeliverySource
	recorder    EventRecorder
	workerID    string
	concurrency int
	jobTimeout  time.Duration
	jobsChan    chan *eventMessage
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Worker{
		logger:      cfg.Logger,
		source:      cfg.Source,
		recorder:    cfg.Recorder,
		workerID:    "transfer-events-" + uuid.New().String()[:8],
		concurrency: concurrency,
		jobTimeout:  cfg.JobTimeout,
		jobsChan:    make(chan *eventMessage),
		stopChan:    make(chan struct{}),
	}
}

// Start consumes events until ctx is canceled or the delivery channel closes
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	if err := w.startMessageDispatcher(ctx, deliveries); err != nil {
		return err
	}

	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop waits for in-flight events to finish
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

var errDeliveriesClosed = errors.New("delivery channel closed")

func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.source.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
	)

	return deliveries, nil
}
