package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cuongbtq/constituent-transfer/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type eventMessage struct {
	event    *domain.TransferEvent
	delivery amqp.Delivery
}

// startMessageDispatcher decodes deliveries and hands them to the worker pool.
// Malformed messages are rejected without requeue.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return errDeliveriesClosed
			}

			var event domain.TransferEvent
			err := json.Unmarshal(delivery.Body, &event)
			if err == nil {
				err = event.Validate()
			}
			if err != nil {
				w.logger.Error("Rejecting malformed event",
					slog.Any("error", err),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			select {
			case w.jobsChan <- &eventMessage{event: &event, delivery: delivery}:
				w.logger.Debug("Event dispatched to worker pool",
					slog.String("event_id", event.EventID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching event")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return nil
			}
		}
	}
}
