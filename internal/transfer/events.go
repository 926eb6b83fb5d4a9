package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/constituent-transfer/shared/rabbitmq"
)

// Event types published when a job reaches a terminal state
const (
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
	EventUploadCompleted = "upload.completed"
	EventUploadFailed    = "upload.failed"
)

// EventRoutingPrefix namespaces event routing keys, e.g. transfer.export.completed
const EventRoutingPrefix = "transfer."

// Event is the message sent to the job events exchange
type Event struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	OwnerID    string    `json:"owner_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
	Artifact   string    `json:"artifact,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher delivers job events. Delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// AMQPPublisher publishes events as JSON through the shared RabbitMQ client
type AMQPPublisher struct {
	client *rabbitmq.Client
}

// NewAMQPPublisher creates a publisher on client
func NewAMQPPublisher(client *rabbitmq.Client) *AMQPPublisher {
	return &AMQPPublisher{client: client}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.PublishWithRetry(ctx, EventRoutingPrefix+event.Type, body, "application/json")
}
