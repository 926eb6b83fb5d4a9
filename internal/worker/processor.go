package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/constituent-transfer/internal/worker/domain"
)

// processEvent records event under the per-event timeout
func (w *Worker) processEvent(ctx context.Context, event *domain.TransferEvent) error {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	recorded, err := w.recorder.RecordEvent(ctx, event)
	if err != nil {
		return err
	}

	w.logger.Info("Transfer event processed",
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.Type),
		slog.String("job_id", event.JobID),
		slog.String("status", event.Status),
		slog.Bool("duplicate", !recorded),
	)

	return nil
}
