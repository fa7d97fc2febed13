package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/shared/rabbitmq"
)

// QueueDispatcher publishes task messages to RabbitMQ, routed by the
// task's queue affinity (gpu or render) on one direct exchange.
type QueueDispatcher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewQueueDispatcher creates a RabbitMQ-backed dispatcher.
func NewQueueDispatcher(client *rabbitmq.Client, logger *slog.Logger) *QueueDispatcher {
	return &QueueDispatcher{client: client, logger: logger}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, msg *domain.TaskMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal task message: %w", err)
	}

	routingKey := msg.Task.Queue()
	if err := d.client.PublishWithRetry(ctx, routingKey, body, "application/json"); err != nil {
		return fmt.Errorf("failed to dispatch %s for job %s: %w", msg.Task, msg.JobID, err)
	}

	d.logger.Info("Dispatched task",
		slog.String("job_id", msg.JobID),
		slog.String("task", string(msg.Task)),
		slog.String("queue", routingKey),
	)
	return nil
}
