package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fablepress/backend/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case task, ok := <-w.tasksChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - tasksChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received task",
				slog.String("worker_name", workerName),
				slog.String("job_id", task.msg.JobID),
				slog.String("task", string(task.msg.Task)),
				slog.String("queue", task.queue),
			)

			err := w.executor.Execute(ctx, task.msg)
			w.settle(ctx, workerName, task, err)
		}
	}
}

// settle acks or nacks one delivery based on the unit's outcome.
// Retryable errors get a single broker redelivery; a retryable error on
// an already redelivered message fails the job terminally so the queue
// never loops on a poisoned task.
func (w *Worker) settle(ctx context.Context, workerName string, task *taskDelivery, err error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
			slog.String("worker_name", workerName),
			slog.String("job_id", task.msg.JobID),
		)
		return
	}

	if err == nil {
		if ackErr := channel.Ack(task.deliveryTag, false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", task.msg.JobID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	w.logger.Error("Task processing failed",
		slog.String("worker_name", workerName),
		slog.String("job_id", task.msg.JobID),
		slog.String("task", string(task.msg.Task)),
		slog.String("error", err.Error()),
	)

	if domain.IsRetryable(err) && !task.redelivered {
		if nackErr := channel.Nack(task.deliveryTag, false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message for requeue",
				slog.String("worker_name", workerName),
				slog.String("job_id", task.msg.JobID),
				slog.String("error", nackErr.Error()),
			)
		} else {
			w.logger.Info("Task requeued",
				slog.String("worker_name", workerName),
				slog.String("job_id", task.msg.JobID),
			)
		}
		return
	}

	// Redelivery budget spent or the error is not retryable: record the
	// failure and consume the message.
	if domain.IsRetryable(err) {
		w.logger.Warn("Task exceeded redelivery budget",
			slog.String("worker_name", workerName),
			slog.String("job_id", task.msg.JobID),
		)
		w.executor.MarkFailed(ctx, task.msg, err)
	}

	if ackErr := channel.Ack(task.deliveryTag, false); ackErr != nil {
		w.logger.Error("Failed to ACK failed message",
			slog.String("worker_name", workerName),
			slog.String("job_id", task.msg.JobID),
			slog.String("error", ackErr.Error()),
		)
	}
}
