package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/internal/pipeline"
	"github.com/fablepress/backend/shared/logger"
	"github.com/fablepress/backend/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *logger.Logger
	RabbitClient  *rabbitmq.Client
	Executor      *pipeline.Executor
	Queues        []string
	Concurrency   int
	PrefetchCount int
}

// taskDelivery pairs a parsed task with the AMQP bookkeeping needed to
// settle it after processing.
type taskDelivery struct {
	msg         *domain.TaskMessage
	deliveryTag uint64
	redelivered bool
	queue       string
}

// Worker consumes pipeline task queues and runs their units through the
// executor with bounded concurrency.
type Worker struct {
	logger        *logger.Logger
	rabbitClient  *rabbitmq.Client
	executor      *pipeline.Executor
	queues        []string
	concurrency   int
	prefetchCount int
	workerID      string
	tasksChan     chan *taskDelivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		executor:      cfg.Executor,
		queues:        cfg.Queues,
		concurrency:   cfg.Concurrency,
		prefetchCount: cfg.PrefetchCount,
		workerID:      fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		tasksChan:     make(chan *taskDelivery),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming tasks. It blocks until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Any("queues", w.queues),
	)

	deliveries := make(map[string]<-chan amqp.Delivery, len(w.queues))
	for _, queue := range w.queues {
		ch, err := w.setupConsumer(queue)
		if err != nil {
			return fmt.Errorf("failed to set up consumer for %s: %w", queue, err)
		}
		deliveries[queue] = ch
	}

	w.spawnWorkerPool(ctx)

	for queue, ch := range deliveries {
		w.wg.Add(1)
		go w.startMessageDispatcher(ctx, queue, ch)
	}

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
