package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fablepress/backend/internal/artifact"
	"github.com/fablepress/backend/internal/book"
	"github.com/fablepress/backend/internal/compositor"
	"github.com/fablepress/backend/internal/config"
	"github.com/fablepress/backend/internal/inference"
	"github.com/fablepress/backend/internal/pipeline"
	"github.com/fablepress/backend/internal/storage"
	"github.com/fablepress/backend/internal/worker"
	"github.com/fablepress/backend/shared/logger"
	"github.com/fablepress/backend/shared/postgresql"
	"github.com/fablepress/backend/shared/rabbitmq"
	"github.com/fablepress/backend/shared/redisclient"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Initialize the artifact store
	artifacts, err := artifact.NewS3Store(context.Background(), &artifact.S3Config{
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Region:          cfg.Storage.Region,
		Bucket:          cfg.Storage.Bucket,
		Endpoint:        cfg.Storage.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	// Face detector from the bundled cascade
	cascade, err := os.ReadFile(cfg.Inference.CascadePath)
	if err != nil {
		return fmt.Errorf("failed to read face cascade: %w", err)
	}
	detector, err := inference.NewPigoDetector(cascade)
	if err != nil {
		return fmt.Errorf("failed to initialize face detector: %w", err)
	}

	// Inference gateway: remote ComfyUI first, local compositing fallback
	workflow, err := os.ReadFile(cfg.Inference.WorkflowPath)
	if err != nil {
		return fmt.Errorf("failed to read workflow template: %w", err)
	}
	remote := inference.NewComfyClient(&inference.ComfyConfig{
		BaseURL:      cfg.Inference.BaseURL,
		PollInterval: cfg.Inference.PollInterval,
		PollTimeout:  cfg.Inference.PollTimeout,
	}, workflow, detector, appLogger.Logger)
	local := inference.NewLocalTransfer(detector, appLogger.Logger)
	gateway := inference.NewFallbackGateway(remote, local, appLogger.Logger)

	// Text compositor
	var raster compositor.Rasterizer
	if cfg.Compositor.ChromeEnabled {
		raster = compositor.NewChromeRasterizer(appLogger.Logger)
	} else {
		appLogger.Warn("Headless Chrome disabled, HTML text layers fall back to the native engine")
	}
	comp := compositor.New(artifacts, raster, appLogger.Logger)

	// Redis is optional; without it manifests are fetched per task.
	var cache *redisclient.Client
	if cfg.Redis.Enabled {
		cache, err = redisclient.NewClient(&redisclient.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, appLogger.Logger)
		if err != nil {
			appLogger.Warn("Redis unavailable, manifest cache disabled",
				slog.Any("error", err),
			)
			cache = nil
		}
	}

	manifests := book.NewCachedManifestStore(artifacts, cache, appLogger.Logger)
	jobs := storage.NewJobStorage(dbClient.GetDB(), appLogger)
	dispatcher := pipeline.NewQueueDispatcher(rabbitClient, appLogger.Logger)

	executor := pipeline.NewExecutor(
		jobs,
		artifacts,
		manifests,
		book.DefaultPlanner(),
		gateway,
		detector,
		comp,
		dispatcher,
		appLogger,
	)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger,
		RabbitClient:  rabbitClient,
		Executor:      executor,
		Queues:        cfg.Worker.Queues,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
		if cache != nil {
			cache.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	queues := make([]rabbitmq.QueueBinding, len(cfg.Queues))
	for i, q := range cfg.Queues {
		queues[i] = rabbitmq.QueueBinding{
			Name:       q.Name,
			RoutingKey: q.RoutingKey,
			Durable:    q.Durable,
			AutoDelete: q.AutoDelete,
			Exclusive:  q.Exclusive,
		}
	}

	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		Queues:             queues,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
