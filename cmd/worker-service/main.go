package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/KrzysztofW02/ZTP/internal/config"
	"github.com/KrzysztofW02/ZTP/internal/device"
	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/internal/worker"
	"github.com/KrzysztofW02/ZTP/internal/worker/attempts"
	"github.com/KrzysztofW02/ZTP/internal/worker/storage"
	"github.com/KrzysztofW02/ZTP/shared/logger"
	"github.com/KrzysztofW02/ZTP/shared/rabbitmq"
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
	backendFlag := flag.String("backend", "", "Override worker backend (scalar, simd, gpu)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *backendFlag != "" {
		cfg.Worker.Backend = *backendFlag
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	queue := cfg.WorkerQueue()
	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("backend", cfg.Worker.Backend),
		slog.String("queue", queue),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the accelerator first: a missing device is fatal before we touch the broker
	convolver, dev, err := initEngine(cfg)
	if err != nil {
		return err
	}
	if dev != nil {
		defer dev.Close()
		appLogger.Info("Accelerator opened", slog.String("driver", dev.Name()))
	}

	kernel, err := initKernel(&cfg.Engine)
	if err != nil {
		return fmt.Errorf("invalid kernel: %w", err)
	}

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(ctx, &cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	topology := rabbitmq.DefaultTopology(topologyNames(cfg)).WithQueue(queue)
	if err := rabbitClient.Declare(topology); err != nil {
		return fmt.Errorf("failed to declare topology: %w", err)
	}

	consumer, err := rabbitClient.Consume(queue, fmt.Sprintf("%s-%s", cfg.Worker.Backend, uuid.NewString()))
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	tracker, trackerCloser, err := initAttempts(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize attempt tracker: %w", err)
	}
	if trackerCloser != nil {
		defer trackerCloser.Close()
	}

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Component("worker"),
		Receiver:     messaging.NewAMQPReceiver(consumer),
		Publisher:    rabbitClient,
		Convolver:    convolver,
		Kernel:       kernel,
		Images:       storage.NewStorage(cfg.Images.BaseFolder, cfg.Images.JPEGQuality, appLogger.Component("storage")),
		Queue:        queue,
		ResultsQueue: cfg.RabbitMQ.Topology.Results,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		Attempts:     tracker,
	})

	appLogger.Info("Worker service started successfully")

	err = workerInstance.Run(ctx)

	stats := workerInstance.Stats()
	appLogger.Info("Worker service shutdown complete",
		slog.Uint64("processed", stats.Processed),
		slog.Uint64("retried", stats.Retried),
		slog.Uint64("dead_lettered", stats.DeadLettered),
	)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
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

// initEngine builds the convolver, opening the accelerator for the GPU backend
func initEngine(cfg *config.Config) (engine.Convolver, *device.Context, error) {
	backend, err := engine.ParseBackend(cfg.Worker.Backend)
	if err != nil {
		return nil, nil, err
	}

	var dev *device.Context
	if backend == engine.GPU {
		dev, err = engine.OpenDevice(cfg.Engine.Device.Driver)
		if err != nil {
			return nil, nil, err
		}
	}

	convolver, err := engine.New(backend, dev)
	if err != nil {
		if dev != nil {
			dev.Close()
		}
		return nil, nil, err
	}
	return convolver, dev, nil
}

// initKernel resolves explicit weights or the named preset
func initKernel(cfg *config.EngineConfig) (engine.Kernel, error) {
	if len(cfg.Weights) > 0 {
		return engine.KernelFromRows(cfg.Weights)
	}
	return engine.KernelByName(cfg.Kernel)
}

// initAttempts picks the failure counter backing max_attempts. Redis lets
// several workers on the same queue share counts.
func initAttempts(ctx context.Context, cfg *config.Config, logger *slog.Logger) (attempts.Tracker, io.Closer, error) {
	if cfg.Worker.MaxAttempts == 0 || cfg.Redis.URL == "" {
		return nil, nil, nil
	}

	tracker, client, err := attempts.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Redis attempt tracker enabled",
		slog.String("key_prefix", cfg.Redis.KeyPrefix),
		slog.Int("max_attempts", cfg.Worker.MaxAttempts),
	)
	return tracker, client, nil
}

func topologyNames(cfg *config.Config) rabbitmq.TopologyNames {
	t := cfg.RabbitMQ.Topology
	return rabbitmq.TopologyNames{
		CPUJobs:     t.CPUJobs,
		GPUJobs:     t.GPUJobs,
		ImageJobs:   t.ImageJobs,
		Results:     t.Results,
		BroadcastTo: t.BroadcastTo,
		DeadLetter:  t.DeadLetterOn || cfg.Worker.MaxAttempts > 0,
	}
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(ctx context.Context, cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:              cfg.Host,
		Port:              cfg.Port,
		User:              cfg.User,
		Password:          cfg.Password,
		VHost:             cfg.VHost,
		RetryAttempts:     cfg.Connection.RetryAttempts,
		RetryInterval:     cfg.Connection.RetryInterval,
		Heartbeat:         cfg.Connection.Heartbeat,
		ConnectionTimeout: cfg.Connection.ConnectionTimeout,
		PublishTimeout:    cfg.Publish.Timeout,
		Confirms:          cfg.Publish.Confirms,
		PrefetchCount:     cfg.Consumer.PrefetchCount,
	}

	return rabbitmq.NewClient(ctx, rabbitConfig, logger)
}
