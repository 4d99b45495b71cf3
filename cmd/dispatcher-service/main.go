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

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/KrzysztofW02/ZTP/internal/config"
	"github.com/KrzysztofW02/ZTP/internal/coordinator"
	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/internal/publisher"
	"github.com/KrzysztofW02/ZTP/internal/storage"
	"github.com/KrzysztofW02/ZTP/shared/logger"
	"github.com/KrzysztofW02/ZTP/shared/postgresql"
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
	defaultConfigPath := os.Getenv("DISPATCHER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dispatcher-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	publishOnly := flag.Bool("publish-only", false, "Publish jobs and exit without waiting for results")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateDispatcherConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting dispatcher service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("folder", cfg.Images.BaseFolder),
		slog.String("exchange", cfg.Publisher.Exchange),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(ctx, &cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	t := cfg.RabbitMQ.Topology
	topology := rabbitmq.DefaultTopology(rabbitmq.TopologyNames{
		CPUJobs:     t.CPUJobs,
		GPUJobs:     t.GPUJobs,
		ImageJobs:   t.ImageJobs,
		Results:     t.Results,
		BroadcastTo: t.BroadcastTo,
		DeadLetter:  t.DeadLetterOn,
	})
	if err := rabbitClient.Declare(topology); err != nil {
		return fmt.Errorf("failed to declare topology: %w", err)
	}

	// Start consuming results before publishing so none are missed
	var results *rabbitmq.Consumer
	if !*publishOnly {
		results, err = rabbitClient.Consume(t.Results, "dispatcher-"+uuid.NewString())
		if err != nil {
			return fmt.Errorf("failed to consume results: %w", err)
		}
	}

	pub := publisher.New(&publisher.Config{
		Logger:      appLogger.Component("publisher"),
		Publisher:   rabbitClient,
		Exchange:    cfg.Publisher.Exchange,
		Extension:   cfg.Images.Extension,
		Inline:      cfg.Publisher.Inline,
		ReadWorkers: cfg.Publisher.ReadWorkers,
	})

	published, err := pub.PublishFolder(ctx, cfg.Images.BaseFolder)
	if err != nil {
		return fmt.Errorf("failed to publish jobs: %w", err)
	}

	if *publishOnly {
		appLogger.Info("Dispatcher finished publishing", slog.Int("published", published))
		return nil
	}

	expected := cfg.Coordinator.Expected
	if expected == 0 {
		expected = published * cfg.Coordinator.ResultsPerJob
	}

	var recorder coordinator.Recorder
	if cfg.Database.Enabled() {
		dbClient, err := initPostgreSQL(ctx, &cfg.Database, appLogger.Component("postgresql"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		ledger := storage.NewStorage(dbClient)
		if err := ledger.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare results ledger: %w", err)
		}
		recorder = ledger
		appLogger.Info("Results ledger enabled")
	}

	coord := coordinator.New(&coordinator.Config{
		Logger:   appLogger.Component("coordinator"),
		Receiver: messaging.NewAMQPReceiver(results),
		Recorder: recorder,
	})

	summary, err := coord.Wait(ctx, expected)
	logSummary(appLogger, summary)
	if err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}

	appLogger.Info("Dispatcher service shutdown complete")
	return nil
}

func logSummary(l *logger.Logger, s coordinator.Summary) {
	for _, b := range s.Backends {
		l.Info("Backend summary",
			slog.String("run_id", s.RunID),
			slog.String("backend", b.Backend),
			slog.Int("count", b.Count),
			slog.Duration("total_elapsed", b.TotalElapsed),
			slog.Duration("avg_elapsed", b.AverageElapsed()),
		)
	}
	l.Info("Run summary",
		slog.String("run_id", s.RunID),
		slog.Int("expected", s.Expected),
		slog.Int("received", s.Received),
		slog.Int("undecodable", s.Undecodable),
		slog.Duration("duration", s.Duration),
	)
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
func initPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
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

	return postgresql.NewClient(ctx, dbConfig, logger)
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
