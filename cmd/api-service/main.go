package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/KrzysztofW02/ZTP/internal/api/handler"
	"github.com/KrzysztofW02/ZTP/internal/api/router"
	"github.com/KrzysztofW02/ZTP/internal/config"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), time.Minute)
	defer startupCancel()

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(startupCtx, &cfg.Database, appLogger.Component("postgresql"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	results := storage.NewStorage(dbClient)
	if err := results.EnsureSchema(startupCtx); err != nil {
		return fmt.Errorf("failed to prepare results ledger: %w", err)
	}

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(startupCtx, &cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	t := cfg.RabbitMQ.Topology
	if err := rabbitClient.Declare(rabbitmq.DefaultTopology(rabbitmq.TopologyNames{
		CPUJobs:     t.CPUJobs,
		GPUJobs:     t.GPUJobs,
		ImageJobs:   t.ImageJobs,
		Results:     t.Results,
		BroadcastTo: t.BroadcastTo,
		DeadLetter:  t.DeadLetterOn,
	})); err != nil {
		return fmt.Errorf("failed to declare topology: %w", err)
	}

	pub := publisher.New(&publisher.Config{
		Logger:      appLogger.Component("publisher"),
		Publisher:   rabbitClient,
		Exchange:    cfg.Publisher.Exchange,
		Extension:   cfg.Images.Extension,
		Inline:      cfg.Publisher.Inline,
		ReadWorkers: cfg.Publisher.ReadWorkers,
	})

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, dbClient, rabbitClient, results, pub)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	appLogger.Info("Shutting down server...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initRouter wires handlers to the ledger and publisher
func initRouter(cfg *config.Config, logger *slog.Logger, db *postgresql.Client, rabbit *rabbitmq.Client, results *storage.Storage, pub *publisher.Publisher) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:      logger,
		Results:     results,
		Publisher:   pub,
		ImageFolder: cfg.Images.BaseFolder,
		Exchange:    cfg.Publisher.Exchange,
		HealthCheck: func(ctx context.Context) error {
			if err := db.HealthCheck(ctx); err != nil {
				return err
			}
			if !rabbit.IsConnected() {
				return rabbitmq.ErrNotConnected
			}
			return nil
		},
	})
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
