// Command sharpen processes an image folder locally, without RabbitMQ.
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

	"github.com/KrzysztofW02/ZTP/internal/batch"
	"github.com/KrzysztofW02/ZTP/internal/config"
	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/worker/storage"
	"github.com/KrzysztofW02/ZTP/shared/logger"
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

	defaultConfigPath := os.Getenv("SHARPEN_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/sharpen/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	backendFlag := flag.String("backend", "", "Override backend (scalar, simd, gpu)")
	folderFlag := flag.String("folder", "", "Override image folder")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *backendFlag != "" {
		cfg.Worker.Backend = *backendFlag
	}
	if *folderFlag != "" {
		cfg.Images.BaseFolder = *folderFlag
	}

	if err := cfg.ValidateBatchConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	backend, err := engine.ParseBackend(cfg.Worker.Backend)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var convolver engine.Convolver
	if backend == engine.GPU {
		dev, err := engine.OpenDevice(cfg.Engine.Device.Driver)
		if err != nil {
			return err
		}
		defer dev.Close()
		convolver, err = engine.New(backend, dev)
		if err != nil {
			return err
		}
	} else {
		convolver, err = engine.New(backend, nil)
		if err != nil {
			return err
		}
	}

	kernel, err := engine.KernelByName(cfg.Engine.Kernel)
	if len(cfg.Engine.Weights) > 0 {
		kernel, err = engine.KernelFromRows(cfg.Engine.Weights)
	}
	if err != nil {
		return fmt.Errorf("invalid kernel: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := batch.New(&batch.Config{
		Logger:    appLogger.Component("batch"),
		Convolver: convolver,
		Kernel:    kernel,
		Images:    storage.NewStorage(cfg.Images.BaseFolder, cfg.Images.JPEGQuality, appLogger.Component("storage")),
		Extension: cfg.Images.Extension,
		Workers:   cfg.Coordinator.BatchWorkers,
	})

	report, err := runner.Run(ctx, cfg.Images.BaseFolder)
	if err != nil {
		return err
	}

	for _, f := range report.Failed {
		appLogger.Warn("Image not processed",
			slog.String("file_name", f.FileName),
			slog.String("error", f.Err.Error()),
		)
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d images failed", len(report.Failed), report.Total)
	}
	return nil
}
