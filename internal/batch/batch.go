// Package batch sharpens a folder in-process, without the broker.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/publisher"
	"github.com/KrzysztofW02/ZTP/internal/worker"
)

// DefaultWorkers bounds how many images are processed at once.
const DefaultWorkers = 4

// Config holds batch runner configuration
type Config struct {
	Logger    *slog.Logger
	Convolver engine.Convolver
	Kernel    engine.Kernel
	Images    worker.ImageStore
	// Extension filters input files. Default ".jpg".
	Extension string
	Workers   int
}

// FileError records why one image was not processed.
type FileError struct {
	FileName string
	Err      error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.FileName, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// Report summarises a batch run.
type Report struct {
	Backend   string
	Total     int
	Processed int
	Failed    []FileError
	// Elapsed sums convolution time only, as the worker reports it.
	Elapsed  time.Duration
	Duration time.Duration
}

type Runner struct {
	logger    *slog.Logger
	convolver engine.Convolver
	kernel    engine.Kernel
	images    worker.ImageStore
	extension string
	workers   int
}

func New(cfg *Config) *Runner {
	ext := cfg.Extension
	if ext == "" {
		ext = ".jpg"
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{
		logger:    cfg.Logger,
		convolver: cfg.Convolver,
		kernel:    cfg.Kernel,
		images:    cfg.Images,
		extension: ext,
		workers:   workers,
	}
}

// Run sharpens every image in dir. A failing image is logged and reported
// in Report.Failed; it does not stop the others. The returned error is
// non-nil only when dir cannot be listed or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, dir string) (Report, error) {
	start := time.Now()
	report := Report{Backend: r.convolver.Backend().String()}

	names, err := publisher.ListImages(dir, r.extension)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("Image folder does not exist", slog.String("folder", dir))
			return report, nil
		}
		return report, fmt.Errorf("failed to list images: %w", err)
	}
	report.Total = len(names)

	// One slot per file; nil means success.
	errs := make([]error, len(names))
	var elapsed atomic.Int64
	var processed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := r.process(name)
			if err != nil {
				r.logger.Error("Failed to process image",
					slog.String("file_name", name),
					slog.String("error", err.Error()),
				)
				errs[i] = err
				return nil
			}
			elapsed.Add(int64(d))
			processed.Add(1)
			return nil
		})
	}

	waitErr := g.Wait()

	for i, err := range errs {
		if err != nil {
			report.Failed = append(report.Failed, FileError{FileName: names[i], Err: err})
		}
	}
	report.Processed = int(processed.Load())
	report.Elapsed = time.Duration(elapsed.Load())
	report.Duration = time.Since(start)

	if waitErr != nil {
		return report, waitErr
	}

	r.logger.Info("Batch complete",
		slog.String("backend", report.Backend),
		slog.Int("total", report.Total),
		slog.Int("processed", report.Processed),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (r *Runner) process(name string) (time.Duration, error) {
	img, err := r.images.Load(name)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	out, err := r.convolver.Convolve(img, r.kernel)
	if err != nil {
		return 0, err
	}
	d := time.Since(start)

	if _, err := r.images.Save(r.convolver.Backend().String(), name, out); err != nil {
		return 0, err
	}
	return d, nil
}
