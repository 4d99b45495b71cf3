package worker

import (
	"log/slog"
	"time"

	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/imageio"
	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/internal/worker/domain"
)

// processJob decodes the job, sharpens the image and writes the output. The
// reported elapsed time covers the convolution only.
func (w *Worker) processJob(d messaging.Delivery) (messaging.Job, messaging.Result, error) {
	job, err := messaging.DecodeJob(d.Body(), d.ContentType())
	if err != nil {
		return job, messaging.Result{}, domain.NewProcessingError(domain.StageDecode, "", err)
	}

	w.logger.Info("Processing job",
		slog.String("file_name", job.FileName),
		slog.String("backend", w.backend),
		slog.Bool("inline", job.Inline()),
		slog.Bool("redelivered", d.Redelivered()),
	)

	src, err := w.loadImage(job)
	if err != nil {
		return job, messaging.Result{}, domain.NewProcessingError(domain.StageLoad, job.FileName, err)
	}

	start := time.Now()
	out, err := w.convolver.Convolve(src, w.kernel)
	elapsed := time.Since(start)
	if err != nil {
		return job, messaging.Result{}, domain.NewProcessingError(domain.StageConvolve, job.FileName, err)
	}

	path, err := w.images.Save(w.backend, job.FileName, out)
	if err != nil {
		return job, messaging.Result{}, domain.NewProcessingError(domain.StageSave, job.FileName, err)
	}

	w.logger.Info("Image sharpened",
		slog.String("file_name", job.FileName),
		slog.String("output", path),
		slog.Duration("elapsed", elapsed),
	)

	return job, messaging.NewResult(job.FileName, w.backend, elapsed), nil
}

func (w *Worker) loadImage(job messaging.Job) (*engine.Image, error) {
	if job.Inline() {
		return imageio.Decode(job.ImageBytes)
	}
	return w.images.Load(job.FileName)
}
