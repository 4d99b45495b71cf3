package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/internal/worker/attempts"
	"github.com/KrzysztofW02/ZTP/internal/worker/domain"
	"github.com/KrzysztofW02/ZTP/shared/rabbitmq"
)

// handle settles one delivery. The result is published before the ack, so a
// crash in between causes a redelivery and a duplicate result rather than a
// lost one. Only a lost device is returned as an error.
func (w *Worker) handle(ctx context.Context, d messaging.Delivery) error {
	w.setState(StateProcessing)

	job, result, err := w.processJob(d)
	if err == nil {
		w.setState(StateAcknowledging)
		if err = w.publishResult(ctx, result); err == nil {
			w.ack(ctx, d, job)
			w.setState(StateIdle)
			return nil
		}
	}

	w.setState(StateRetrying)
	w.retry(ctx, d, job, err)
	w.setState(StateIdle)

	if errors.Is(err, engine.ErrDeviceUnavailable) {
		return err
	}
	return nil
}

func (w *Worker) publishResult(ctx context.Context, result messaging.Result) error {
	body, err := messaging.EncodeResult(result)
	if err != nil {
		return domain.NewProcessingError(domain.StagePublish, result.FileName, err)
	}
	if err := w.publisher.Publish(ctx, "", w.resultsQueue, body, messaging.ContentTypeJSON); err != nil {
		return domain.NewProcessingError(domain.StagePublish, result.FileName, err)
	}
	return nil
}

func (w *Worker) ack(ctx context.Context, d messaging.Delivery, job messaging.Job) {
	if err := d.Ack(); err != nil {
		// The broker will redeliver; reprocessing overwrites the same output.
		w.logger.Error("Failed to ACK message",
			slog.String("file_name", job.FileName),
			slog.String("error", err.Error()),
		)
		return
	}

	w.processed.Add(1)
	w.logger.Info("Job completed successfully",
		slog.String("file_name", job.FileName),
		slog.String("backend", w.backend),
	)

	if w.maxAttempts > 0 {
		w.forget(ctx, attempts.Key(w.backend, job.FileName, d.Body()))
	}
}

// retry requeues a failed delivery immediately, or parks it on the
// dead-letter queue once MaxAttempts is reached.
func (w *Worker) retry(ctx context.Context, d messaging.Delivery, job messaging.Job, cause error) {
	w.logger.Error("Job processing failed",
		slog.String("file_name", job.FileName),
		slog.String("backend", w.backend),
		slog.String("error", cause.Error()),
	)

	if w.maxAttempts > 0 {
		key := attempts.Key(w.backend, job.FileName, d.Body())
		n, err := w.attempts.Incr(ctx, key)
		switch {
		case err != nil:
			w.logger.Warn("Attempt tracking unavailable, requeueing",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		case n >= w.maxAttempts:
			if w.deadLetter(ctx, d, key, n, cause) {
				return
			}
		}
	}

	if err := d.Nack(true); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("file_name", job.FileName),
			slog.String("error", err.Error()),
		)
		return
	}

	w.retried.Add(1)
	w.logger.Info("Message NACKed",
		slog.String("file_name", job.FileName),
		slog.Bool("requeue", true),
	)
}

func (w *Worker) deadLetter(ctx context.Context, d messaging.Delivery, key string, n int, cause error) bool {
	queue := rabbitmq.DeadLetterQueue(w.queue)

	if err := w.publisher.Publish(ctx, "", queue, d.Body(), d.ContentType()); err != nil {
		w.logger.Error("Failed to dead-letter message, requeueing",
			slog.String("queue", queue),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := d.Ack(); err != nil {
		w.logger.Error("Failed to ACK dead-lettered message",
			slog.String("queue", queue),
			slog.String("error", err.Error()),
		)
		return true
	}

	w.deadLettered.Add(1)
	w.forget(ctx, key)
	w.logger.Warn("Job moved to dead-letter queue",
		slog.String("queue", queue),
		slog.Int("attempts", n),
		slog.String("error", fmt.Errorf("%w: %w", domain.ErrMaxAttemptsExceeded, cause).Error()),
	)
	return true
}

func (w *Worker) forget(ctx context.Context, key string) {
	if err := w.attempts.Reset(ctx, key); err != nil {
		w.logger.Warn("Failed to reset attempts",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
