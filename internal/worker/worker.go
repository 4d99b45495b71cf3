package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/internal/worker/attempts"
)

// ImageStore loads job inputs and persists outputs.
type ImageStore interface {
	Load(fileName string) (*engine.Image, error)
	Save(backend, fileName string, img *engine.Image) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	Receiver  messaging.Receiver
	Publisher messaging.Publisher
	Convolver engine.Convolver
	Kernel    engine.Kernel
	Images    ImageStore

	// Queue is the consumed job queue; its dead-letter queue is derived from it.
	Queue        string
	ResultsQueue string

	// MaxAttempts > 0 parks a job on the dead-letter queue after that many
	// failures. Zero requeues failed jobs forever.
	MaxAttempts int
	Attempts    attempts.Tracker

	// OnTransition observes state changes.
	OnTransition func(from, to State)
}

// Stats counts how deliveries were settled.
type Stats struct {
	Processed    uint64
	Retried      uint64
	DeadLettered uint64
}

// Worker consumes one job at a time: receive, sharpen, report, acknowledge.
type Worker struct {
	logger       *slog.Logger
	receiver     messaging.Receiver
	publisher    messaging.Publisher
	convolver    engine.Convolver
	kernel       engine.Kernel
	images       ImageStore
	backend      string
	queue        string
	resultsQueue string
	maxAttempts  int
	attempts     attempts.Tracker
	onTransition func(from, to State)

	state        atomic.Int32
	processed    atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	tracker := cfg.Attempts
	if cfg.MaxAttempts > 0 && tracker == nil {
		tracker = attempts.NewMemory()
	}

	return &Worker{
		logger:       cfg.Logger,
		receiver:     cfg.Receiver,
		publisher:    cfg.Publisher,
		convolver:    cfg.Convolver,
		kernel:       cfg.Kernel,
		images:       cfg.Images,
		backend:      cfg.Convolver.Backend().String(),
		queue:        cfg.Queue,
		resultsQueue: cfg.ResultsQueue,
		maxAttempts:  cfg.MaxAttempts,
		attempts:     tracker,
		onTransition: cfg.OnTransition,
	}
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) Stats() Stats {
	return Stats{
		Processed:    w.processed.Load(),
		Retried:      w.retried.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}

func (w *Worker) setState(to State) {
	from := State(w.state.Swap(int32(to)))
	if from == to {
		return
	}
	if w.onTransition != nil {
		w.onTransition(from, to)
	}
}

// Run processes jobs until ctx is cancelled, the consumer closes or the
// device backing the GPU backend is lost. Cancellation is not an error.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("backend", w.backend),
		slog.String("queue", w.queue),
		slog.Int("max_attempts", w.maxAttempts),
	)

	for {
		if err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				w.logger.Info("Worker context canceled, stopping...")
				return nil
			}
			w.logger.Error("Worker stopped", slog.Any("error", err))
			return err
		}
	}
}

// RunOnce receives and settles exactly one delivery. Errors from the job
// itself are handled by nacking and do not surface here.
func (w *Worker) RunOnce(ctx context.Context) error {
	w.setState(StateReceiving)

	d, err := w.receiver.Receive(ctx)
	if err != nil {
		w.setState(StateIdle)
		return fmt.Errorf("failed to receive job: %w", err)
	}

	return w.handle(ctx, d)
}
