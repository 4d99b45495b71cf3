// Package coordinator waits for the results of a published batch.
//
// Results are correlated by count only: every message on the results queue
// is acknowledged and counted, so a duplicate result (a redelivered job that
// was processed twice) counts toward the total and can end the wait before
// every distinct image has been reported.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/KrzysztofW02/ZTP/internal/messaging"
)

// Recorder persists decoded results, e.g. to the results ledger.
type Recorder interface {
	Record(ctx context.Context, runID string, result messaging.Result, receivedAt time.Time) error
}

// Config holds coordinator configuration
type Config struct {
	Logger   *slog.Logger
	Receiver messaging.Receiver
	// Recorder is optional.
	Recorder Recorder
	// RunID labels recorded results. Generated when empty.
	RunID string
}

// BackendSummary aggregates the results reported by one backend.
type BackendSummary struct {
	Backend      string
	Count        int
	TotalElapsed time.Duration
}

// AverageElapsed returns the mean convolution time per image.
func (b BackendSummary) AverageElapsed() time.Duration {
	if b.Count == 0 {
		return 0
	}
	return b.TotalElapsed / time.Duration(b.Count)
}

// Summary describes a completed or interrupted wait.
type Summary struct {
	RunID    string
	Expected int
	Received int
	// Undecodable results are counted in Received but not in Backends.
	Undecodable int
	Backends    []BackendSummary
	Duration    time.Duration
}

type Coordinator struct {
	logger   *slog.Logger
	receiver messaging.Receiver
	recorder Recorder
	runID    string
}

func New(cfg *Config) *Coordinator {
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Coordinator{
		logger:   cfg.Logger,
		receiver: cfg.Receiver,
		recorder: cfg.Recorder,
		runID:    runID,
	}
}

func (c *Coordinator) RunID() string {
	return c.runID
}

// Wait consumes results until expected of them have arrived. There is no
// timeout: it returns early only when ctx is done or the consumer closes, in
// which case the partial summary is returned with the error. expected <= 0
// returns immediately.
func (c *Coordinator) Wait(ctx context.Context, expected int) (Summary, error) {
	start := time.Now()
	byBackend := make(map[string]*BackendSummary)
	summary := Summary{RunID: c.runID, Expected: expected}

	finish := func() Summary {
		summary.Duration = time.Since(start)
		summary.Backends = make([]BackendSummary, 0, len(byBackend))
		for _, b := range byBackend {
			summary.Backends = append(summary.Backends, *b)
		}
		sort.Slice(summary.Backends, func(i, j int) bool {
			return summary.Backends[i].Backend < summary.Backends[j].Backend
		})
		return summary
	}

	c.logger.Info("Waiting for results",
		slog.String("run_id", c.runID),
		slog.Int("expected", expected),
	)

	for summary.Received < expected {
		d, err := c.receiver.Receive(ctx)
		if err != nil {
			return finish(), fmt.Errorf("stopped after %d of %d results: %w", summary.Received, expected, err)
		}

		receivedAt := time.Now()
		if err := d.Ack(); err != nil {
			c.logger.Error("Failed to ACK result", slog.String("error", err.Error()))
		}
		summary.Received++

		result, err := messaging.DecodeResult(d.Body())
		if err != nil {
			summary.Undecodable++
			c.logger.Warn("Undecodable result counted",
				slog.String("body", string(d.Body())),
				slog.String("error", err.Error()),
			)
			continue
		}

		b, ok := byBackend[result.Backend]
		if !ok {
			b = &BackendSummary{Backend: result.Backend}
			byBackend[result.Backend] = b
		}
		b.Count++
		b.TotalElapsed += result.Elapsed()

		c.logger.Info("Result received",
			slog.String("file_name", result.FileName),
			slog.String("backend", result.Backend),
			slog.Int64("elapsed_ms", result.ElapsedMillis),
			slog.Int("received", summary.Received),
			slog.Int("expected", expected),
		)

		if c.recorder != nil {
			if err := c.recorder.Record(ctx, c.runID, result, receivedAt); err != nil {
				c.logger.Warn("Failed to record result",
					slog.String("file_name", result.FileName),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	out := finish()
	c.logger.Info("All results received",
		slog.String("run_id", c.runID),
		slog.Int("received", out.Received),
		slog.Duration("duration", out.Duration),
	)
	return out, nil
}
