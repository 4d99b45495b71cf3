package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/internal/messaging/messagingtest"
)

const resultsQueue = "image_results"

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func publishResult(t *testing.T, b *messagingtest.Broker, r messaging.Result) {
	t.Helper()
	body, err := messaging.EncodeResult(r)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), "", resultsQueue, body, messaging.ContentTypeJSON))
}

type memoryRecorder struct {
	mu      sync.Mutex
	runIDs  []string
	results []messaging.Result
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, runID string, r messaging.Result, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runIDs = append(m.runIDs, runID)
	m.results = append(m.results, r)
	return m.err
}

func TestCoordinator_WaitTerminatesAtExpected(t *testing.T) {
	b := messagingtest.NewBroker()
	for i := 0; i < 4; i++ {
		publishResult(t, b, messaging.Result{FileName: fmt.Sprintf("%d.jpg", i), Backend: "scalar", ElapsedMillis: 10})
	}

	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue)})
	summary, err := c.Wait(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Received)
	assert.Equal(t, 3, b.Acks())
	// The fourth result stays queued for the next run.
	assert.Len(t, b.Pending(resultsQueue), 1)
}

func TestCoordinator_WaitBlocksOneShort(t *testing.T) {
	b := messagingtest.NewBroker()
	publishResult(t, b, messaging.Result{FileName: "a.jpg", Backend: "gpu", ElapsedMillis: 5})
	publishResult(t, b, messaging.Result{FileName: "b.jpg", Backend: "gpu", ElapsedMillis: 7})

	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue)})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	summary, err := c.Wait(ctx, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, summary.Received)
	assert.Contains(t, err.Error(), "stopped after 2 of 3 results")
}

func TestCoordinator_WaitUnblocksOnLateResult(t *testing.T) {
	b := messagingtest.NewBroker()
	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue)})

	done := make(chan Summary, 1)
	go func() {
		s, err := c.Wait(context.Background(), 1)
		assert.NoError(t, err)
		done <- s
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before any result arrived")
	case <-time.After(20 * time.Millisecond):
	}

	publishResult(t, b, messaging.Result{FileName: "a.jpg", Backend: "scalar"})

	select {
	case s := <-done:
		assert.Equal(t, 1, s.Received)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the last result")
	}
}

func TestCoordinator_DuplicatesOverCount(t *testing.T) {
	b := messagingtest.NewBroker()
	// Three images, one processed twice after a lost ack.
	publishResult(t, b, messaging.Result{FileName: "a.jpg", Backend: "scalar"})
	publishResult(t, b, messaging.Result{FileName: "a.jpg", Backend: "scalar"})
	publishResult(t, b, messaging.Result{FileName: "b.jpg", Backend: "scalar"})

	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue)})
	summary, err := c.Wait(context.Background(), 3)
	require.NoError(t, err)

	// c.jpg never reported, yet the wait is complete.
	assert.Equal(t, 3, summary.Received)
	assert.Empty(t, b.Pending(resultsQueue))
}

func TestCoordinator_ExpectedZero(t *testing.T) {
	b := messagingtest.NewBroker()
	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue)})

	summary, err := c.Wait(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Received)
	assert.Empty(t, summary.Backends)
}

func TestCoordinator_UndecodableResultsCount(t *testing.T) {
	b := messagingtest.NewBroker()
	require.NoError(t, b.Publish(context.Background(), "", resultsQueue, []byte("a.jpg|GPU|12"), messaging.ContentTypeText))
	publishResult(t, b, messaging.Result{FileName: "b.jpg", Backend: "gpu", ElapsedMillis: 12})

	rec := &memoryRecorder{}
	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue), Recorder: rec})
	summary, err := c.Wait(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Received)
	assert.Equal(t, 1, summary.Undecodable)
	assert.Equal(t, 2, b.Acks())
	assert.Len(t, rec.results, 1)
}

func TestCoordinator_SummaryAndRecorder(t *testing.T) {
	b := messagingtest.NewBroker()
	publishResult(t, b, messaging.Result{FileName: "a.jpg", Backend: "scalar", ElapsedMillis: 30})
	publishResult(t, b, messaging.Result{FileName: "a.jpg", Backend: "gpu", ElapsedMillis: 4})
	publishResult(t, b, messaging.Result{FileName: "b.jpg", Backend: "scalar", ElapsedMillis: 50})
	publishResult(t, b, messaging.Result{FileName: "b.jpg", Backend: "gpu", ElapsedMillis: 6})

	rec := &memoryRecorder{err: errors.New("database down")}
	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue), Recorder: rec, RunID: "run-1"})

	summary, err := c.Wait(context.Background(), 4)
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	require.Len(t, summary.Backends, 2)
	assert.Equal(t, BackendSummary{Backend: "gpu", Count: 2, TotalElapsed: 10 * time.Millisecond}, summary.Backends[0])
	assert.Equal(t, BackendSummary{Backend: "scalar", Count: 2, TotalElapsed: 80 * time.Millisecond}, summary.Backends[1])
	assert.Equal(t, 40*time.Millisecond, summary.Backends[1].AverageElapsed())

	// Recorder failures do not stop the count.
	assert.Len(t, rec.results, 4)
	assert.Equal(t, []string{"run-1", "run-1", "run-1", "run-1"}, rec.runIDs)
}

func TestCoordinator_ConsumerClosed(t *testing.T) {
	b := messagingtest.NewBroker()
	publishResult(t, b, messaging.Result{FileName: "a.jpg", Backend: "scalar"})
	b.Close(resultsQueue)

	c := New(&Config{Logger: nopLogger(), Receiver: b.Receiver(resultsQueue)})
	summary, err := c.Wait(context.Background(), 2)
	assert.ErrorIs(t, err, messaging.ErrClosed)
	assert.Equal(t, 1, summary.Received)
}

func TestNew_GeneratesRunID(t *testing.T) {
	c := New(&Config{Logger: nopLogger()})
	_, err := uuid.Parse(c.RunID())
	assert.NoError(t, err)
	assert.NotEqual(t, c.RunID(), New(&Config{Logger: nopLogger()}).RunID())
}

func TestBackendSummary_AverageElapsedEmpty(t *testing.T) {
	assert.Equal(t, time.Duration(0), BackendSummary{}.AverageElapsed())
}
