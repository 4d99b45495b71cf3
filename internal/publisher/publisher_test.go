package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrzysztofW02/ZTP/internal/messaging"
	"github.com/KrzysztofW02/ZTP/internal/messaging/messagingtest"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("data:"+n), 0o644))
	}
}

func TestPublisher_ListImages(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.jpg", "a.JPG", "c.png", "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "processed_gpu.jpg"), 0o755))
	writeFiles(t, filepath.Join(dir, "processed_gpu.jpg"), "nested.jpg")

	tests := []struct {
		name      string
		extension string
		want      []string
	}{
		{"default extension", "", []string{"a.JPG", "b.jpg"}},
		{"without dot", "png", []string{"c.png"}},
		{"no matches", ".bmp", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(&Config{Logger: nopLogger(), Extension: tt.extension})
			names, err := p.ListImages(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestPublisher_PublishFolder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "1.jpg", "2.jpg", "3.jpg", "skip.png")

	broker := messagingtest.NewBroker()
	broker.Bind("image_jobs", "cpu_jobs", "gpu_jobs")

	p := New(&Config{Logger: nopLogger(), Publisher: broker, Exchange: "image_jobs"})
	n, err := p.PublishFolder(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, q := range []string{"cpu_jobs", "gpu_jobs"} {
		pending := broker.Pending(q)
		require.Len(t, pending, 3, q)
		for i, m := range pending {
			job, err := messaging.DecodeJob(m.Body, m.ContentType)
			require.NoError(t, err)
			assert.Equal(t, []string{"1.jpg", "2.jpg", "3.jpg"}[i], job.FileName)
			assert.False(t, job.Inline())
		}
	}
	assert.Len(t, broker.Published(), 3)
}

func TestPublisher_Inline(t *testing.T) {
	dir := t.TempDir()
	names := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"}
	writeFiles(t, dir, names...)

	broker := messagingtest.NewBroker()
	broker.Bind("cpu_jobs", "cpu_jobs")

	p := New(&Config{Logger: nopLogger(), Publisher: broker, Exchange: "cpu_jobs", Inline: true, ReadWorkers: 2})
	n, err := p.PublishFolder(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, len(names), n)

	for i, m := range broker.Pending("cpu_jobs") {
		assert.Equal(t, messaging.ContentTypeJSON, m.ContentType)
		job, err := messaging.DecodeJob(m.Body, m.ContentType)
		require.NoError(t, err)
		assert.Equal(t, names[i], job.FileName)
		assert.Equal(t, "data:"+names[i], string(job.ImageBytes))
	}
}

func TestPublisher_MissingFolder(t *testing.T) {
	broker := messagingtest.NewBroker()
	p := New(&Config{Logger: nopLogger(), Publisher: broker, Exchange: "image_jobs"})

	n, err := p.PublishFolder(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, broker.Published())
}

func TestPublisher_EmptyFolder(t *testing.T) {
	broker := messagingtest.NewBroker()
	p := New(&Config{Logger: nopLogger(), Publisher: broker, Exchange: "image_jobs"})

	n, err := p.PublishFolder(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPublisher_PublishError(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg")

	broker := messagingtest.NewBroker()
	broker.PublishErr = errors.New("channel closed")

	p := New(&Config{Logger: nopLogger(), Publisher: broker, Exchange: "image_jobs"})
	n, err := p.PublishFolder(context.Background(), dir)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, err.Error(), "failed to publish a.jpg")
}

func TestPublisher_InlineCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.jpg", "b.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&Config{Logger: nopLogger(), Publisher: messagingtest.NewBroker(), Inline: true})
	_, err := p.PublishFolder(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
