package storage

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/imageio"
	"github.com/KrzysztofW02/ZTP/internal/worker/domain"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStorage(dir, 90, slog.New(slog.NewTextHandler(io.Discard, nil))), dir
}

func TestStorage_Paths(t *testing.T) {
	s := NewStorage("/data/images", 90, slog.Default())

	assert.Equal(t, "/data/images/a.jpg", s.SourcePath("a.jpg"))
	assert.Equal(t, "/data/images/processed_gpu/a.jpg", s.OutputPath("gpu", "a.jpg"))
}

func TestStorage_LoadMissing(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Load("missing.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrImageNotFound))
}

func TestStorage_SaveAndLoad(t *testing.T) {
	s, dir := newTestStorage(t)

	img, err := engine.NewImage(4, 4, 4)
	require.NoError(t, err)
	require.NoError(t, imageio.Save(filepath.Join(dir, "a.jpg"), img, 90))

	loaded, err := s.Load("a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Width)

	path, err := s.Save("scalar", "a.jpg", loaded)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "processed_scalar", "a.jpg"), path)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStorage_SaveAlwaysJPEG(t *testing.T) {
	s, dir := newTestStorage(t)

	img, err := engine.NewImage(4, 4, 4)
	require.NoError(t, err)

	for _, name := range []string{"a.png", "b.bmp", "c.jpg"} {
		t.Run(name, func(t *testing.T) {
			path, err := s.Save("gpu", name, img)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "processed_gpu", name), path)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(data), 3)
			// JPEG SOI marker
			assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, data[:3])
		})
	}
}
