package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/KrzysztofW02/ZTP/internal/engine"
	"github.com/KrzysztofW02/ZTP/internal/imageio"
	"github.com/KrzysztofW02/ZTP/internal/worker/domain"
)

// Storage reads source images from the shared folder and writes processed
// images next to them, one directory per backend
type Storage struct {
	baseFolder string
	quality    int
	logger     *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(baseFolder string, quality int, logger *slog.Logger) *Storage {
	return &Storage{
		baseFolder: baseFolder,
		quality:    quality,
		logger:     logger,
	}
}

// SourcePath returns where the job's input image is read from
func (s *Storage) SourcePath(fileName string) string {
	return filepath.Join(s.baseFolder, fileName)
}

// OutputPath returns <base>/processed_<backend>/<fileName>
func (s *Storage) OutputPath(backend, fileName string) string {
	return filepath.Join(s.baseFolder, domain.ProcessedDirPrefix+backend, fileName)
}

// Load decodes the named image from the base folder
func (s *Storage) Load(fileName string) (*engine.Image, error) {
	img, err := imageio.Load(s.SourcePath(fileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrImageNotFound, s.SourcePath(fileName))
		}
		return nil, err
	}
	return img, nil
}

// Save writes the processed image as JPEG, replacing any earlier output for
// the same file and backend. The name is kept even when its extension says
// otherwise. It returns the written path.
func (s *Storage) Save(backend, fileName string, img *engine.Image) (string, error) {
	path := s.OutputPath(backend, fileName)
	if err := imageio.SaveJPEG(path, img, s.quality); err != nil {
		return "", err
	}

	s.logger.Debug("Processed image saved",
		slog.String("path", path),
		slog.String("backend", backend),
	)
	return path, nil
}
