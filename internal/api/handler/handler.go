package handler

import (
	"context"
	"log/slog"

	"github.com/KrzysztofW02/ZTP/internal/storage"
)

// ResultStore reads the results ledger.
type ResultStore interface {
	ListResults(ctx context.Context, filter storage.ResultFilter) ([]storage.ProcessingResult, error)
	Summarize(ctx context.Context, runID string) ([]storage.BackendSummary, error)
}

// FolderPublisher publishes one job per image in a folder.
type FolderPublisher interface {
	PublishFolder(ctx context.Context, dir string) (int, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Results     ResultStore
	Publisher   FolderPublisher
	ImageFolder string
	Exchange    string
	// HealthCheck reports whether backing services are reachable. Optional.
	HealthCheck func(ctx context.Context) error
}

// ResultHandler serves the results ledger
type ResultHandler struct {
	logger  *slog.Logger
	results ResultStore
}

// NewResultHandler creates a new ResultHandler instance
func NewResultHandler(deps *Dependencies) *ResultHandler {
	return &ResultHandler{
		logger:  deps.Logger,
		results: deps.Results,
	}
}

// JobHandler triggers publishing of the image folder
type JobHandler struct {
	logger    *slog.Logger
	publisher FolderPublisher
	folder    string
	exchange  string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		publisher: deps.Publisher,
		folder:    deps.ImageFolder,
		exchange:  deps.Exchange,
	}
}
