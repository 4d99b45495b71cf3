// Package publisher turns a folder of images into jobs on the broker.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/KrzysztofW02/ZTP/internal/messaging"
)

// DefaultReadWorkers bounds concurrent file reads in inline mode.
const DefaultReadWorkers = 4

// Config holds publisher configuration
type Config struct {
	Logger    *slog.Logger
	Publisher messaging.Publisher
	// Exchange is a fanout exchange; every queue bound to it gets a copy.
	Exchange string
	// Extension filters files, compared case-insensitively. Default ".jpg".
	Extension string
	// Inline embeds the image bytes in each job.
	Inline      bool
	ReadWorkers int
}

type Publisher struct {
	logger      *slog.Logger
	publisher   messaging.Publisher
	exchange    string
	extension   string
	inline      bool
	readWorkers int
}

func New(cfg *Config) *Publisher {
	ext := cfg.Extension
	if ext == "" {
		ext = ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	workers := cfg.ReadWorkers
	if workers <= 0 {
		workers = DefaultReadWorkers
	}

	return &Publisher{
		logger:      cfg.Logger,
		publisher:   cfg.Publisher,
		exchange:    cfg.Exchange,
		extension:   strings.ToLower(ext),
		inline:      cfg.Inline,
		readWorkers: workers,
	}
}

// ListImages returns the names of regular files in dir with the configured
// extension, sorted. Subdirectories are not descended into.
func (p *Publisher) ListImages(dir string) ([]string, error) {
	return ListImages(dir, p.extension)
}

// ListImages returns the regular files in dir whose extension matches ext,
// ignoring case, sorted by name.
func ListImages(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// PublishFolder publishes one job per image in dir and returns how many were
// published. A missing directory publishes nothing and is not an error.
func (p *Publisher) PublishFolder(ctx context.Context, dir string) (int, error) {
	names, err := p.ListImages(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("Image folder does not exist", slog.String("folder", dir))
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list images: %w", err)
	}

	jobs, err := p.buildJobs(ctx, dir, names)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, job := range jobs {
		if job.FileName == "" {
			continue
		}

		body, contentType, err := messaging.EncodeJob(job)
		if err != nil {
			p.logger.Warn("Skipping image", slog.String("file_name", job.FileName), slog.String("error", err.Error()))
			continue
		}

		if err := p.publisher.Publish(ctx, p.exchange, "", body, contentType); err != nil {
			return published, fmt.Errorf("failed to publish %s: %w", job.FileName, err)
		}
		published++

		p.logger.Debug("Job published",
			slog.String("file_name", job.FileName),
			slog.String("exchange", p.exchange),
		)
	}

	p.logger.Info("Jobs published",
		slog.String("folder", dir),
		slog.String("exchange", p.exchange),
		slog.Int("count", published),
	)
	return published, nil
}

// buildJobs returns one job per name, in order. In inline mode the files are
// read by a bounded pool; each goroutine owns its slot. Unreadable files leave
// an empty slot and are skipped.
func (p *Publisher) buildJobs(ctx context.Context, dir string, names []string) ([]messaging.Job, error) {
	jobs := make([]messaging.Job, len(names))
	if !p.inline {
		for i, name := range names {
			jobs[i] = messaging.Job{FileName: name}
		}
		return jobs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.readWorkers)

	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				p.logger.Warn("Failed to read image", slog.String("file_name", name), slog.String("error", err.Error()))
				return nil
			}
			jobs[i] = messaging.Job{FileName: name, ImageBytes: data}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return jobs, nil
}
