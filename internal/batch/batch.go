// Package batch classifies many image files with one cascade.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MeKo-Tech/oryza/internal/pipeline"
)

// ErrNoImages is returned when discovery finds nothing to classify.
var ErrNoImages = errors.New("no image files found")

// FailedFilesError reports failures when ContinueOnError is off.
type FailedFilesError struct {
	Failed int
	First  pipeline.FileResult
}

func (e *FailedFilesError) Error() string {
	return fmt.Sprintf("%d file(s) failed, first %s: %v", e.Failed, e.First.Path, e.First.Err)
}

func (e *FailedFilesError) Unwrap() error {
	return e.First.Err
}

// ProcessBatch discovers images under paths and classifies them with pl.
// Progress is written to progressOut when enabled. The result is returned
// even when files failed, so callers can still report them.
func ProcessBatch(ctx context.Context, pl *pipeline.Pipeline, paths []string, config *Config, progressOut io.Writer) (*Result, error) {
	files, err := DiscoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	workers := config.Workers
	if workers <= 0 {
		workers = pipeline.DefaultParallelConfig().MaxWorkers
	}
	workers = min(workers, len(files))

	var progress pipeline.ProgressCallback
	if config.ShowProgress && !config.Quiet && progressOut != nil {
		progress = pipeline.NewConsoleProgressCallback(progressOut, "Classifying: ")
	}

	start := time.Now()
	results, err := pl.ProcessFilesParallel(ctx, files, pipeline.ParallelConfig{
		MaxWorkers:       workers,
		ProgressCallback: progress,
	})
	res := &Result{Files: results, Duration: time.Since(start), WorkerCount: workers}
	if err != nil {
		return res, fmt.Errorf("batch processing interrupted: %w", err)
	}

	if !config.ContinueOnError {
		if failed, first := countFailures(results); failed > 0 {
			return res, &FailedFilesError{Failed: failed, First: first}
		}
	}
	return res, nil
}

func countFailures(results []pipeline.FileResult) (int, pipeline.FileResult) {
	var n int
	var first pipeline.FileResult
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if n == 0 {
			first = r
		}
		n++
	}
	return n, first
}
