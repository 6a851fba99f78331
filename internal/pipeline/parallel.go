package pipeline

import (
	"context"
	"errors"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/oryza/internal/utils"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int              // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // Optional progress reporting
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// FileResult is the outcome of classifying one file. Result is set for
// failed cascades too; it is nil only when the file could not be decoded.
type FileResult struct {
	Path     string
	Result   *Result
	Err      error
	Duration time.Duration
}

type fileJob struct {
	index int
	path  string
}

type fileResult struct {
	index int
	res   FileResult
}

// ProcessFilesParallel classifies files with a worker pool and returns one
// entry per path in input order. Files not reached before ctx is cancelled
// carry the context error.
func (p *Pipeline) ProcessFilesParallel(ctx context.Context, paths []string, config ParallelConfig) ([]FileResult, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files provided")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if config.MaxWorkers > len(paths) {
		config.MaxWorkers = len(paths)
	}
	progress := config.ProgressCallback
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	progress.OnStart(len(paths))
	defer progress.OnComplete()

	jobs := make(chan fileJob, len(paths))
	results := make(chan fileResult, len(paths))

	var wg sync.WaitGroup
	for range config.MaxWorkers {
		wg.Add(1)
		go p.fileWorker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, path := range paths {
			select {
			case jobs <- fileJob{index: i, path: path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Aggregate results in order
	ordered := make([]FileResult, len(paths))
	done := make([]bool, len(paths))
	processed := 0
	for r := range results {
		ordered[r.index] = r.res
		done[r.index] = true
		processed++
		if r.res.Err != nil {
			progress.OnError(processed, r.res.Err)
		}
		progress.OnProgress(processed, len(paths))
	}

	for i := range ordered {
		if !done[i] {
			ordered[i] = FileResult{Path: paths[i], Err: ctx.Err()}
		}
	}
	return ordered, ctx.Err()
}

func (p *Pipeline) fileWorker(ctx context.Context, jobs <-chan fileJob, results chan<- fileResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res := p.processFile(ctx, job.path)
			select {
			case results <- fileResult{index: job.index, res: res}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) processFile(ctx context.Context, path string) FileResult {
	start := time.Now()
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return FileResult{Path: path, Err: err, Duration: time.Since(start)}
	}
	res, err := p.RunTraced(ctx, img)
	return FileResult{Path: path, Result: res, Err: err, Duration: time.Since(start)}
}

// ProcessImagesParallel classifies already decoded images. Results keep the
// input order; the first error is returned alongside them.
func (p *Pipeline) ProcessImagesParallel(ctx context.Context, images []image.Image, config ParallelConfig) ([]*Result, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}

	out := make([]*Result, len(images))
	errs := make([]error, len(images))
	sem := make(chan struct{}, config.MaxWorkers)
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			out[i], errs[i] = p.RunTraced(ctx, img)
		}()
	}
	wg.Wait()
	return out, errors.Join(errs...)
}

// ParallelStats holds statistics about a batch run.
type ParallelStats struct {
	TotalFiles       int           `json:"total_files"`
	Diagnosed        int           `json:"diagnosed"`
	NotLeaf          int           `json:"not_leaf"`
	Failed           int           `json:"failed"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerFile   time.Duration `json:"average_per_file_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats summarises a batch run.
func CalculateParallelStats(results []FileResult, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{TotalFiles: len(results), WorkerCount: workerCount, TotalDuration: duration}
	for _, r := range results {
		switch {
		case r.Err != nil || r.Result == nil:
			stats.Failed++
		case r.Result.Verdict.Kind == KindNotLeaf:
			stats.NotLeaf++
		default:
			stats.Diagnosed++
		}
	}
	if n := stats.Diagnosed + stats.NotLeaf; n > 0 && duration > 0 {
		stats.AveragePerFile = duration / time.Duration(n)
		stats.ThroughputPerSec = float64(n) / duration.Seconds()
	}
	return stats
}
