// Package benchmark measures end-to-end cascade latency and per-stage cost.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/disintegration/imaging"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  `json:"alloc_bytes"`
	TotalAllocBytes uint64  `json:"total_alloc_bytes"`
	SysBytes        uint64  `json:"sys_bytes"`
	NumGC           uint32  `json:"num_gc"`
	GCCPUFraction   float64 `json:"gc_cpu_fraction"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// Config controls how often each case runs.
type Config struct {
	Iterations int
	Warmup     int // untimed runs before measuring
}

// DefaultConfig runs ten timed iterations after two warmups.
func DefaultConfig() Config {
	return Config{Iterations: 10, Warmup: 2}
}

// Case is one named cascade and the image it classifies.
type Case struct {
	Name     string
	Pipeline *pipeline.Pipeline
	Image    image.Image
}

// Result summarises the timed runs of one case.
type Result struct {
	Name         string                       `json:"name"`
	Iterations   int                          `json:"iterations"`
	Total        time.Duration                `json:"total"`
	Mean         time.Duration                `json:"mean"`
	P50          time.Duration                `json:"p50"`
	P95          time.Duration                `json:"p95"`
	Min          time.Duration                `json:"min"`
	Max          time.Duration                `json:"max"`
	Stages       map[string]time.Duration     `json:"stages"`
	Kinds        map[pipeline.VerdictKind]int `json:"kinds"`
	MemoryBefore MemoryStats                  `json:"memory_before"`
	MemoryAfter  MemoryStats                  `json:"memory_after"`
	Error        string                       `json:"error,omitempty"`
}

// Throughput returns images per second over the timed runs.
func (r Result) Throughput() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Iterations) / r.Total.Seconds()
}

// String returns a one-line summary.
func (r Result) String() string {
	if r.Error != "" {
		return fmt.Sprintf("%s: ERROR - %s", r.Name, r.Error)
	}
	memDiff := int64(r.MemoryAfter.TotalAllocBytes) - int64(r.MemoryBefore.TotalAllocBytes) //nolint:gosec // display only
	return fmt.Sprintf("%s: %d iterations, mean: %v, p50: %v, p95: %v, %.1f img/s, alloc: %d KB",
		r.Name, r.Iterations, r.Mean, r.P50, r.P95, r.Throughput(), memDiff/1024)
}

// Run classifies c.Image cfg.Iterations times. The first failing run ends the
// case; its error is recorded and the statistics cover the runs before it.
func Run(ctx context.Context, c Case, cfg Config) Result {
	res := Result{
		Name:   c.Name,
		Stages: map[string]time.Duration{},
		Kinds:  map[pipeline.VerdictKind]int{},
	}
	if c.Pipeline == nil || c.Image == nil {
		res.Error = "case needs a pipeline and an image"
		return res
	}

	for range cfg.Warmup {
		if _, err := c.Pipeline.RunTraced(ctx, c.Image); err != nil {
			res.Error = fmt.Sprintf("warmup: %v", err)
			return res
		}
	}

	runtime.GC()
	res.MemoryBefore = GetMemoryStats()

	durations := make([]time.Duration, 0, cfg.Iterations)
	stageTotals := map[string]time.Duration{}
	for range cfg.Iterations {
		start := time.Now()
		r, err := c.Pipeline.RunTraced(ctx, c.Image)
		elapsed := time.Since(start)
		if err != nil {
			res.Error = err.Error()
			var se *pipeline.StageError
			if errors.As(err, &se) {
				res.Error = fmt.Sprintf("stage %s: %v", se.Stage, se.Err)
			}
			break
		}
		durations = append(durations, elapsed)
		res.Kinds[r.Verdict.Kind]++
		for _, t := range r.Timings {
			stageTotals[t.Name] += t.Duration
		}
	}
	res.MemoryAfter = GetMemoryStats()

	res.Iterations = len(durations)
	if res.Iterations == 0 {
		return res
	}
	slices.Sort(durations)
	for _, d := range durations {
		res.Total += d
	}
	res.Mean = res.Total / time.Duration(res.Iterations)
	res.Min = durations[0]
	res.Max = durations[len(durations)-1]
	res.P50 = percentile(durations, 0.50)
	res.P95 = percentile(durations, 0.95)
	for name, total := range stageTotals {
		res.Stages[name] = total / time.Duration(res.Iterations)
	}
	return res
}

// percentile uses nearest rank on sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p*float64(len(sorted))+0.999999) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}

// Suite runs several cases in the order they were added.
type Suite struct {
	mu      sync.Mutex
	cases   []Case
	results []Result
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add registers a case.
func (s *Suite) Add(name string, p *pipeline.Pipeline, img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, Case{Name: name, Pipeline: p, Image: img})
}

// Len returns the number of registered cases.
func (s *Suite) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cases)
}

// RunAll runs every case. A cancelled context stops before the next case.
func (s *Suite) RunAll(ctx context.Context, cfg Config) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.cases))
	for _, c := range s.cases {
		if ctx.Err() != nil {
			break
		}
		s.results = append(s.results, Run(ctx, c, cfg))
	}
	return s.results
}

// Results returns the last run results.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// WriteReport prints one summary line per result followed by the mean
// stage timings.
func WriteReport(w io.Writer, results []Result) {
	_, _ = fmt.Fprintln(w, "Benchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	for _, r := range results {
		_, _ = fmt.Fprintln(w, r.String())
		if r.Iterations == 0 {
			continue
		}
		for _, st := range stageOrder(r.Stages) {
			_, _ = fmt.Fprintf(w, "  %-10s %v\n", st, r.Stages[st])
		}
	}
	if len(results) == 2 && results[0].Mean > 0 && results[1].Mean > 0 {
		_, _ = fmt.Fprintf(w, "\n%s vs %s: %.2fx\n", results[1].Name, results[0].Name,
			float64(results[0].Mean)/float64(results[1].Mean))
	}
}

// stageOrder lists the known cascade stages first, anything else after.
func stageOrder(stages map[string]time.Duration) []string {
	known := []string{"preprocess"}
	for _, st := range pipeline.AllStages() {
		known = append(known, string(st))
	}
	out := make([]string, 0, len(stages))
	for _, name := range known {
		if _, ok := stages[name]; ok {
			out = append(out, name)
		}
	}
	var rest []string
	for name := range stages {
		if !slices.Contains(out, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

// SyntheticLeaf draws a green leaf with a brown lesion, sized like a phone
// photo thumbnail.
func SyntheticLeaf(w, h int) image.Image {
	leaf := imaging.New(w, h, color.NRGBA{R: 52, G: 140, B: 48, A: 255})
	lesion := imaging.New(max(w/5, 1), max(h/5, 1), color.NRGBA{R: 120, G: 80, B: 30, A: 255})
	return imaging.Overlay(leaf, lesion, image.Pt(w/3, h/3), 1.0)
}
