package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/utils"
)

// DefaultLeafThreshold is the inclusive gate score at which an image counts as a leaf.
const DefaultLeafThreshold = 0.5

// ModelIDs names the models each stage calls.
type ModelIDs struct {
	Gate       models.ID
	ExtractorA models.ID
	ExtractorB models.ID
	Meta       models.ID
}

// DefaultModelIDs returns the standard identifiers.
func DefaultModelIDs() ModelIDs {
	return ModelIDs{
		Gate:       models.LeafGate,
		ExtractorA: models.ExtractorA,
		ExtractorB: models.ExtractorB,
		Meta:       models.Meta,
	}
}

// Config holds configuration for the cascade.
type Config struct {
	Stages        []Stage
	LeafThreshold float32
	Timeout       time.Duration // upper bound on one run (0 = none)
	TopK          int           // runner-up classes reported with a diagnosis
	Preprocess    utils.PreprocessOptions
	Models        ModelIDs
}

// DefaultConfig returns the full three-stage cascade with a 0.5 gate.
func DefaultConfig() Config {
	return Config{
		Stages:        AllStages(),
		LeafThreshold: DefaultLeafThreshold,
		Timeout:       30 * time.Second,
		TopK:          2,
		Preprocess:    utils.DefaultPreprocessOptions(),
		Models:        DefaultModelIDs(),
	}
}

// GateEnabled reports whether the leaf gate is in the stage list.
func (c Config) GateEnabled() bool {
	return slices.Contains(c.Stages, StageGate)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validateStages(c.Stages); err != nil {
		return err
	}
	if c.LeafThreshold < 0 || c.LeafThreshold > 1 {
		return fmt.Errorf("leaf threshold must be in [0,1], got %v", c.LeafThreshold)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Timeout)
	}
	if c.TopK < 0 {
		return fmt.Errorf("top-k must be non-negative, got %d", c.TopK)
	}
	if c.Models.ExtractorA == "" || c.Models.ExtractorB == "" || c.Models.Meta == "" {
		return errors.New("extractor and meta model ids are required")
	}
	if c.GateEnabled() && c.Models.Gate == "" {
		return errors.New("gate model id is required when the gate stage is enabled")
	}
	return c.Preprocess.Validate()
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg     Config
	runtime engine.Runtime
	table   *disease.Table
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig(), table: disease.Default()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithRuntime sets the model runtime.
func (b *Builder) WithRuntime(rt engine.Runtime) *Builder {
	b.runtime = rt
	return b
}

// WithTable sets the disease table.
func (b *Builder) WithTable(t *disease.Table) *Builder {
	if t != nil {
		b.table = t
	}
	return b
}

// WithGate adds or removes the leaf gate stage.
func (b *Builder) WithGate(enabled bool) *Builder {
	stages := slices.DeleteFunc(slices.Clone(b.cfg.Stages), func(s Stage) bool { return s == StageGate })
	if enabled {
		stages = append([]Stage{StageGate}, stages...)
	}
	b.cfg.Stages = stages
	return b
}

// WithStages sets the stage list.
func (b *Builder) WithStages(stages ...Stage) *Builder {
	b.cfg.Stages = stages
	return b
}

// WithLeafThreshold sets the inclusive gate threshold.
func (b *Builder) WithLeafThreshold(th float32) *Builder {
	b.cfg.LeafThreshold = th
	return b
}

// WithTimeout bounds the latency of one run.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.cfg.Timeout = d
	return b
}

// WithTopK sets how many runner-up classes are reported.
func (b *Builder) WithTopK(k int) *Builder {
	b.cfg.TopK = k
	return b
}

// WithPreprocess sets the preprocessing options.
func (b *Builder) WithPreprocess(opts utils.PreprocessOptions) *Builder {
	b.cfg.Preprocess = opts
	return b
}

// WithModels sets the model identifiers.
func (b *Builder) WithModels(ids ModelIDs) *Builder {
	b.cfg.Models = ids
	return b
}

// Config returns the configuration being built.
func (b *Builder) Config() Config { return b.cfg }

// Build validates the configuration and, when the runtime can describe its
// models, checks that their widths agree with each other and with the table.
func (b *Builder) Build() (*Pipeline, error) {
	if b.runtime == nil {
		return nil, errors.New("pipeline requires a model runtime")
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if d, ok := b.runtime.(engine.Describer); ok {
		if err := checkModelShapes(b.cfg, d, b.table); err != nil {
			return nil, err
		}
	}

	p := &Pipeline{
		cfg:     b.cfg,
		runtime: b.runtime,
		table:   b.table,
		stages:  slices.Clone(b.cfg.Stages),
	}
	slog.Info("pipeline ready",
		"stages", p.stages,
		"leaf_threshold", p.cfg.LeafThreshold,
		"classes", p.table.Len(),
		"input_shape", p.cfg.Preprocess.TensorShape())
	return p, nil
}

// checkModelShapes asserts the startup invariants: the meta classifier emits
// one score per table entry and accepts exactly the fused feature width.
func checkModelShapes(cfg Config, d engine.Describer, table *disease.Table) error {
	ids := []models.ID{cfg.Models.ExtractorA, cfg.Models.ExtractorB, cfg.Models.Meta}
	if cfg.GateEnabled() {
		ids = append(ids, cfg.Models.Gate)
	}
	infos := make(map[models.ID]engine.ModelInfo, len(ids))
	for _, id := range ids {
		info, ok := d.Describe(id)
		if !ok {
			return &engine.ModelLoadError{Model: id, Err: errors.New("model is not registered with the runtime")}
		}
		infos[id] = info
	}

	meta := infos[cfg.Models.Meta]
	if w := meta.OutputWidth(); w > 0 && w != int64(table.Len()) {
		return &engine.ShapeMismatchError{What: "meta output width vs disease table size", Want: int64(table.Len()), Got: w}
	}

	wa := infos[cfg.Models.ExtractorA].OutputWidth()
	wb := infos[cfg.Models.ExtractorB].OutputWidth()
	if in := meta.InputWidth(); in > 0 && wa > 0 && wb > 0 && wa+wb != in {
		return &engine.ShapeMismatchError{What: "fused feature width vs meta input width", Want: in, Got: wa + wb}
	}

	if cfg.GateEnabled() {
		if w := infos[cfg.Models.Gate].OutputWidth(); w > 0 && w != 1 {
			return &engine.ShapeMismatchError{What: "leaf gate output width", Want: 1, Got: w}
		}
	}
	return nil
}

// Pipeline runs the cascade. It is safe for concurrent use.
type Pipeline struct {
	cfg     Config
	runtime engine.Runtime
	table   *disease.Table
	stages  []Stage
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Table returns the disease table.
func (p *Pipeline) Table() *disease.Table { return p.table }

// Runtime returns the model runtime.
func (p *Pipeline) Runtime() engine.Runtime { return p.runtime }

// Close releases the runtime if it holds resources.
func (p *Pipeline) Close() error {
	if c, ok := p.runtime.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Info summarises the pipeline for diagnostics endpoints.
func (p *Pipeline) Info() map[string]any {
	stages := make([]string, len(p.stages))
	for i, s := range p.stages {
		stages[i] = string(s)
	}
	info := map[string]any{
		"stages":         stages,
		"gate_enabled":   p.cfg.GateEnabled(),
		"leaf_threshold": p.cfg.LeafThreshold,
		"classes":        p.table.Len(),
		"input_shape":    p.cfg.Preprocess.TensorShape(),
		"resample":       p.cfg.Preprocess.Filter,
		"timeout":        p.cfg.Timeout.String(),
	}
	if d, ok := p.runtime.(engine.Describer); ok {
		info["models"] = d.Models()
	}
	return info
}
