// Package engine executes model inference for the cascade.
//
// A Runtime maps a model identifier and an input tensor to an output tensor.
// Implementations must be safe for concurrent use and deterministic for
// identical inputs.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
)

// Runtime runs a single model.
type Runtime interface {
	Infer(ctx context.Context, id models.ID, input onnx.Tensor) (onnx.Tensor, error)
}

// Describer exposes the declared input and output shapes of loaded models.
type Describer interface {
	Describe(id models.ID) (ModelInfo, bool)
	Models() []ModelInfo
}

// Engine is a Runtime with model metadata and an explicit lifecycle.
type Engine interface {
	Runtime
	Describer
	io.Closer
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	ID          models.ID `json:"id"`
	Path        string    `json:"path,omitempty"`
	InputName   string    `json:"input_name,omitempty"`
	OutputName  string    `json:"output_name,omitempty"`
	InputShape  []int64   `json:"input_shape"`
	OutputShape []int64   `json:"output_shape"`
}

// OutputWidth is the number of values per batch item the model emits, or -1
// when the declared shape has dynamic feature dimensions.
func (m ModelInfo) OutputWidth() int64 {
	return featureWidth(m.OutputShape)
}

// InputWidth is the number of values per batch item the model accepts, or -1
// when dynamic.
func (m ModelInfo) InputWidth() int64 {
	return featureWidth(m.InputShape)
}

func featureWidth(shape []int64) int64 {
	if len(shape) < 2 {
		return -1
	}
	n := int64(1)
	for _, d := range shape[1:] {
		if d <= 0 {
			return -1
		}
		n *= d
	}
	return n
}

// LoadPolicy selects when model sessions are created.
type LoadPolicy string

const (
	// PolicyEager loads every model once at startup and keeps sessions pooled.
	PolicyEager LoadPolicy = "eager"
	// PolicyLazy creates a session per call and releases it afterwards.
	PolicyLazy LoadPolicy = "lazy"
)

// ParseLoadPolicy converts a configuration string into a LoadPolicy.
func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch LoadPolicy(strings.ToLower(s)) {
	case PolicyEager, "":
		return PolicyEager, nil
	case PolicyLazy:
		return PolicyLazy, nil
	default:
		return "", fmt.Errorf("unknown load policy %q (want eager or lazy)", s)
	}
}

// ModelSpec names a model and its artifact path.
type ModelSpec struct {
	ID   models.ID
	Path string
}

// Config configures the ONNX-backed runtimes.
type Config struct {
	Models           []ModelSpec
	Policy           LoadPolicy
	SessionsPerModel int
	NumThreads       int
	WarmupIterations int
	GPU              onnx.GPUConfig
}

// DefaultConfig returns a configuration with the four cascade models resolved
// against the default models directory.
func DefaultConfig() Config {
	specs := make([]ModelSpec, 0, 4)
	for _, m := range models.All() {
		specs = append(specs, ModelSpec{ID: m.ID, Path: models.ResolveModelPath("", m.Filename)})
	}
	return Config{
		Models:           specs,
		Policy:           PolicyEager,
		SessionsPerModel: 2,
		GPU:              onnx.DefaultGPUConfig(),
	}
}

// New creates an ONNX-backed Engine using the configured load policy.
func New(cfg Config) (Engine, error) {
	if cfg.Policy == PolicyLazy {
		rt, err := NewLazyRuntime(cfg)
		if err != nil {
			return nil, err
		}
		return rt, nil
	}
	reg, err := NewRegistry(cfg)
	if err != nil {
		return nil, err
	}
	return reg, nil
}
