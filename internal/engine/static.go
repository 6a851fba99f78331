package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
)

// InferFunc computes a model output from its input.
type InferFunc func(input onnx.Tensor) (onnx.Tensor, error)

// StaticRuntime serves fixed or computed outputs without a model runtime.
// It counts calls per model, which makes it the runtime of choice for tests
// and for running the service without model files.
type StaticRuntime struct {
	mu     sync.Mutex
	funcs  map[models.ID]InferFunc
	infos  map[models.ID]ModelInfo
	delays map[models.ID]time.Duration
	calls  map[models.ID]int
}

// NewStaticRuntime returns an empty runtime; every model is "not loaded"
// until an output or function is set.
func NewStaticRuntime() *StaticRuntime {
	return &StaticRuntime{
		funcs:  make(map[models.ID]InferFunc),
		infos:  make(map[models.ID]ModelInfo),
		delays: make(map[models.ID]time.Duration),
		calls:  make(map[models.ID]int),
	}
}

// SetOutput makes the model return data shaped [1, len(data)].
func (s *StaticRuntime) SetOutput(id models.ID, data ...float32) *StaticRuntime {
	out := onnx.Tensor{Data: append([]float32(nil), data...), Shape: []int64{1, int64(len(data))}}
	return s.SetFunc(id, func(onnx.Tensor) (onnx.Tensor, error) {
		return onnx.Tensor{Data: append([]float32(nil), out.Data...), Shape: out.Shape}, nil
	})
}

// SetFunc installs a function computing the model output.
func (s *StaticRuntime) SetFunc(id models.ID, fn InferFunc) *StaticRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[id] = fn
	if _, ok := s.infos[id]; !ok {
		s.infos[id] = ModelInfo{ID: id}
	}
	return s
}

// SetError makes every call to the model fail with err.
func (s *StaticRuntime) SetError(id models.ID, err error) *StaticRuntime {
	return s.SetFunc(id, func(onnx.Tensor) (onnx.Tensor, error) { return onnx.Tensor{}, err })
}

// SetDelay makes calls to the model block for d or until ctx ends.
func (s *StaticRuntime) SetDelay(id models.ID, d time.Duration) *StaticRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[id] = d
	return s
}

// SetShapes declares the model's input and output shapes for Describe.
func (s *StaticRuntime) SetShapes(id models.ID, input, output []int64) *StaticRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[id] = ModelInfo{ID: id, InputShape: input, OutputShape: output}
	return s
}

// Calls returns how many times the model has been invoked.
func (s *StaticRuntime) Calls(id models.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// TotalCalls returns the number of invocations across all models.
func (s *StaticRuntime) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// ResetCalls clears the call counters.
func (s *StaticRuntime) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.calls)
}

// Infer implements Runtime.
func (s *StaticRuntime) Infer(ctx context.Context, id models.ID, input onnx.Tensor) (onnx.Tensor, error) {
	s.mu.Lock()
	s.calls[id]++
	fn, ok := s.funcs[id]
	info := s.infos[id]
	delay := s.delays[id]
	s.mu.Unlock()

	if !ok {
		return onnx.Tensor{}, notLoaded(id)
	}
	if len(info.InputShape) > 0 && !onnx.ShapeCompatible(info.InputShape, input.Shape) {
		return onnx.Tensor{}, shapeRejected(id, info.InputShape, input.Shape)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return onnx.Tensor{}, timedOut(ctx, id)
		}
	} else if ctx.Err() != nil {
		return onnx.Tensor{}, timedOut(ctx, id)
	}

	out, err := fn(input)
	if err != nil {
		var me *ModelError
		if errors.As(err, &me) {
			return onnx.Tensor{}, err
		}
		return onnx.Tensor{}, execFailed(id, err)
	}
	return out, nil
}

// Describe implements Describer.
func (s *StaticRuntime) Describe(id models.ID) (ModelInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[id]
	return info, ok
}

// Models implements Describer.
func (s *StaticRuntime) Models() []ModelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return orderedInfos(s.infos, func(m ModelInfo) ModelInfo { return m })
}

// Close implements io.Closer.
func (s *StaticRuntime) Close() error {
	return nil
}
