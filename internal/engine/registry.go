package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MeKo-Tech/oryza/internal/common"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

// Registry holds every model session for the lifetime of the process.
// Each model owns a fixed pool of sessions so concurrent calls never share one.
type Registry struct {
	mu     sync.RWMutex
	models map[models.ID]*pooledModel
	closed bool
}

type pooledModel struct {
	info     ModelInfo
	sessions chan *ort.DynamicAdvancedSession
	all      []*ort.DynamicAdvancedSession
}

type inferResult struct {
	out onnx.Tensor
	err error
}

// NewRegistry loads all configured models. Any failure is returned as a
// *ModelLoadError and no sessions are left open.
func NewRegistry(cfg Config) (*Registry, error) {
	if len(cfg.Models) == 0 {
		return nil, errors.New("no models configured")
	}
	if cfg.SessionsPerModel <= 0 {
		cfg.SessionsPerModel = 1
	}

	if err := onnx.Initialize(cfg.GPU.UseGPU); err != nil {
		return nil, &ModelLoadError{Model: cfg.Models[0].ID, Path: cfg.Models[0].Path, Err: err}
	}

	r := &Registry{models: make(map[models.ID]*pooledModel, len(cfg.Models))}
	for _, spec := range cfg.Models {
		timer := common.NewNamedTimer("load " + string(spec.ID))
		m, err := loadPooled(spec, cfg)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.models[spec.ID] = m
		slog.Info("model loaded",
			"model", spec.ID,
			"path", spec.Path,
			"input_shape", m.info.InputShape,
			"output_shape", m.info.OutputShape,
			"sessions", len(m.all),
			"duration", timer.Stop())
	}

	if cfg.WarmupIterations > 0 {
		if err := r.Warmup(cfg.WarmupIterations); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	return r, nil
}

func loadPooled(spec ModelSpec, cfg Config) (*pooledModel, error) {
	info, err := inspectModel(spec)
	if err != nil {
		return nil, err
	}

	m := &pooledModel{
		info:     info,
		sessions: make(chan *ort.DynamicAdvancedSession, cfg.SessionsPerModel),
	}
	for range cfg.SessionsPerModel {
		sess, err := createSession(info, cfg)
		if err != nil {
			m.destroy()
			return nil, &ModelLoadError{Model: spec.ID, Path: spec.Path, Err: err}
		}
		m.all = append(m.all, sess)
		m.sessions <- sess
	}
	return m, nil
}

func (m *pooledModel) destroy() {
	for _, s := range m.all {
		if err := s.Destroy(); err != nil {
			slog.Warn("failed to destroy session", "model", m.info.ID, "error", err)
		}
	}
	m.all = nil
}

// Infer runs the model on one of its pooled sessions. If ctx ends first the
// call returns a timeout error; the session is returned to the pool once the
// underlying run completes.
func (r *Registry) Infer(ctx context.Context, id models.ID, input onnx.Tensor) (onnx.Tensor, error) {
	r.mu.RLock()
	m, ok := r.models[id]
	if r.closed || !ok {
		r.mu.RUnlock()
		return onnx.Tensor{}, notLoaded(id)
	}
	if !onnx.ShapeCompatible(m.info.InputShape, input.Shape) {
		r.mu.RUnlock()
		return onnx.Tensor{}, shapeRejected(id, m.info.InputShape, input.Shape)
	}

	var sess *ort.DynamicAdvancedSession
	select {
	case sess = <-m.sessions:
	case <-ctx.Done():
		r.mu.RUnlock()
		return onnx.Tensor{}, timedOut(ctx, id)
	}

	done := make(chan inferResult, 1)
	go func() {
		defer r.mu.RUnlock()
		out, err := runSession(sess, input)
		m.sessions <- sess
		done <- inferResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return onnx.Tensor{}, execFailed(id, res.err)
		}
		return res.out, nil
	case <-ctx.Done():
		return onnx.Tensor{}, timedOut(ctx, id)
	}
}

// Warmup runs each model on a zero tensor of its declared input shape.
func (r *Registry) Warmup(iterations int) error {
	r.mu.RLock()
	ids := make([]models.ID, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		info, _ := r.Describe(id)
		shape := warmupShape(info.InputShape)
		input := onnx.Tensor{Data: make([]float32, onnx.ShapeElements(shape)), Shape: shape}
		timer := common.NewNamedTimer("warmup " + string(id))
		for range iterations {
			if _, err := r.Infer(context.Background(), id, input); err != nil {
				return fmt.Errorf("warmup %s: %w", id, err)
			}
		}
		slog.Debug("model warmed up", "model", id, "iterations", iterations, "duration", timer.Stop())
	}
	return nil
}

// Describe returns the metadata of a loaded model.
func (r *Registry) Describe(id models.ID) (ModelInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return ModelInfo{}, false
	}
	return m.info, true
}

// Models lists loaded models in cascade order.
func (r *Registry) Models() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return orderedInfos(r.models, func(m *pooledModel) ModelInfo { return m.info })
}

// Close waits for in-flight calls and destroys all sessions.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for _, m := range r.models {
		m.destroy()
	}
	return nil
}

func orderedInfos[T any](m map[models.ID]T, info func(T) ModelInfo) []ModelInfo {
	out := make([]ModelInfo, 0, len(m))
	for _, known := range models.All() {
		if v, ok := m[known.ID]; ok {
			out = append(out, info(v))
		}
	}
	var extra []models.ID
	for id := range m {
		if _, err := models.ParseID(string(id)); err != nil {
			extra = append(extra, id)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, id := range extra {
		out = append(out, info(m[id]))
	}
	return out
}
