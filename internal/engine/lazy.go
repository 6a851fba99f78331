package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
)

// LazyRuntime opens a fresh session for every call and destroys it afterwards.
// It trades latency for idle memory. Model files are still validated up front
// so a missing artifact is reported at startup.
type LazyRuntime struct {
	cfg   Config
	infos map[models.ID]ModelInfo
}

// NewLazyRuntime validates every configured model without keeping sessions open.
func NewLazyRuntime(cfg Config) (*LazyRuntime, error) {
	if len(cfg.Models) == 0 {
		return nil, errors.New("no models configured")
	}
	if err := onnx.Initialize(cfg.GPU.UseGPU); err != nil {
		return nil, &ModelLoadError{Model: cfg.Models[0].ID, Path: cfg.Models[0].Path, Err: err}
	}

	infos := make(map[models.ID]ModelInfo, len(cfg.Models))
	for _, spec := range cfg.Models {
		info, err := inspectModel(spec)
		if err != nil {
			return nil, err
		}
		infos[spec.ID] = info
	}
	slog.Info("models registered for lazy loading", "count", len(infos))
	return &LazyRuntime{cfg: cfg, infos: infos}, nil
}

// Infer creates a session, runs it once and destroys it.
func (l *LazyRuntime) Infer(ctx context.Context, id models.ID, input onnx.Tensor) (onnx.Tensor, error) {
	info, ok := l.infos[id]
	if !ok {
		return onnx.Tensor{}, notLoaded(id)
	}
	if !onnx.ShapeCompatible(info.InputShape, input.Shape) {
		return onnx.Tensor{}, shapeRejected(id, info.InputShape, input.Shape)
	}
	if err := ctx.Err(); err != nil {
		return onnx.Tensor{}, timedOut(ctx, id)
	}

	done := make(chan inferResult, 1)
	go func() {
		sess, err := createSession(info, l.cfg)
		if err != nil {
			done <- inferResult{err: err}
			return
		}
		defer func() {
			if err := sess.Destroy(); err != nil {
				slog.Warn("failed to destroy session", "model", id, "error", err)
			}
		}()
		out, err := runSession(sess, input)
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

// Describe returns the metadata of a registered model.
func (l *LazyRuntime) Describe(id models.ID) (ModelInfo, bool) {
	info, ok := l.infos[id]
	return info, ok
}

// Models lists registered models in cascade order.
func (l *LazyRuntime) Models() []ModelInfo {
	return orderedInfos(l.infos, func(m ModelInfo) ModelInfo { return m })
}

// Close is a no-op; no sessions outlive a call.
func (l *LazyRuntime) Close() error {
	return nil
}
