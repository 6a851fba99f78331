package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	ort "github.com/yalue/onnxruntime_go"
)

// inspectModel validates a model file and reads its single input and output.
func inspectModel(spec ModelSpec) (ModelInfo, error) {
	if err := models.ValidateModelExists(spec.Path); err != nil {
		return ModelInfo{}, &ModelLoadError{Model: spec.ID, Path: spec.Path, Err: err}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(spec.Path)
	if err != nil {
		return ModelInfo{}, &ModelLoadError{Model: spec.ID, Path: spec.Path, Err: fmt.Errorf("io info: %w", err)}
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return ModelInfo{}, &ModelLoadError{
			Model: spec.ID,
			Path:  spec.Path,
			Err:   fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs)),
		}
	}

	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return ModelInfo{}, &ModelLoadError{
			Model: spec.ID,
			Path:  spec.Path,
			Err:   fmt.Errorf("input %q is %v, want float32", in.Name, in.DataType),
		}
	}

	return ModelInfo{
		ID:          spec.ID,
		Path:        spec.Path,
		InputName:   in.Name,
		OutputName:  out.Name,
		InputShape:  append([]int64(nil), in.Dimensions...),
		OutputShape: append([]int64(nil), out.Dimensions...),
	}, nil
}

// createSession opens a session for a model that has already been inspected.
func createSession(info ModelInfo, cfg Config) (*ort.DynamicAdvancedSession, error) {
	opts, err := onnx.NewSessionOptions(onnx.SessionOptions{NumThreads: cfg.NumThreads, GPU: cfg.GPU})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	sess, err := ort.NewDynamicAdvancedSession(info.Path,
		[]string{info.InputName}, []string{info.OutputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return sess, nil
}

// runSession executes one inference. The returned tensor owns its data.
func runSession(sess *ort.DynamicAdvancedSession, input onnx.Tensor) (onnx.Tensor, error) {
	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return onnx.Tensor{}, fmt.Errorf("input tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []ort.Value{nil}
	if err := sess.Run([]ort.Value{in}, outputs); err != nil {
		return onnx.Tensor{}, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o == nil {
				continue
			}
			if err := o.Destroy(); err != nil {
				slog.Warn("failed to destroy output tensor", "error", err)
			}
		}
	}()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return onnx.Tensor{}, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	data := t.GetData()
	if len(data) == 0 {
		return onnx.Tensor{}, errors.New("empty output tensor")
	}

	return onnx.Tensor{
		Data:  append([]float32(nil), data...),
		Shape: append([]int64(nil), t.GetShape()...),
	}, nil
}

// warmupShape replaces dynamic dimensions with 1.
func warmupShape(declared []int64) []int64 {
	shape := make([]int64, len(declared))
	for i, d := range declared {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}
