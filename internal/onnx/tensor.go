package onnx

import (
	"errors"
	"fmt"
	"strings"
)

// Layout is the memory order of an image tensor.
type Layout string

const (
	// LayoutNHWC stores pixels as [N, H, W, C]. Keras-exported models expect this.
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW stores channel planes as [N, C, H, W].
	LayoutNCHW Layout = "nchw"
)

// ParseLayout converts a configuration string into a Layout.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutNHWC, "":
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	default:
		return "", fmt.Errorf("unknown tensor layout %q (want nhwc or nchw)", s)
	}
}

// Tensor is a row-major float32 tensor passed to and returned from models.
// Tensors are treated as immutable once produced.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewTensor wraps data with the given shape and checks that they agree.
func NewTensor(data []float32, shape ...int64) (Tensor, error) {
	t := Tensor{Data: data, Shape: append([]int64(nil), shape...)}
	if err := Verify(t); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// NewImageTensor builds a single-image tensor with a leading batch dimension of 1.
// data must hold c*h*w values already arranged in the given layout.
func NewImageTensor(data []float32, layout Layout, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	expected := c * h * w
	if len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	var shape []int64
	switch layout {
	case LayoutNCHW:
		shape = []int64{1, int64(c), int64(h), int64(w)}
	default:
		shape = []int64{1, int64(h), int64(w), int64(c)}
	}
	return Tensor{Data: data, Shape: shape}, nil
}

// Elements returns the number of values described by the shape.
func (t Tensor) Elements() int64 {
	return ShapeElements(t.Shape)
}

// Flatten returns a copy of the tensor data as a one-dimensional sequence.
func (t Tensor) Flatten() []float32 {
	out := make([]float32, len(t.Data))
	copy(out, t.Data)
	return out
}

// WithBatch returns the tensor with a leading batch dimension of 1 added.
// The data slice is shared.
func (t Tensor) WithBatch() Tensor {
	shape := make([]int64, 0, len(t.Shape)+1)
	shape = append(shape, 1)
	shape = append(shape, t.Shape...)
	return Tensor{Data: t.Data, Shape: shape}
}

// Scalar returns the first value of the tensor.
func (t Tensor) Scalar() (float32, error) {
	if len(t.Data) == 0 {
		return 0, errors.New("empty tensor")
	}
	return t.Data[0], nil
}

// Concat flattens the given tensors and joins them in argument order.
func Concat(parts ...Tensor) []float32 {
	n := 0
	for _, p := range parts {
		n += len(p.Data)
	}
	out := make([]float32, 0, n)
	for _, p := range parts {
		out = append(out, p.Data...)
	}
	return out
}

// ShapeElements multiplies the dimensions of shape. Dynamic (negative)
// dimensions count as 1.
func ShapeElements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		if d > 0 {
			n *= d
		}
	}
	return n
}

// ShapeCompatible reports whether a concrete shape satisfies a declared model
// shape. Declared dimensions <= 0 are dynamic and match any size.
func ShapeCompatible(declared, actual []int64) bool {
	if len(declared) != len(actual) {
		return false
	}
	for i, d := range declared {
		if d > 0 && d != actual[i] {
			return false
		}
	}
	return true
}

// Verify checks that data length matches the shape and that all dimensions are positive.
func Verify(t Tensor) error {
	if len(t.Shape) == 0 {
		return errors.New("tensor has no shape")
	}
	for i, v := range t.Shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	if expected := ShapeElements(t.Shape); int64(len(t.Data)) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// TensorStats computes min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
