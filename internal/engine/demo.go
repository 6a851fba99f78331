package engine

import (
	"math"

	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
)

// DemoShapes sets the widths produced by NewDemoRuntime.
type DemoShapes struct {
	Classes int
	WidthA  int
	WidthB  int
}

// NewDemoRuntime returns a StaticRuntime whose outputs are deterministic
// functions of the input. It lets the service and the CLI run end to end
// without model artifacts. Its verdicts carry no diagnostic meaning.
func NewDemoRuntime(shapes DemoShapes) *StaticRuntime {
	rt := NewStaticRuntime()

	rt.SetFunc(models.LeafGate, func(in onnx.Tensor) (onnx.Tensor, error) {
		// Green-dominant images pass the gate.
		r, g, b := channelMeans(in)
		score := float32(0.5 + (g-(r+b)/2)*2)
		score = min(max(score, 0), 1)
		return onnx.Tensor{Data: []float32{score}, Shape: []int64{1, 1}}, nil
	})
	rt.SetFunc(models.ExtractorA, func(in onnx.Tensor) (onnx.Tensor, error) {
		return onnx.Tensor{Data: bucketMeans(in.Data, shapes.WidthA, 0), Shape: []int64{1, int64(shapes.WidthA)}}, nil
	})
	rt.SetFunc(models.ExtractorB, func(in onnx.Tensor) (onnx.Tensor, error) {
		return onnx.Tensor{Data: bucketMeans(in.Data, shapes.WidthB, 1), Shape: []int64{1, int64(shapes.WidthB)}}, nil
	})
	rt.SetFunc(models.Meta, func(in onnx.Tensor) (onnx.Tensor, error) {
		logits := bucketMeans(in.Data, shapes.Classes, 0)
		for i := range logits {
			logits[i] *= 8
		}
		return onnx.Tensor{Data: softmax(logits), Shape: []int64{1, int64(shapes.Classes)}}, nil
	})

	rt.SetShapes(models.LeafGate, nil, []int64{-1, 1})
	rt.SetShapes(models.ExtractorA, nil, []int64{-1, int64(shapes.WidthA)})
	rt.SetShapes(models.ExtractorB, nil, []int64{-1, int64(shapes.WidthB)})
	rt.SetShapes(models.Meta, []int64{-1, int64(shapes.WidthA + shapes.WidthB)}, []int64{-1, int64(shapes.Classes)})
	return rt
}

// channelMeans averages an interleaved RGB tensor per channel.
func channelMeans(in onnx.Tensor) (float64, float64, float64) {
	var sum [3]float64
	n := len(in.Data) / 3
	if n == 0 {
		return 0, 0, 0
	}
	for i := 0; i+2 < len(in.Data); i += 3 {
		sum[0] += float64(in.Data[i])
		sum[1] += float64(in.Data[i+1])
		sum[2] += float64(in.Data[i+2])
	}
	return sum[0] / float64(n), sum[1] / float64(n), sum[2] / float64(n)
}

// bucketMeans splits data into width contiguous buckets and averages each.
// offset rotates the buckets so two extractors do not emit identical features.
func bucketMeans(data []float32, width, offset int) []float32 {
	out := make([]float32, width)
	if width == 0 || len(data) == 0 {
		return out
	}
	per := max(len(data)/width, 1)
	for i := range width {
		start := ((i + offset) % width) * per
		end := min(start+per, len(data))
		if start >= end {
			continue
		}
		var s float64
		for _, v := range data[start:end] {
			s += float64(v)
		}
		out[i] = float32(s / float64(end-start))
	}
	return out
}

func softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		maxV = max(maxV, v)
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
