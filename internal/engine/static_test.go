package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageInput() onnx.Tensor {
	return onnx.Tensor{Data: make([]float32, 2*2*3), Shape: []int64{1, 2, 2, 3}}
}

func TestStaticRuntimeOutputsAndCounts(t *testing.T) {
	rt := NewStaticRuntime().SetOutput(models.ExtractorA, 0.1, 0.2, 0.7)

	out, err := rt.Infer(context.Background(), models.ExtractorA, imageInput())
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.7}, out.Data)
	assert.Equal(t, []int64{1, 3}, out.Shape)

	// Callers may not mutate the canned output.
	out.Data[0] = 9
	again, err := rt.Infer(context.Background(), models.ExtractorA, imageInput())
	require.NoError(t, err)
	assert.InDelta(t, 0.1, again.Data[0], 1e-6)

	assert.Equal(t, 2, rt.Calls(models.ExtractorA))
	assert.Equal(t, 2, rt.TotalCalls())
	rt.ResetCalls()
	assert.Zero(t, rt.TotalCalls())
}

func TestStaticRuntimeNotLoaded(t *testing.T) {
	rt := NewStaticRuntime()
	_, err := rt.Infer(context.Background(), models.Meta, imageInput())
	assert.True(t, IsKind(err, KindNotLoaded))
	assert.Equal(t, 1, rt.Calls(models.Meta))
}

func TestStaticRuntimeErrorIsExecution(t *testing.T) {
	boom := errors.New("boom")
	rt := NewStaticRuntime().SetError(models.ExtractorB, boom)

	_, err := rt.Infer(context.Background(), models.ExtractorB, imageInput())
	require.ErrorIs(t, err, boom)
	assert.True(t, IsKind(err, KindExecution))
}

func TestStaticRuntimePassesModelErrorThrough(t *testing.T) {
	rt := NewStaticRuntime().SetError(models.Meta, notLoaded(models.Meta))
	_, err := rt.Infer(context.Background(), models.Meta, imageInput())
	assert.True(t, IsKind(err, KindNotLoaded))
}

func TestStaticRuntimeShapeCheck(t *testing.T) {
	rt := NewStaticRuntime().
		SetOutput(models.Meta, 1, 0).
		SetShapes(models.Meta, []int64{-1, 5}, []int64{-1, 2})

	_, err := rt.Infer(context.Background(), models.Meta, onnx.Tensor{Data: make([]float32, 4), Shape: []int64{1, 4}})
	assert.True(t, IsKind(err, KindShapeMismatch))

	_, err = rt.Infer(context.Background(), models.Meta, onnx.Tensor{Data: make([]float32, 5), Shape: []int64{1, 5}})
	require.NoError(t, err)
}

func TestStaticRuntimeDelayHonoursContext(t *testing.T) {
	rt := NewStaticRuntime().SetOutput(models.LeafGate, 1).SetDelay(models.LeafGate, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := rt.Infer(ctx, models.LeafGate, imageInput())
	assert.True(t, IsKind(err, KindTimeout))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestStaticRuntimeConcurrentCalls(t *testing.T) {
	rt := NewStaticRuntime().SetOutput(models.ExtractorA, 1, 2)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.Infer(context.Background(), models.ExtractorA, imageInput())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, rt.Calls(models.ExtractorA))
}

func TestStaticRuntimeModelsOrdered(t *testing.T) {
	rt := NewStaticRuntime().
		SetOutput(models.Meta, 1).
		SetOutput(models.LeafGate, 1).
		SetOutput("custom", 1)

	infos := rt.Models()
	require.Len(t, infos, 3)
	assert.Equal(t, models.LeafGate, infos[0].ID)
	assert.Equal(t, models.Meta, infos[1].ID)
	assert.Equal(t, models.ID("custom"), infos[2].ID)
	require.NoError(t, rt.Close())
}

func TestDemoRuntimeIsDeterministic(t *testing.T) {
	rt := NewDemoRuntime(DemoShapes{Classes: 10, WidthA: 8, WidthB: 4})

	green := onnx.Tensor{Data: make([]float32, 4*4*3), Shape: []int64{1, 4, 4, 3}}
	for i := 1; i < len(green.Data); i += 3 {
		green.Data[i] = 1
	}

	gate, err := rt.Infer(context.Background(), models.LeafGate, green)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, gate.Data[0], float32(0.5))

	a, err := rt.Infer(context.Background(), models.ExtractorA, green)
	require.NoError(t, err)
	assert.Len(t, a.Data, 8)
	b, err := rt.Infer(context.Background(), models.ExtractorB, green)
	require.NoError(t, err)
	assert.Len(t, b.Data, 4)

	fused := onnx.Tensor{Data: onnx.Concat(a, b), Shape: []int64{1, 12}}
	p1, err := rt.Infer(context.Background(), models.Meta, fused)
	require.NoError(t, err)
	p2, err := rt.Infer(context.Background(), models.Meta, fused)
	require.NoError(t, err)
	assert.Equal(t, p1.Data, p2.Data)
	assert.Len(t, p1.Data, 10)

	var sum float32
	for _, v := range p1.Data {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-4)

	info, ok := rt.Describe(models.Meta)
	require.True(t, ok)
	assert.Equal(t, int64(12), info.InputWidth())
	assert.Equal(t, int64(10), info.OutputWidth())
}

func TestDemoRuntimeRejectsRedImages(t *testing.T) {
	rt := NewDemoRuntime(DemoShapes{Classes: 3, WidthA: 2, WidthB: 2})
	red := onnx.Tensor{Data: make([]float32, 4*4*3), Shape: []int64{1, 4, 4, 3}}
	for i := 0; i < len(red.Data); i += 3 {
		red.Data[i] = 1
	}
	gate, err := rt.Infer(context.Background(), models.LeafGate, red)
	require.NoError(t, err)
	assert.Less(t, gate.Data[0], float32(0.5))
}
