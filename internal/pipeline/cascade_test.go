package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/MeKo-Tech/oryza/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLeafScenario(t *testing.T) {
	rt := scenarioRuntime(0.92)
	var fused []float32
	rt.SetFunc(models.Meta, func(in onnx.Tensor) (onnx.Tensor, error) {
		fused = in.Flatten()
		assert.Equal(t, []int64{1, 5}, in.Shape)
		return onnx.Tensor{Data: []float32{0.05, 0.85, 0.10}, Shape: []int64{1, 3}}, nil
	})
	p := buildPipeline(t, rt)

	v, err := p.Run(context.Background(), leafImage())
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.7, 0.4, 0.4}, fused)
	assert.Equal(t, KindDiagnosis, v.Kind)
	assert.Equal(t, 1, v.ClassIndex)
	assert.InDelta(t, 85.00, v.Confidence, 1e-9)
	assert.Equal(t, "Leaf Blast", v.Record.Name)
	require.NotNil(t, v.GateScore)
	assert.InDelta(t, 0.92, *v.GateScore, 1e-6)
	assert.Equal(t, StatusDiseased, v.HealthStatus())

	require.Len(t, v.Alternatives, 2)
	assert.Equal(t, 2, v.Alternatives[0].ClassIndex)
	assert.InDelta(t, 10.0, v.Alternatives[0].Confidence, 1e-9)
	assert.Equal(t, 0, v.Alternatives[1].ClassIndex)

	for _, id := range []models.ID{models.LeafGate, models.ExtractorA, models.ExtractorB, models.Meta} {
		assert.Equal(t, 1, rt.Calls(id), "calls to %s", id)
	}
}

func TestRunNotLeafShortCircuits(t *testing.T) {
	rt := scenarioRuntime(0.3)
	p := buildPipeline(t, rt)

	v, err := p.Run(context.Background(), leafImage())
	require.NoError(t, err)

	assert.Equal(t, KindNotLeaf, v.Kind)
	assert.Equal(t, disease.NotLeaf, v.Record)
	assert.Equal(t, 0.0, v.Confidence)
	assert.Equal(t, -1, v.ClassIndex)
	assert.Equal(t, StatusNotLeaf, v.HealthStatus())

	assert.Equal(t, 1, rt.Calls(models.LeafGate))
	assert.Zero(t, rt.Calls(models.ExtractorA))
	assert.Zero(t, rt.Calls(models.ExtractorB))
	assert.Zero(t, rt.Calls(models.Meta))
}

func TestRunGateBoundaryIsInclusive(t *testing.T) {
	tests := []struct {
		score float32
		want  VerdictKind
	}{
		{0.5, KindDiagnosis},
		{0.4999, KindNotLeaf},
		{1, KindDiagnosis},
		{0, KindNotLeaf},
		{float32nan(), KindNotLeaf},
		{float32(math.Inf(1)), KindDiagnosis},
		{float32(math.Inf(-1)), KindNotLeaf},
	}
	for _, tt := range tests {
		p := buildPipeline(t, scenarioRuntime(tt.score))
		v, err := p.Run(context.Background(), leafImage())
		require.NoError(t, err)
		assert.Equal(t, tt.want, v.Kind, "score %v", tt.score)
	}
}

func TestRunNaNGateScoreShortCircuits(t *testing.T) {
	rt := scenarioRuntime(float32nan())
	p := buildPipeline(t, rt)

	v, err := p.Run(context.Background(), leafImage())
	require.NoError(t, err)
	assert.Equal(t, KindNotLeaf, v.Kind)
	assert.Nil(t, v.GateScore)
	assert.Zero(t, v.Confidence)
	assert.Zero(t, rt.Calls(models.ExtractorA))
	assert.Zero(t, rt.Calls(models.ExtractorB))
	assert.Zero(t, rt.Calls(models.Meta))
}

func TestRunWithoutGate(t *testing.T) {
	rt := scenarioRuntime(0.1)
	p, err := NewBuilder().WithRuntime(rt).WithTable(threeClassTable(t)).WithGate(false).Build()
	require.NoError(t, err)

	v, err := p.Run(context.Background(), leafImage())
	require.NoError(t, err)
	assert.Equal(t, KindDiagnosis, v.Kind)
	assert.Nil(t, v.GateScore)
	assert.Zero(t, rt.Calls(models.LeafGate))
}

func TestRunIsIdempotent(t *testing.T) {
	p, err := NewBuilder().
		WithRuntime(engine.NewDemoRuntime(engine.DemoShapes{Classes: 3, WidthA: 4, WidthB: 6})).
		WithTable(threeClassTable(t)).
		Build()
	require.NoError(t, err)

	data := pngBytes(t, leafImage())
	first, err := p.RunBytes(context.Background(), data)
	require.NoError(t, err)
	second, err := p.RunBytes(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, *first, *second)
}

func TestRunStageFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		setup func(rt *engine.StaticRuntime)
		stage Stage
		kind  engine.ErrorKind
	}{
		{"gate error", func(rt *engine.StaticRuntime) { rt.SetError(models.LeafGate, boom) }, StageGate, engine.KindExecution},
		{"gate empty output", func(rt *engine.StaticRuntime) { rt.SetOutput(models.LeafGate) }, StageGate, engine.KindShapeMismatch},
		{"extractor a error", func(rt *engine.StaticRuntime) { rt.SetError(models.ExtractorA, boom) }, StageFuse, engine.KindExecution},
		{"extractor b error", func(rt *engine.StaticRuntime) { rt.SetError(models.ExtractorB, boom) }, StageFuse, engine.KindExecution},
		{"meta error", func(rt *engine.StaticRuntime) { rt.SetError(models.Meta, boom) }, StageClassify, engine.KindExecution},
		{"meta NaN score", func(rt *engine.StaticRuntime) {
			rt.SetOutput(models.Meta, float32nan(), 0.85, float32nan())
		}, StageClassify, engine.KindExecution},
		{"meta all NaN", func(rt *engine.StaticRuntime) {
			nan := float32nan()
			rt.SetOutput(models.Meta, nan, nan, nan)
		}, StageClassify, engine.KindExecution},
		{"meta infinite score", func(rt *engine.StaticRuntime) {
			rt.SetOutput(models.Meta, 0.1, float32(math.Inf(1)), 0.2)
		}, StageClassify, engine.KindExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := scenarioRuntime(0.9)
			tt.setup(rt)
			p := buildPipeline(t, rt)

			v, err := p.Run(context.Background(), leafImage())
			require.Error(t, err)
			require.NotNil(t, v)
			assert.Equal(t, KindFailed, v.Kind)
			assert.Equal(t, tt.stage, v.FailedStage)
			assert.Equal(t, StatusUnknown, v.HealthStatus())

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.stage, se.Stage)
			assert.True(t, engine.IsKind(err, tt.kind))
		})
	}
}

func TestRunMetaWidthMismatch(t *testing.T) {
	rt := scenarioRuntime(0.9).SetOutput(models.Meta, 0.5, 0.5)
	p := buildPipeline(t, rt)

	_, err := p.Run(context.Background(), leafImage())
	var sm *engine.ShapeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, int64(3), sm.Want)
	assert.Equal(t, int64(2), sm.Got)
}

func TestRunTimeout(t *testing.T) {
	rt := scenarioRuntime(0.9).SetDelay(models.ExtractorB, time.Second)
	p, err := NewBuilder().WithRuntime(rt).WithTable(threeClassTable(t)).WithTimeout(20 * time.Millisecond).Build()
	require.NoError(t, err)

	start := time.Now()
	v, err := p.Run(context.Background(), leafImage())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	require.Error(t, err)
	assert.True(t, engine.IsKind(err, engine.KindTimeout))
	assert.Equal(t, StageFuse, v.FailedStage)
	assert.Zero(t, rt.Calls(models.Meta))
}

func TestRunBytesRejectsGarbage(t *testing.T) {
	rt := scenarioRuntime(0.9)
	p := buildPipeline(t, rt)

	v, err := p.RunBytes(context.Background(), []byte("not an image"))
	assert.Nil(t, v)
	var ipe *utils.ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Zero(t, rt.TotalCalls())
}

func TestRunTracedRecordsTimings(t *testing.T) {
	p := buildPipeline(t, scenarioRuntime(0.9))

	res, err := p.RunTraced(context.Background(), leafImage())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RequestID)

	names := make([]string, 0, len(res.Timings))
	for _, tm := range res.Timings {
		names = append(names, tm.Name)
	}
	assert.Equal(t, []string{"preprocess", "gate", "fuse", "classify"}, names)

	other, err := p.RunTraced(context.Background(), leafImage())
	require.NoError(t, err)
	assert.NotEqual(t, res.RequestID, other.RequestID)
}

func TestRunPooledPreprocessing(t *testing.T) {
	opts := utils.DefaultPreprocessOptions()
	opts.Pooled = true
	rt := scenarioRuntime(0.9)
	p, err := NewBuilder().WithRuntime(rt).WithTable(threeClassTable(t)).WithPreprocess(opts).Build()
	require.NoError(t, err)

	for range 3 {
		v, err := p.Run(context.Background(), leafImage())
		require.NoError(t, err)
		assert.Equal(t, 1, v.ClassIndex)
	}
}

func TestArgMax(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
		want   int
	}{
		{"empty", nil, -1},
		{"single", []float32{0.3}, 0},
		{"clear winner", []float32{0.05, 0.85, 0.10}, 1},
		{"tie picks lowest", []float32{0.4, 0.4, 0.2}, 0},
		{"late tie", []float32{0.1, 0.45, 0.45}, 1},
		{"negative", []float32{-3, -1, -2}, 1},
		{"nan skipped", []float32{float32nan(), 0.2, 0.1}, 1},
		{"all nan", []float32{float32nan(), float32nan()}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ArgMax(tt.scores))
		})
	}
}

func TestConfidencePercent(t *testing.T) {
	assert.InDelta(t, 85.0, ConfidencePercent(0.85), 1e-9)
	assert.InDelta(t, 12.35, ConfidencePercent(0.12345), 1e-9)
	assert.InDelta(t, 100.0, ConfidencePercent(1), 1e-9)
	assert.Equal(t, 0.0, ConfidencePercent(0))
}

func TestFuseFeatures(t *testing.T) {
	a := []float32{0.1, 0.2, 0.7}
	b := []float32{0.4, 0.4}
	got := FuseFeatures(a, b)
	assert.Equal(t, FeatureVector{0.1, 0.2, 0.7, 0.4, 0.4}, got)

	got[0] = 9
	assert.InDelta(t, 0.1, a[0], 1e-9, "inputs must not alias the result")
	assert.Empty(t, FuseFeatures(nil, nil))
}
