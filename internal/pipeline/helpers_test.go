package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/stretchr/testify/require"
)

func threeClassTable(t *testing.T) *disease.Table {
	t.Helper()
	table, err := disease.NewTable([]disease.Record{
		{Name: "Brown Spot", Severity: disease.SeverityMedium, Description: "brown lesions", Treatment: "fungicide"},
		{Name: "Leaf Blast", Severity: disease.SeverityHigh, Description: "grey lesions", Treatment: "fungicide"},
		{Name: "Healthy", Severity: disease.SeverityNone, Description: "healthy", Treatment: "none"},
	})
	require.NoError(t, err)
	return table
}

// scenarioRuntime returns the canned outputs of the reference leaf scenario.
func scenarioRuntime(gate float32) *engine.StaticRuntime {
	return engine.NewStaticRuntime().
		SetOutput(models.LeafGate, gate).
		SetOutput(models.ExtractorA, 0.1, 0.2, 0.7).
		SetOutput(models.ExtractorB, 0.4, 0.4).
		SetOutput(models.Meta, 0.05, 0.85, 0.10)
}

func buildPipeline(t *testing.T, rt engine.Runtime) *Pipeline {
	t.Helper()
	p, err := NewBuilder().WithRuntime(rt).WithTable(threeClassTable(t)).Build()
	require.NoError(t, err)
	return p
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func leafImage() image.Image {
	return solidImage(32, 24, color.RGBA{40, 160, 50, 255})
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func float32nan() float32 {
	var zero float32
	return zero / zero
}
