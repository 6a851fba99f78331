package batch

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/oryza/internal/disease"
	"github.com/MeKo-Tech/oryza/internal/engine"
	"github.com/MeKo-Tech/oryza/internal/models"
	"github.com/MeKo-Tech/oryza/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{30, 150, 40, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	table, err := disease.NewTable([]disease.Record{
		{Name: "Brown Spot", Severity: disease.SeverityMedium, Description: "d", Treatment: "mancozeb"},
		{Name: "Leaf Blast", Severity: disease.SeverityHigh, Description: "d", Treatment: "tricyclazole"},
		{Name: "Healthy", Severity: disease.SeverityNone, Description: "d", Treatment: "none"},
	})
	require.NoError(t, err)
	rt := engine.NewStaticRuntime().
		SetOutput(models.LeafGate, 0.9).
		SetOutput(models.ExtractorA, 0.1, 0.2).
		SetOutput(models.ExtractorB, 0.3).
		SetOutput(models.Meta, 0.05, 0.85, 0.10)
	p, err := pipeline.NewBuilder().WithRuntime(rt).WithTable(table).Build()
	require.NoError(t, err)
	return p
}
