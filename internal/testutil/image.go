package testutil

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// Leaf and background colours used by the fixtures.
var (
	LeafGreen   = color.NRGBA{R: 46, G: 139, B: 56, A: 255}
	LesionBrown = color.NRGBA{R: 139, G: 90, B: 43, A: 255}
	BrickRed    = color.NRGBA{R: 178, G: 34, B: 34, A: 255}
)

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

// LeafImage draws a green leaf with a brown lesion in the middle.
func LeafImage(w, h int) *image.NRGBA {
	leaf := imaging.New(w, h, LeafGreen)
	lesion := imaging.New(max(w/4, 1), max(h/4, 1), LesionBrown)
	return imaging.Paste(leaf, lesion, image.Pt(w/2-lesion.Bounds().Dx()/2, h/2-lesion.Bounds().Dy()/2))
}

// EncodeImage encodes img in the given imaging format.
func EncodeImage(t *testing.T, img image.Image, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

// SaveImage writes img to dir/name, inferring the format from the extension.
func SaveImage(t *testing.T, img image.Image, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}
