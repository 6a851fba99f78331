package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			val := uint8((x*7 + y*3) % 256)
			img.Set(x, y, color.RGBA{val, 255 - val, val / 2, 255})
		}
	}
	return img
}

// TestPreprocess_FixedShape verifies any input resolution yields the model input shape.
func TestPreprocess_FixedShape(t *testing.T) {
	properties := gopter.NewProperties(nil)
	opts := DefaultPreprocessOptions()
	want := opts.TensorShape()

	properties.Property("tensor shape is independent of input size", prop.ForAll(
		func(width, height int) bool {
			ten := Preprocess(genImage(width, height), opts)
			if len(ten.Shape) != len(want) {
				return false
			}
			for i := range want {
				if ten.Shape[i] != want[i] {
					return false
				}
			}
			return len(ten.Data) == 224*224*3
		},
		gen.IntRange(1, 400),
		gen.IntRange(1, 400),
	))

	properties.TestingRun(t)
}

// TestPreprocess_UnitRange verifies all values are scaled into [0, 1].
func TestPreprocess_UnitRange(t *testing.T) {
	properties := gopter.NewProperties(nil)
	opts := DefaultPreprocessOptions()
	opts.Size = 16

	properties.Property("values lie in [0,1]", prop.ForAll(
		func(width, height int) bool {
			ten := Preprocess(genImage(width, height), opts)
			for _, v := range ten.Data {
				if v < 0 || v > 1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 128),
		gen.IntRange(1, 128),
	))

	properties.TestingRun(t)
}
