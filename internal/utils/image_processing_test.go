package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"", false},
		{"bicubic", false},
		{"Bilinear", false},
		{"nearest", false},
		{"lanczos", false},
		{"box", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreprocessOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultPreprocessOptions().Validate())

	bad := DefaultPreprocessOptions()
	bad.Size = 0
	require.Error(t, bad.Validate())

	bad = DefaultPreprocessOptions()
	bad.Filter = "sinc"
	require.Error(t, bad.Validate())

	bad = DefaultPreprocessOptions()
	bad.Layout = "chw"
	require.Error(t, bad.Validate())
}

func TestPreprocessShapeAndRange(t *testing.T) {
	img := imaging.New(640, 480, color.NRGBA{R: 255, G: 128, B: 0, A: 255})

	ten := Preprocess(img, DefaultPreprocessOptions())
	assert.Equal(t, []int64{1, 224, 224, 3}, ten.Shape)
	require.Len(t, ten.Data, 224*224*3)
	require.NoError(t, onnx.Verify(ten))

	assert.InDelta(t, 1.0, ten.Data[0], 1e-6)
	assert.InDelta(t, 128.0/255.0, ten.Data[1], 1e-6)
	assert.InDelta(t, 0.0, ten.Data[2], 1e-6)

	for _, v := range ten.Data {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestPreprocessNCHW(t *testing.T) {
	img := imaging.New(32, 16, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	opts := DefaultPreprocessOptions()
	opts.Layout = onnx.LayoutNCHW
	opts.Size = 8

	ten := Preprocess(img, opts)
	assert.Equal(t, []int64{1, 3, 8, 8}, ten.Shape)
	assert.Equal(t, opts.TensorShape(), ten.Shape)

	plane := 64
	assert.InDelta(t, 1.0, ten.Data[0], 1e-6)
	assert.InDelta(t, 0.0, ten.Data[plane], 1e-6)
	assert.InDelta(t, 0.2, ten.Data[2*plane], 1e-6)
}

func TestPreprocessDropsAlphaWithoutCompositing(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 10})
		}
	}
	opts := DefaultPreprocessOptions()
	opts.Size = 4
	opts.Filter = FilterNearest

	ten := Preprocess(img, opts)
	assert.InDelta(t, 200.0/255.0, ten.Data[0], 1e-6)
	assert.InDelta(t, 100.0/255.0, ten.Data[1], 1e-6)
	assert.InDelta(t, 50.0/255.0, ten.Data[2], 1e-6)
}

func TestPreprocessKeepsColourOfTransparentPixelsWhenResizing(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
		}
	}
	img.SetNRGBA(63, 63, color.NRGBA{R: 40, G: 160, B: 50, A: 128})
	opts := DefaultPreprocessOptions()
	opts.Size = 8

	ten := Preprocess(img, opts)
	require.Len(t, ten.Data, 3*8*8)
	assert.InDelta(t, 1.0, ten.Data[0], 1e-6)
	assert.InDelta(t, 1.0, ten.Data[1], 1e-6)
	assert.InDelta(t, 1.0, ten.Data[2], 1e-6)

	pooled, release := PreprocessPooled(img, opts)
	defer release()
	assert.Equal(t, ten.Data, pooled.Data)
	assert.Equal(t, uint8(0), img.Pix[3], "source image is not modified")
}

func TestPreprocessGrayscaleExpandsChannels(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 51
	}
	ten := Preprocess(img, DefaultPreprocessOptions())
	assert.InDelta(t, ten.Data[0], ten.Data[1], 1e-6)
	assert.InDelta(t, ten.Data[1], ten.Data[2], 1e-6)
	assert.InDelta(t, 0.2, ten.Data[0], 1e-3)
}

func TestPreprocessIsDeterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := range 200 {
		for x := range 300 {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), uint8(x ^ y), 255})
		}
	}
	a := Preprocess(img, DefaultPreprocessOptions())
	b := Preprocess(img, DefaultPreprocessOptions())
	assert.Equal(t, a.Data, b.Data)
}

func TestPreprocessPooledMatchesUnpooled(t *testing.T) {
	img := imaging.New(50, 70, color.NRGBA{R: 10, G: 200, B: 30, A: 255})
	opts := DefaultPreprocessOptions()

	plain := Preprocess(img, opts)
	pooled, release := PreprocessPooled(img, opts)
	defer release()

	assert.Equal(t, plain.Shape, pooled.Shape)
	assert.Equal(t, plain.Data, pooled.Data)
}

func TestImageProcessingErrorUnwrap(t *testing.T) {
	inner := assert.AnError
	err := &ImageProcessingError{Operation: "decode", Err: inner}
	assert.Contains(t, err.Error(), "decode")
	require.ErrorIs(t, err, inner)
}
