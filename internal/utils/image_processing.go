package utils

import (
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/oryza/internal/mempool"
	"github.com/MeKo-Tech/oryza/internal/onnx"
	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error {
	return e.Err
}

// DefaultInputSize is the square side length the cascade models were trained on.
const DefaultInputSize = 224

// Resampling filter names.
const (
	FilterBicubic  = "bicubic"
	FilterBilinear = "bilinear"
	FilterNearest  = "nearest"
	FilterLanczos  = "lanczos"
)

// ParseFilter maps a filter name to an imaging filter.
// Bicubic (Catmull-Rom) matches the resampler the models were trained with.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case FilterBicubic, "":
		return imaging.CatmullRom, nil
	case FilterBilinear:
		return imaging.Linear, nil
	case FilterNearest:
		return imaging.NearestNeighbor, nil
	case FilterLanczos:
		return imaging.Lanczos, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
	}
}

// PreprocessOptions fixes how images become model input.
type PreprocessOptions struct {
	Size   int
	Filter string
	Layout onnx.Layout
	Pooled bool
}

// DefaultPreprocessOptions returns 224x224 bicubic NHWC preprocessing.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		Size:   DefaultInputSize,
		Filter: FilterBicubic,
		Layout: onnx.LayoutNHWC,
	}
}

// Validate checks the options.
func (o PreprocessOptions) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("preprocess size must be positive, got %d", o.Size)
	}
	if _, err := ParseFilter(o.Filter); err != nil {
		return err
	}
	if _, err := onnx.ParseLayout(string(o.Layout)); err != nil {
		return err
	}
	return nil
}

// TensorShape returns the shape Preprocess produces.
func (o PreprocessOptions) TensorShape() []int64 {
	s := int64(o.Size)
	if o.Layout == onnx.LayoutNCHW {
		return []int64{1, 3, s, s}
	}
	return []int64{1, s, s, 3}
}

// Preprocess converts img to RGB, resizes it to a Size x Size square, scales
// pixels to [0,1] and adds a batch dimension. Options must be valid; an
// unknown filter falls back to bicubic.
func Preprocess(img image.Image, opts PreprocessOptions) onnx.Tensor {
	t, _ := preprocess(img, opts, false)
	return t
}

// PreprocessPooled is Preprocess with the tensor buffer drawn from mempool.
// Call release once no model call can still read the tensor.
func PreprocessPooled(img image.Image, opts PreprocessOptions) (onnx.Tensor, func()) {
	return preprocess(img, opts, true)
}

func preprocess(img image.Image, opts PreprocessOptions, pooled bool) (onnx.Tensor, func()) {
	filter, err := ParseFilter(opts.Filter)
	if err != nil {
		filter = imaging.CatmullRom
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultInputSize
	}

	resized := imaging.Resize(opaque(img), size, size, filter)

	n := 3 * size * size
	var buf []float32
	release := func() {}
	if pooled {
		buf = mempool.GetFloat32(n)
		release = func() { mempool.PutFloat32(buf) }
	} else {
		buf = make([]float32, n)
	}
	fillNormalized(resized, opts.Layout, buf)

	t, _ := onnx.NewImageTensor(buf, opts.Layout, 3, size, size)
	return t, release
}

// opaque returns img with every alpha set to 255 and the stored colour kept,
// so the resampler does not weight colour by alpha. Fully transparent pixels
// of premultiplied sources have no stored colour and stay black.
func opaque(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// fillNormalized writes the RGB channels of img scaled by 1/255 into buf.
func fillNormalized(img *image.NRGBA, layout onnx.Layout, buf []float32) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := w * h
	for y := range h {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := range w {
			r := float32(row[x*4]) / 255.0
			g := float32(row[x*4+1]) / 255.0
			b := float32(row[x*4+2]) / 255.0
			if layout == onnx.LayoutNCHW {
				idx := y*w + x
				buf[idx] = r
				buf[plane+idx] = g
				buf[2*plane+idx] = b
				continue
			}
			idx := (y*w + x) * 3
			buf[idx] = r
			buf[idx+1] = g
			buf[idx+2] = b
		}
	}
}
