package utils

import (
	"errors"
	"fmt"
	"image"

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

// Unwrap returns the underlying error.
func (e *ImageProcessingError) Unwrap() error { return e.Err }

// PreprocessOptions control how a label photo is prepared for detection.
type PreprocessOptions struct {
	// MaxDimension bounds the longer side; larger images are scaled down.
	MaxDimension int
	// MinDimension rejects images too small to read.
	MinDimension int
	// Contrast in percent, -100..100. Zero leaves the image unchanged.
	Contrast float64
	// Sharpen is the Gaussian sigma for unsharp masking. Zero disables it.
	Sharpen float64
	// Grayscale drops colour information.
	Grayscale bool
}

// DefaultPreprocessOptions returns settings suited to phone photos.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		MaxDimension: 2048,
		MinDimension: 32,
		Contrast:     10,
		Sharpen:      0.5,
	}
}

// Preprocess scales, enhances and optionally desaturates img. Images are
// never scaled up.
func Preprocess(img image.Image, opts PreprocessOptions) (image.Image, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "preprocess", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	if opts.MinDimension > 0 && (b.Dx() < opts.MinDimension || b.Dy() < opts.MinDimension) {
		return nil, &ImageProcessingError{
			Operation: "preprocess",
			Err:       fmt.Errorf("image dimensions %dx%d below minimum %d", b.Dx(), b.Dy(), opts.MinDimension),
		}
	}

	out := img
	if opts.MaxDimension > 0 && (b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension) {
		out = imaging.Fit(out, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}
	if opts.Grayscale {
		out = imaging.Grayscale(out)
	}
	if opts.Contrast != 0 {
		out = imaging.AdjustContrast(out, opts.Contrast)
	}
	if opts.Sharpen > 0 {
		out = imaging.Sharpen(out, opts.Sharpen)
	}
	return out, nil
}

// ImageQuality contains basic image properties.
type ImageQuality struct {
	Width       int
	Height      int
	AspectRatio float64
	IsGrayscale bool
	HasAlpha    bool
}

// AssessImageQuality analyzes basic image properties.
func AssessImageQuality(img image.Image) ImageQuality {
	if img == nil {
		return ImageQuality{}
	}
	bounds := img.Bounds()
	isGrayscale, hasAlpha := analyzePixelProperties(img, bounds)
	return ImageQuality{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		AspectRatio: float64(bounds.Dx()) / float64(bounds.Dy()),
		IsGrayscale: isGrayscale,
		HasAlpha:    hasAlpha,
	}
}

func analyzePixelProperties(img image.Image, bounds image.Rectangle) (bool, bool) {
	isGrayscale := true
	hasAlpha := false
	for y := bounds.Min.Y; y < bounds.Max.Y && (isGrayscale || !hasAlpha); y++ {
		for x := bounds.Min.X; x < bounds.Max.X && (isGrayscale || !hasAlpha); x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 65535 {
				hasAlpha = true
			}
			if r != g || g != b {
				isGrayscale = false
			}
		}
	}
	return isGrayscale, hasAlpha
}
