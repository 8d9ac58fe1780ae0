package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// LabelImageConfig controls RenderLabel.
type LabelImageConfig struct {
	Width      int
	Height     int
	Margin     int
	Background color.Color
	Foreground color.Color
	Face       font.Face
	// Rotation in degrees, counter-clockwise.
	Rotation float64
}

// DefaultLabelImageConfig renders black 7x13 text on white.
func DefaultLabelImageConfig() LabelImageConfig {
	return LabelImageConfig{
		Width:      480,
		Height:     240,
		Margin:     8,
		Background: color.White,
		Foreground: color.Black,
		Face:       basicfont.Face7x13,
	}
}

// RenderLabel draws every token's text with its top-left corner at the
// token position offset by the margin.
func RenderLabel(tokens []nutrition.TextToken, cfg LabelImageConfig) *image.RGBA {
	if cfg.Face == nil {
		cfg.Face = basicfont.Face7x13
	}
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: img, Src: &image.Uniform{cfg.Foreground}, Face: cfg.Face}
	ascent := cfg.Face.Metrics().Ascent.Ceil()
	for _, tok := range tokens {
		x := cfg.Margin + int(math.Round(tok.X))
		y := cfg.Margin + int(math.Round(tok.Y)) + ascent
		drawer.Dot = fixed.P(x, y)
		drawer.DrawString(tok.Text)
	}

	if cfg.Rotation != 0 {
		rotated := imaging.Rotate(img, cfg.Rotation, cfg.Background)
		rgba := image.NewRGBA(rotated.Bounds())
		draw.Draw(rgba, rgba.Bounds(), rotated, rotated.Bounds().Min, draw.Src)
		return rgba
	}
	return img
}

// TextWidth returns the rendered width of s in the default face.
func TextWidth(s string) int {
	return font.MeasureString(basicfont.Face7x13, s).Ceil()
}

// CreateTestImage creates a solid image.
func CreateTestImage(width, height int, background color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	return img
}

// EncodePNG encodes img as PNG.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG at quality 90.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// SaveImage writes img as PNG, or JPEG for .jpg/.jpeg paths.
func SaveImage(t *testing.T, img image.Image, path string) string {
	t.Helper()
	var data []byte
	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		data = EncodeJPEG(t, img)
	default:
		data = EncodePNG(t, img)
	}
	return WriteFile(t, path, data)
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()
	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")
	return img
}

// CompareImages reports whether the mean per-pixel difference of two
// same-sized images is within tolerance (0..1).
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	b := img1.Bounds()
	if b != img2.Bounds() {
		return false
	}
	if b.Empty() {
		return true
	}

	var total float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()
			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)
			total += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
		}
	}
	avg := total / float64(b.Dx()*b.Dy())
	return avg/math.Sqrt(4*65535*65535) <= tolerance
}

// InkPixels counts pixels darker than half intensity inside r.
func InkPixels(img image.Image, r image.Rectangle) int {
	r = r.Intersect(img.Bounds())
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < 128 {
				n++
			}
		}
	}
	return n
}
