package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"label.jpg", true},
		{"label.JPEG", true},
		{"label.png", true},
		{"label.webp", true},
		{"label.bmp", true},
		{"label.gif", false},
		{"label", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupportedImage(tt.path))
		})
	}
}

func TestDecodeImage(t *testing.T) {
	t.Run("png", func(t *testing.T) {
		img, meta, err := DecodeImage(encodePNG(t, solidImage(40, 20, color.White)))
		require.NoError(t, err)
		assert.Equal(t, 40, img.Bounds().Dx())
		assert.Equal(t, "png", meta.Format)
		assert.Equal(t, 40, meta.Width)
		assert.Equal(t, 20, meta.Height)
		assert.InDelta(t, 2.0, meta.AspectRatio, 1e-9)
	})

	t.Run("jpeg", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, solidImage(16, 16, color.Black), nil))
		_, meta, err := DecodeImage(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "jpeg", meta.Format)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := DecodeImage(nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedImage)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := DecodeImage([]byte("definitely not an image"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedImage)
		var ipe *ImageProcessingError
		require.ErrorAs(t, err, &ipe)
		assert.Equal(t, "decode", ipe.Operation)
	})
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "label.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, solidImage(8, 8, color.White)), 0o600))
	_, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, path, meta.Path)

	_, _, err = LoadImage("")
	require.Error(t, err)

	_, _, err = LoadImage(filepath.Join(dir, "label.gif"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, _, err = LoadImage(filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
