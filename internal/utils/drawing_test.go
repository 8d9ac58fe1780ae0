package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBox(t *testing.T) {
	b := NewBox(30, 40, 10, 20)
	assert.Equal(t, Box{MinX: 10, MinY: 20, MaxX: 30, MaxY: 40}, b)
	assert.InDelta(t, 20.0, b.Width(), 1e-9)
	assert.InDelta(t, 20.0, b.Height(), 1e-9)
	assert.Equal(t, image.Pt(20, 30), b.Center())

	r := NewBox(-5, -5, 500, 12.2).ToRect(image.Rect(0, 0, 100, 100))
	assert.Equal(t, image.Rect(0, 0, 100, 13), r)
}

func TestDrawRect(t *testing.T) {
	dst := ToRGBA(solidImage(20, 20, color.White))
	red := color.RGBA{R: 255, A: 255}
	DrawRect(dst, image.Rect(5, 5, 15, 15), red, 1)

	assert.Equal(t, red, dst.RGBAAt(5, 5))
	assert.Equal(t, red, dst.RGBAAt(14, 10))
	assert.Equal(t, red, dst.RGBAAt(10, 14))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, dst.RGBAAt(10, 10))

	// fully outside is a no-op
	DrawRect(dst, image.Rect(50, 50, 60, 60), red, 2)
}

func TestDrawLine(t *testing.T) {
	dst := ToRGBA(solidImage(10, 10, color.White))
	blue := color.RGBA{B: 255, A: 255}
	DrawLine(dst, image.Pt(0, 0), image.Pt(9, 9), blue, 1)
	for i := range 10 {
		assert.Equal(t, blue, dst.RGBAAt(i, i))
	}
	// clipped at the border
	DrawLine(dst, image.Pt(-5, 2), image.Pt(20, 2), blue, 3)
	assert.Equal(t, blue, dst.RGBAAt(0, 2))
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#ff0000", color.RGBA{R: 255, A: 255}, true},
		{"00FF7f", color.RGBA{G: 255, B: 127, A: 255}, true},
		{"#fff", color.RGBA{}, false},
		{"zz0000", color.RGBA{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseHexColor(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
