package pipeline

import (
	"image"
	"image/color"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// OverlayStyle controls overlay colours.
type OverlayStyle struct {
	LabelColor color.Color
	ValueColor color.Color
	LinkColor  color.Color
	Thickness  int
}

// DefaultOverlayStyle draws labels in blue, values in red and links in green.
func DefaultOverlayStyle() OverlayStyle {
	return OverlayStyle{
		LabelColor: color.RGBA{R: 30, G: 90, B: 230, A: 255},
		ValueColor: color.RGBA{R: 230, G: 40, B: 40, A: 255},
		LinkColor:  color.RGBA{R: 20, G: 170, B: 60, A: 255},
		Thickness:  2,
	}
}

// OverlayStyleFromHex overrides the default colours with the given
// #RRGGBB values. Empty or malformed values keep the default.
func OverlayStyleFromHex(label, value, link string) OverlayStyle {
	style := DefaultOverlayStyle()
	if c, ok := utils.ParseHexColor(label); ok {
		style.LabelColor = c
	}
	if c, ok := utils.ParseHexColor(value); ok {
		style.ValueColor = c
	}
	if c, ok := utils.ParseHexColor(link); ok {
		style.LinkColor = c
	}
	return style
}

// Token boxes without a reported size are estimated from the text length.
const (
	approxCharWidth  = 9.0
	approxLineHeight = 16.0
)

// RenderOverlay returns an RGBA copy of img with the label and value token of
// every selected field boxed and linked. A nil analysis yields a plain copy.
func RenderOverlay(img image.Image, a *nutrition.Analysis, style OverlayStyle) *image.RGBA {
	if img == nil {
		return nil
	}
	dst := utils.ToRGBA(img)
	if a == nil {
		return dst
	}
	if style.Thickness < 1 {
		style.Thickness = 1
	}
	bounds := dst.Bounds()
	for _, ft := range a.Selection.Order {
		v, ok := a.Selection.Values[ft]
		if !ok {
			continue
		}
		label, okLabel := tokenBox(a.Tokens, v.LabelIndex())
		value, okValue := tokenBox(a.Tokens, v.TokenIndex())
		if okLabel {
			utils.DrawRect(dst, label.ToRect(bounds), style.LabelColor, style.Thickness)
		}
		if okValue {
			utils.DrawRect(dst, value.ToRect(bounds), style.ValueColor, style.Thickness)
		}
		if okLabel && okValue && v.LabelIndex() != v.TokenIndex() {
			utils.DrawLine(dst, label.Center(), value.Center(), style.LinkColor, 1)
		}
	}
	return dst
}

func tokenBox(tokens []nutrition.TextToken, i int) (utils.Box, bool) {
	if i < 0 || i >= len(tokens) {
		return utils.Box{}, false
	}
	t := tokens[i]
	w, h := t.Width, t.Height
	if w <= 0 {
		w = approxCharWidth * float64(len([]rune(t.Text)))
	}
	if h <= 0 {
		h = approxLineHeight
	}
	return utils.NewBox(t.X, t.Y, t.X+w, t.Y+h), true
}
