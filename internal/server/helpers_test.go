package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// labelTokens is a two-column Finnish label: per 100 g and per portion.
func labelTokens() []nutrition.TextToken {
	row := func(y float64, label, per100, portion string) []nutrition.TextToken {
		return []nutrition.TextToken{
			{Text: label, Confidence: 0.9, X: 10, Y: y},
			{Text: per100, Confidence: 0.9, X: 200, Y: y},
			{Text: portion, Confidence: 0.9, X: 300, Y: y},
		}
	}
	tokens := row(0, "Ravintosisältö", "100 g", "Annos")
	tokens = append(tokens, row(40, "Energia", "1550 kJ / 370 kcal", "465 kJ / 111 kcal")...)
	tokens = append(tokens, row(80, "Proteiini", "12 g", "3,6 g")...)
	return tokens
}

const labelTokensJSON = `{"tokens": [
	{"text": "Ravintosisältö", "confidence": 0.9, "x": 10, "y": 0},
	{"text": "100 g", "confidence": 0.9, "x": 200, "y": 0},
	{"text": "Annos", "confidence": 0.9, "x": 300, "y": 0},
	{"text": "Energia", "confidence": 0.9, "x": 10, "y": 40},
	{"text": "1550 kJ / 370 kcal", "confidence": 0.9, "x": 200, "y": 40},
	{"text": "465 kJ / 111 kcal", "confidence": 0.9, "x": 300, "y": 40},
	{"text": "Proteiini", "confidence": 0.9, "x": 10, "y": 80},
	{"text": "12 g", "confidence": 0.9, "x": 200, "y": 80},
	{"text": "3,6 g", "confidence": 0.9, "x": 300, "y": 80}
]}`

func testConfig() Config {
	return Config{CORSOrigin: "*", MaxUploadMB: 5, TimeoutSec: 5, OverlayEnabled: true}
}

// newTestServer builds a server whose image source always reports
// labelTokens. A nil src leaves the pipeline without an image source.
func newTestServer(t *testing.T, cfg Config, src nutrition.TokenSource) *Server {
	t.Helper()
	b := pipeline.NewBuilder().WithLogger(quietLogger()).WithoutPreprocess()
	if src != nil {
		b = b.WithTokenSource(src, "static")
	}
	pl, err := b.Build()
	require.NoError(t, err)
	s, err := NewServer(cfg, pl, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func staticLabel() nutrition.TokenSource { return source.Static(labelTokens()) }

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255}) //nolint:gosec // G115: bounded by modulo
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

// newMultipartRequest builds a POST /scan/image upload.
func newMultipartRequest(t *testing.T, field string, data []byte, extra map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		part, err := mw.CreateFormFile(field, "label.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range extra {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/scan/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}
