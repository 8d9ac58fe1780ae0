package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/MeKo-Tech/labelscan/internal/cache"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/MeKo-Tech/labelscan/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

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

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type failingSource struct{ err error }

func (f failingSource) DetectTokens(context.Context, image.Image) ([]nutrition.TextToken, error) {
	return nil, f.err
}

type fieldSource struct {
	fields map[string]float64
	err    error
	closed bool
}

func (f *fieldSource) ExtractFields(ctx context.Context, _ image.Image) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fields, f.err
}

func (f *fieldSource) Close() error {
	f.closed = true
	return nil
}

func TestBuilder_Defaults(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)
	assert.NotNil(t, p.Engine)
	assert.Equal(t, "none", p.Config().SourceName)
	assert.False(t, p.HasImageSource())
	assert.True(t, p.Config().EnablePreprocess)
	assert.Positive(t, p.Config().Parallel.MaxWorkers)

	info := p.Info()
	assert.Equal(t, "none", info["source"])
	assert.Equal(t, 8, info["fields"])
	require.NoError(t, p.Close())
}

func TestBuilder_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts utils.PreprocessOptions
	}{
		{"negative max", utils.PreprocessOptions{MaxDimension: -1}},
		{"min above max", utils.PreprocessOptions{MaxDimension: 100, MinDimension: 200}},
		{"contrast", utils.PreprocessOptions{Contrast: 150}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder().WithPreprocess(tt.opts).Build()
			assert.Error(t, err)
		})
	}

	// disabled preprocessing skips option checks
	_, err := NewBuilder().WithPreprocess(utils.PreprocessOptions{Contrast: 150}).WithoutPreprocess().Build()
	assert.NoError(t, err)
}

func TestRun_NoSource(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)
	_, err = p.Run(context.Background(), pngBytes(t, 64, 64))
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestRun_TokenSource(t *testing.T) {
	mem := cache.NewMemory(4)
	p, err := NewBuilder().
		WithLogger(quietLogger()).
		WithTokenSource(source.Static(labelTokens()), "static").
		WithCache(mem).
		Build()
	require.NoError(t, err)

	data := pngBytes(t, 400, 200)
	out, err := p.Run(context.Background(), data)
	require.NoError(t, err)
	require.True(t, out.Result.Success, out.Result.Error)
	assert.False(t, out.Cached)
	assert.NotNil(t, out.Analysis)
	assert.Equal(t, "static", out.Source)
	assert.Equal(t, "png", out.Metadata.Format)
	assert.InDelta(t, 370.0, out.Result.NutritionData["calories"], 1e-9)
	assert.InDelta(t, 12.0, out.Result.NutritionData["proteins"], 1e-9)
	assert.Equal(t, 1, mem.Len())

	again, err := p.Run(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Nil(t, again.Analysis)
	assert.Equal(t, out.Result.NutritionData, again.Result.NutritionData)

	assert.Equal(t, int64(1), p.Stats().Scans.Load())
	assert.Equal(t, int64(1), p.Stats().CacheHits.Load())
}

func TestRun_UnsupportedImage(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).WithTokenSource(source.Static(labelTokens()), "").Build()
	require.NoError(t, err)
	assert.Equal(t, "ocr", p.Config().SourceName)

	_, err = p.ProcessImage(context.Background(), []byte("not an image"))
	assert.ErrorIs(t, err, utils.ErrUnsupportedImage)
}

func TestRun_SourceFailureBecomesResult(t *testing.T) {
	mem := cache.NewMemory(4)
	p, err := NewBuilder().
		WithLogger(quietLogger()).
		WithTokenSource(failingSource{err: errors.New("quota exceeded")}, "vision").
		WithCache(mem).
		Build()
	require.NoError(t, err)

	res, err := p.ProcessImage(context.Background(), pngBytes(t, 64, 64))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "quota exceeded")
	assert.Equal(t, 0, mem.Len())
	assert.Equal(t, int64(1), p.Stats().Failures.Load())
}

func TestRun_EmptyTokens(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).WithTokenSource(source.Static(nil), "").Build()
	require.NoError(t, err)
	res, err := p.ProcessImage(context.Background(), pngBytes(t, 64, 64))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, nutrition.NoTextMessage, res.Error)
}

func TestRun_StructuredSource(t *testing.T) {
	src := &fieldSource{fields: map[string]float64{"calories": 250, "fats": 10, "saturated_fats": 20}}
	p, err := NewBuilder().
		WithLogger(quietLogger()).
		WithTokenSource(source.Static(labelTokens()), "static").
		WithStructuredSource(src, "anthropic").
		Build()
	require.NoError(t, err)

	out, err := p.Run(context.Background(), pngBytes(t, 64, 64))
	require.NoError(t, err)
	require.True(t, out.Result.Success)
	assert.Equal(t, "anthropic", out.Source)
	assert.Equal(t, "vlm", out.Result.DebugInfo.Source)
	assert.InDelta(t, 9.5, out.Result.NutritionData["saturated_fats"], 1e-9)
	assert.Nil(t, out.Analysis)

	src.err = errors.New("model overloaded")
	out, err = p.Run(context.Background(), pngBytes(t, 64, 64))
	require.NoError(t, err)
	assert.False(t, out.Result.Success)

	require.NoError(t, p.Close())
	assert.True(t, src.closed)
}

func TestRun_CanceledContext(t *testing.T) {
	src := &fieldSource{fields: map[string]float64{"calories": 250}}
	p, err := NewBuilder().WithLogger(quietLogger()).WithStructuredSource(src, "").Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, pngBytes(t, 64, 64))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = p.ProcessTokens(ctx, labelTokens())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_TooSmallForPreprocess(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).WithTokenSource(source.Static(labelTokens()), "").Build()
	require.NoError(t, err)
	_, err = p.ProcessImage(context.Background(), pngBytes(t, 8, 8))
	var ipe *utils.ImageProcessingError
	assert.ErrorAs(t, err, &ipe)

	p, err = NewBuilder().WithLogger(quietLogger()).WithTokenSource(source.Static(labelTokens()), "").WithoutPreprocess().Build()
	require.NoError(t, err)
	res, err := p.ProcessImage(context.Background(), pngBytes(t, 8, 8))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestProcessTokens(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)

	res, a, err := p.AnalyzeTokens(context.Background(), labelTokens())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, a)
	assert.Contains(t, a.Selection.Order, nutrition.FieldCalories)

	res, err = p.ProcessTokens(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, nutrition.NoTextMessage, res.Error)
}
