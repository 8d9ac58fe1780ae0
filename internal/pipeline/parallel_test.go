package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	progress []int
	errors   int
	complete bool
}

func (r *recordingProgress) OnStart(total int) { r.started = total }

func (r *recordingProgress) OnProgress(current, _ int) {
	r.mu.Lock()
	r.progress = append(r.progress, current)
	r.mu.Unlock()
}

func (r *recordingProgress) OnComplete() { r.complete = true }

func (r *recordingProgress) OnError(int, error) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
}

func TestProcessJobs_Ordered(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).WithWorkers(3).Build()
	require.NoError(t, err)

	jobs := make([]Job, 10)
	for i := range jobs {
		tokens := labelTokens()
		tokens[4].Text = fmt.Sprintf("%d kcal", 100+i)
		jobs[i] = Job{Name: fmt.Sprintf("job-%d", i), Tokens: tokens}
	}

	progress := &recordingProgress{}
	results, err := p.ProcessJobs(context.Background(), jobs, ParallelConfig{ProgressCallback: progress})
	require.NoError(t, err)
	require.Len(t, results, len(jobs))
	for i, r := range results {
		assert.Equal(t, jobs[i].Name, r.Name)
		require.True(t, r.Result.Success)
		assert.InDelta(t, float64(100+i), r.Result.NutritionData["calories"], 1e-9)
	}
	assert.Equal(t, 10, progress.started)
	assert.Len(t, progress.progress, 10)
	assert.Equal(t, 10, progress.progress[9])
	assert.True(t, progress.complete)
}

func TestProcessJobs_Errors(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)

	_, err = p.ProcessJobs(context.Background(), nil, ParallelConfig{})
	require.Error(t, err)

	var handled []int
	jobs := []Job{
		{Name: "ok", Tokens: labelTokens()},
		{Name: "empty"},
		{Name: "image", Image: []byte("png?")},
	}
	progress := &recordingProgress{}
	results, err := p.ProcessJobs(context.Background(), jobs, ParallelConfig{
		MaxWorkers:       2,
		ProgressCallback: progress,
		ErrorHandler:     func(i int, _ Job, _ error) { handled = append(handled, i) },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 1 (empty)")
	assert.True(t, errors.Is(results[1].Err, errEmptyJob))
	assert.ErrorIs(t, results[2].Err, ErrNoSource)
	assert.True(t, results[0].Result.Success)
	assert.Equal(t, []int{1, 2}, handled)
	assert.Equal(t, 2, progress.errors)

	stats := CalculateParallelStats(results, time.Second, 2)
	assert.Equal(t, 3, stats.TotalJobs)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 2, stats.Errored)
	assert.InDelta(t, 1.0, stats.ThroughputPerSec, 1e-9)
}

func TestProcessJobs_Images(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).WithTokenSource(source.Static(labelTokens()), "").Build()
	require.NoError(t, err)

	jobs := []Job{{Name: "a", Image: pngBytes(t, 64, 64)}, {Name: "b", Tokens: []nutrition.TextToken{}}}
	results, err := p.ProcessJobs(context.Background(), jobs, ParallelConfig{})
	require.NoError(t, err)
	assert.True(t, results[0].Result.Success)
	assert.False(t, results[1].Result.Success)

	stats := CalculateParallelStats(results, 0, 1)
	assert.Equal(t, 1, stats.Unsuccessful)
	assert.Zero(t, stats.AveragePerJob)
}

func TestProcessJobs_Canceled(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ProcessJobs(ctx, []Job{{Name: "a", Tokens: labelTokens()}}, ParallelConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	cb := NewConsoleProgressCallback(&buf, "scan: ").WithUpdateInterval(0)
	cb.OnStart(4)
	cb.OnProgress(2, 4)
	cb.OnError(2, errors.New("boom"))
	cb.OnProgress(4, 4)
	cb.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "scan: 0/4 labels")
	assert.Contains(t, out, "2/4")
	assert.Contains(t, out, "[##############################] 4/4")
	assert.Contains(t, out, "(1 errors)")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	cb := NewLogProgressCallback(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelInfo)
	cb.Interval = 2
	cb.OnStart(3)
	cb.OnProgress(1, 3)
	cb.OnProgress(3, 3)
	cb.OnError(0, errors.New("x"))
	cb.OnComplete()

	out := buf.String()
	assert.Contains(t, out, "Batch started")
	assert.Contains(t, out, "current=3")
	assert.NotContains(t, out, "current=1")
	assert.Contains(t, out, "Batch item failed")
	assert.Contains(t, out, "Batch completed")
}

func TestRenderOverlay(t *testing.T) {
	p, err := NewBuilder().WithLogger(quietLogger()).Build()
	require.NoError(t, err)
	_, a, err := p.AnalyzeTokens(context.Background(), labelTokens())
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for y := range 200 {
		for x := range 400 {
			img.Set(x, y, color.White)
		}
	}

	style := DefaultOverlayStyle()
	out := RenderOverlay(img, a, style)
	require.NotNil(t, out)
	// label "Energia" at (10,40) and value at (200,40)
	assert.Equal(t, style.LabelColor, color.Color(out.RGBAAt(10, 40)))
	assert.Equal(t, style.ValueColor, color.Color(out.RGBAAt(200, 40)))
	// source image untouched
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, img.RGBAAt(10, 40))

	plain := RenderOverlay(img, nil, style)
	assert.Equal(t, img.Pix, plain.Pix)
	assert.Nil(t, RenderOverlay(nil, a, style))
}

func TestOverlayStyleFromHex(t *testing.T) {
	def := DefaultOverlayStyle()

	style := OverlayStyleFromHex("#000000", "bogus", "")
	assert.Equal(t, color.RGBA{A: 255}, style.LabelColor)
	assert.Equal(t, def.ValueColor, style.ValueColor)
	assert.Equal(t, def.LinkColor, style.LinkColor)
	assert.Equal(t, def.Thickness, style.Thickness)
}
