package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/cache"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// ErrNoSource is returned when an image is submitted to a pipeline without
// a detection source.
var ErrNoSource = errors.New("no detection source configured")

// Outcome is the detailed result of processing one image.
type Outcome struct {
	Result *nutrition.Result
	// Analysis is set for successful token-path scans that were not cached.
	Analysis *nutrition.Analysis
	// Image is the preprocessed working image token coordinates refer to.
	Image    image.Image
	Metadata utils.ImageMetadata
	Source   string
	Cached   bool
	Duration time.Duration
}

// ProcessImage decodes and scans an encoded image.
func (p *Pipeline) ProcessImage(ctx context.Context, data []byte) (*nutrition.Result, error) {
	out, err := p.Run(ctx, data)
	if err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Run processes an encoded image and returns every intermediate product.
// Undecodable input yields an error wrapping utils.ErrUnsupportedImage.
// Source failures are reported as failed results, not errors.
func (p *Pipeline) Run(ctx context.Context, data []byte) (*Outcome, error) {
	start := time.Now()
	if !p.HasImageSource() {
		return nil, ErrNoSource
	}
	img, meta, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}

	key := cache.Key(p.cfg.SourceName, data)
	if res, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("Cache lookup failed", "key", key, "error", err)
	} else if ok {
		p.stats.recordCacheHit()
		p.logger.Debug("Cache hit", "key", key)
		return &Outcome{
			Result:   res,
			Image:    img,
			Metadata: meta,
			Source:   p.cfg.SourceName,
			Cached:   true,
			Duration: time.Since(start),
		}, nil
	}

	out, err := p.ProcessDecoded(ctx, img)
	if err != nil {
		return nil, err
	}
	out.Metadata = meta

	if err := p.cache.Set(ctx, key, out.Result); err != nil {
		p.logger.Warn("Cache store failed", "key", key, "error", err)
	}
	out.Duration = time.Since(start)
	return out, nil
}

// ProcessDecoded runs preprocessing, the detection source and the engine
// on an already decoded image. It bypasses the cache.
func (p *Pipeline) ProcessDecoded(ctx context.Context, img image.Image) (*Outcome, error) {
	start := time.Now()
	if !p.HasImageSource() {
		return nil, ErrNoSource
	}
	if p.logger.Enabled(ctx, slog.LevelDebug) {
		q := utils.AssessImageQuality(img)
		p.logger.Debug("Image decoded",
			"width", q.Width,
			"height", q.Height,
			"grayscale", q.IsGrayscale,
			"alpha", q.HasAlpha)
	}
	working := img
	if p.cfg.EnablePreprocess {
		var err error
		working, err = utils.Preprocess(img, p.cfg.Preprocess)
		if err != nil {
			return nil, err
		}
	}

	out := &Outcome{Image: working, Source: p.cfg.SourceName}
	if p.structured != nil {
		fields, err := p.structured.ExtractFields(ctx, working)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.logger.Warn("Structured source failed", "source", p.cfg.SourceName, "error", err)
			out.Result = nutrition.Failure(err.Error())
		} else {
			out.Result = p.Engine.FromStructured(fields)
		}
	} else {
		tokens, err := p.tokens.DetectTokens(ctx, working)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			p.logger.Warn("Text detection failed", "source", p.cfg.SourceName, "error", err)
			out.Result = nutrition.Failure(err.Error())
		} else {
			out.Result, out.Analysis = p.Engine.ScanDetailed(tokens)
		}
	}

	out.Duration = time.Since(start)
	p.stats.record(out.Result, out.Duration)
	p.logger.Debug("Image processed",
		"source", p.cfg.SourceName,
		"success", out.Result.Success,
		"fields", out.Result.FieldCount(),
		"duration", out.Duration)
	return out, nil
}

// ProcessTokens scans already detected tokens.
func (p *Pipeline) ProcessTokens(ctx context.Context, tokens []nutrition.TextToken) (*nutrition.Result, error) {
	res, _, err := p.AnalyzeTokens(ctx, tokens)
	return res, err
}

// AnalyzeTokens scans tokens and also returns the analysis for successful
// scans.
func (p *Pipeline) AnalyzeTokens(ctx context.Context, tokens []nutrition.TextToken) (*nutrition.Result, *nutrition.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	start := time.Now()
	res, a := p.Engine.ScanDetailed(tokens)
	p.stats.record(res, time.Since(start))
	return res, a, nil
}
