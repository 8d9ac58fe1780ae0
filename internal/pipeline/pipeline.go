package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/MeKo-Tech/labelscan/internal/cache"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// Config holds pipeline settings that are not collaborators.
type Config struct {
	Preprocess       utils.PreprocessOptions
	EnablePreprocess bool
	// SourceName namespaces cache keys and is reported in Info.
	SourceName string
	Parallel   ParallelConfig
}

// DefaultConfig returns a config with preprocessing enabled.
func DefaultConfig() Config {
	return Config{
		Preprocess:       utils.DefaultPreprocessOptions(),
		EnablePreprocess: true,
		Parallel:         DefaultParallelConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg        Config
	engine     *nutrition.Engine
	tokens     nutrition.TokenSource
	structured nutrition.StructuredSource
	cache      cache.Cache
	logger     *slog.Logger
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithEngine sets the extraction engine. Build creates a default engine
// when none is given.
func (b *Builder) WithEngine(e *nutrition.Engine) *Builder {
	b.engine = e
	return b
}

// WithTokenSource sets the OCR detection source used for images.
func (b *Builder) WithTokenSource(src nutrition.TokenSource, name string) *Builder {
	b.tokens = src
	if name != "" {
		b.cfg.SourceName = name
	}
	return b
}

// WithStructuredSource sets a source that returns fields directly. It takes
// precedence over a token source.
func (b *Builder) WithStructuredSource(src nutrition.StructuredSource, name string) *Builder {
	b.structured = src
	if name != "" {
		b.cfg.SourceName = name
	}
	return b
}

// WithCache sets the result cache.
func (b *Builder) WithCache(c cache.Cache) *Builder {
	b.cache = c
	return b
}

// WithPreprocess enables preprocessing with the given options.
func (b *Builder) WithPreprocess(opts utils.PreprocessOptions) *Builder {
	b.cfg.Preprocess = opts
	b.cfg.EnablePreprocess = true
	return b
}

// WithoutPreprocess hands decoded images to the source unchanged.
func (b *Builder) WithoutPreprocess() *Builder {
	b.cfg.EnablePreprocess = false
	return b
}

// WithWorkers sets the number of parallel workers for job batches.
func (b *Builder) WithWorkers(n int) *Builder {
	if n > 0 {
		b.cfg.Parallel.MaxWorkers = n
	}
	return b
}

// WithProgressCallback sets the progress callback for job batches.
func (b *Builder) WithProgressCallback(cb ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = cb
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the configuration looks sane.
func (b *Builder) Validate() error {
	if b.cfg.Parallel.MaxWorkers < 0 {
		return errors.New("workers must be >= 0")
	}
	if b.cfg.EnablePreprocess {
		p := b.cfg.Preprocess
		if p.MaxDimension < 0 || p.MinDimension < 0 {
			return errors.New("preprocess dimensions must be >= 0")
		}
		if p.MaxDimension > 0 && p.MinDimension > p.MaxDimension {
			return fmt.Errorf("preprocess min dimension %d exceeds max %d", p.MinDimension, p.MaxDimension)
		}
		if p.Contrast < -100 || p.Contrast > 100 {
			return fmt.Errorf("preprocess contrast %.1f out of range [-100, 100]", p.Contrast)
		}
	}
	return nil
}

// Pipeline wires decoding, preprocessing, a detection source, the engine
// and the cache together.
type Pipeline struct {
	cfg        Config
	Engine     *nutrition.Engine
	tokens     nutrition.TokenSource
	structured nutrition.StructuredSource
	cache      cache.Cache
	logger     *slog.Logger
	stats      *Stats
}

// Build initializes the pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := b.engine
	if engine == nil {
		var err error
		engine, err = nutrition.New(nutrition.Options{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
	}
	c := b.cache
	if c == nil {
		c = cache.Noop{}
	}
	cfg := b.cfg
	if cfg.SourceName == "" {
		cfg.SourceName = defaultSourceName(b.structured != nil, b.tokens != nil)
	}
	if cfg.Parallel.MaxWorkers == 0 {
		cfg.Parallel.MaxWorkers = runtime.NumCPU()
	}
	return &Pipeline{
		cfg:        cfg,
		Engine:     engine,
		tokens:     b.tokens,
		structured: b.structured,
		cache:      c,
		logger:     logger,
		stats:      &Stats{},
	}, nil
}

func defaultSourceName(structured, tokens bool) string {
	switch {
	case structured:
		return "vlm"
	case tokens:
		return "ocr"
	default:
		return "none"
	}
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() *Stats { return p.stats }

// HasImageSource reports whether images can be processed.
func (p *Pipeline) HasImageSource() bool { return p.tokens != nil || p.structured != nil }

// Close releases sources and the cache when they hold resources.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range []any{p.structured, p.tokens, p.cache} {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]any {
	params := p.Engine.Params()
	return map[string]any{
		"source":     p.cfg.SourceName,
		"structured": p.structured != nil,
		"fields":     len(p.Engine.Fields()),
		"preprocess": map[string]any{
			"enabled":       p.cfg.EnablePreprocess,
			"max_dimension": p.cfg.Preprocess.MaxDimension,
			"contrast":      p.cfg.Preprocess.Contrast,
			"sharpen":       p.cfg.Preprocess.Sharpen,
			"grayscale":     p.cfg.Preprocess.Grayscale,
		},
		"engine": map[string]any{
			"row_tolerance":    params.RowTolerance,
			"column_tolerance": params.ColumnTolerance,
			"max_left_offset":  params.MaxLeftOffset,
		},
		"parallel": map[string]any{
			"max_workers":           p.cfg.Parallel.MaxWorkers,
			"has_progress_callback": p.cfg.Parallel.ProgressCallback != nil,
		},
		"stats": p.stats.Snapshot(),
	}
}
