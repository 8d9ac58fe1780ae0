package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/labelscan/internal/cache"
	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/MeKo-Tech/labelscan/internal/source/vision"
	"github.com/MeKo-Tech/labelscan/internal/source/vlm"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
)

// pipelineOptions are per-command overrides on top of the configuration.
type pipelineOptions struct {
	// tokenFile replays a recorded dump as the detection source.
	tokenFile string
	// tokensOnly skips image sources entirely.
	tokensOnly bool
	progress   pipeline.ProgressCallback
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*nutrition.Engine, error) {
	return nutrition.New(nutrition.Options{
		Params: cfg.ToEngineParams(),
		Logger: logger,
	})
}

// buildPipeline wires engine, detection source and cache from cfg.
func buildPipeline(ctx context.Context, cfg *config.Config, opts pipelineOptions) (*pipeline.Pipeline, error) {
	logger := slog.Default()
	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	b := pipeline.NewBuilder().
		WithEngine(engine).
		WithLogger(logger).
		WithWorkers(cfg.Batch.Workers)
	if cfg.Preprocess.Enabled {
		b = b.WithPreprocess(cfg.ToPreprocessOptions())
	} else {
		b = b.WithoutPreprocess()
	}
	if opts.progress != nil {
		b = b.WithProgressCallback(opts.progress)
	}

	if !opts.tokensOnly {
		if err := attachSource(ctx, b, cfg, opts, logger); err != nil {
			return nil, err
		}
	}

	c, err := buildCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c != nil {
		b = b.WithCache(c)
	}

	pl, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return pl, nil
}

func attachSource(ctx context.Context, b *pipeline.Builder, cfg *config.Config, opts pipelineOptions, logger *slog.Logger) error {
	if opts.tokenFile != "" {
		b.WithTokenSource(source.TokenFile{Path: opts.tokenFile}, "tokens")
		return nil
	}

	switch cfg.Source.Kind {
	case config.SourceTokens:
		// Image commands report ErrNoSource unless a dump is given.
		return nil
	case config.SourceVision:
		det, err := vision.New(ctx, vision.Options{
			CredentialsFile: cfg.Source.Vision.CredentialsFile,
			LanguageHints:   cfg.Source.Vision.LanguageHints,
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create vision source: %w", err)
		}
		b.WithTokenSource(det, "vision")
		return nil
	case config.SourceVLM:
		provider, err := newVLMProvider(cfg.Source.VLM)
		if err != nil {
			return fmt.Errorf("failed to create vlm source: %w", err)
		}
		b.WithStructuredSource(vlm.New(provider, logger), "vlm:"+provider.Name())
		return nil
	default:
		return fmt.Errorf("unknown source kind: %s", cfg.Source.Kind)
	}
}

func newVLMProvider(vc config.VLMConfig) (vlm.Provider, error) {
	var apiKey string
	if vc.APIKeyEnv != "" {
		apiKey = os.Getenv(vc.APIKeyEnv)
	}
	switch vc.Provider {
	case "anthropic":
		var opts []anthropicopt.RequestOption
		if vc.BaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(vc.BaseURL))
		}
		return vlm.NewAnthropicProvider(apiKey, vc.Model, opts...)
	case "openai":
		var opts []openaiopt.RequestOption
		if vc.BaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(vc.BaseURL))
		}
		return vlm.NewOpenAIProvider(apiKey, vc.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown vlm provider: %s", vc.Provider)
	}
}

// buildCache returns nil when caching is disabled.
func buildCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Kind {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheMemory:
		return cache.NewMemory(cfg.Cache.MemorySize), nil
	case config.CacheRedis:
		c, err := cache.DialRedis(ctx, cfg.ToRedisOptions())
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache kind: %s", cfg.Cache.Kind)
	}
}

// stringFlag returns the flag value when it was set, otherwise current.
func stringFlag(cmd *cobra.Command, name, current string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return current
}

func intFlag(cmd *cobra.Command, name string, current int) int {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetInt(name)
		return v
	}
	return current
}

func boolFlag(cmd *cobra.Command, name string, current bool) bool {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetBool(name)
		return v
	}
	return current
}
