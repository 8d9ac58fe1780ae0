package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/cache"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

// Source kinds.
const (
	SourceTokens = "tokens"
	SourceVision = "vision"
	SourceVLM    = "vlm"
)

// Cache kinds.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the complete configuration for labelscan. It covers all
// commands (scan, image, batch, serve) and is loaded from files,
// environment variables and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine" json:"engine"`
	Source     SourceConfig     `mapstructure:"source" yaml:"source" json:"source"`
	Preprocess PreprocessConfig `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch" json:"batch"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache" json:"cache"`
}

// EngineConfig holds the spatial tolerances of the extraction engine, in pixels.
type EngineConfig struct {
	MaxLeftOffset         float64 `mapstructure:"max_left_offset" yaml:"max_left_offset" json:"max_left_offset"`
	RowTolerance          float64 `mapstructure:"row_tolerance" yaml:"row_tolerance" json:"row_tolerance"`
	ProteinRowTolerance   float64 `mapstructure:"protein_row_tolerance" yaml:"protein_row_tolerance" json:"protein_row_tolerance"`
	RowHysteresis         float64 `mapstructure:"row_hysteresis" yaml:"row_hysteresis" json:"row_hysteresis"`
	ColumnTolerance       float64 `mapstructure:"column_tolerance" yaml:"column_tolerance" json:"column_tolerance"`
	GridX                 float64 `mapstructure:"grid_x" yaml:"grid_x" json:"grid_x"`
	GridY                 float64 `mapstructure:"grid_y" yaml:"grid_y" json:"grid_y"`
	MaxCandidatesPerLabel int     `mapstructure:"max_candidates_per_label" yaml:"max_candidates_per_label" json:"max_candidates_per_label"`
}

// SourceConfig selects and configures the detection source for images.
type SourceConfig struct {
	Kind   string       `mapstructure:"kind" yaml:"kind" json:"kind"`
	Vision VisionConfig `mapstructure:"vision" yaml:"vision" json:"vision"`
	VLM    VLMConfig    `mapstructure:"vlm" yaml:"vlm" json:"vlm"`
}

// VisionConfig configures Google Cloud Vision.
type VisionConfig struct {
	CredentialsFile string   `mapstructure:"credentials_file" yaml:"credentials_file" json:"credentials_file"`
	LanguageHints   []string `mapstructure:"language_hints" yaml:"language_hints" json:"language_hints"`
}

// VLMConfig configures the vision-language model provider.
type VLMConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider" json:"provider"`
	Model     string `mapstructure:"model" yaml:"model" json:"model"`
	APIKeyEnv string `mapstructure:"api_key_env" yaml:"api_key_env" json:"api_key_env"`
	BaseURL   string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
}

// PreprocessConfig controls image preparation before detection.
type PreprocessConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxDimension int     `mapstructure:"max_dimension" yaml:"max_dimension" json:"max_dimension"`
	MinDimension int     `mapstructure:"min_dimension" yaml:"min_dimension" json:"min_dimension"`
	Contrast     float64 `mapstructure:"contrast" yaml:"contrast" json:"contrast"`
	Sharpen      float64 `mapstructure:"sharpen" yaml:"sharpen" json:"sharpen"`
	Grayscale    bool    `mapstructure:"grayscale" yaml:"grayscale" json:"grayscale"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format     string `mapstructure:"format" yaml:"format" json:"format"`
	File       string `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	LabelColor string `mapstructure:"label_color" yaml:"label_color" json:"label_color"`
	ValueColor string `mapstructure:"value_color" yaml:"value_color" json:"value_color"`
	LinkColor  string `mapstructure:"link_color" yaml:"link_color" json:"link_color"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled  bool            `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client limits for the server.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
}

// CacheConfig selects the result cache.
type CacheConfig struct {
	Kind       string      `mapstructure:"kind" yaml:"kind" json:"kind"`
	MemorySize int         `mapstructure:"memory_size" yaml:"memory_size" json:"memory_size"`
	Redis      RedisConfig `mapstructure:"redis" yaml:"redis" json:"redis"`
}

// RedisConfig configures the Redis cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr" json:"addr"`
	Password string `mapstructure:"password" yaml:"password" json:"password"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db"`
	TTLSec   int    `mapstructure:"ttl_sec" yaml:"ttl_sec" json:"ttl_sec"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	params := nutrition.DefaultParams()
	pre := utils.DefaultPreprocessOptions()
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			MaxLeftOffset:         params.MaxLeftOffset,
			RowTolerance:          params.RowTolerance,
			ProteinRowTolerance:   params.ProteinRowTolerance,
			RowHysteresis:         params.RowHysteresis,
			ColumnTolerance:       params.ColumnTolerance,
			GridX:                 params.GridX,
			GridY:                 params.GridY,
			MaxCandidatesPerLabel: params.MaxCandidatesPerLabel,
		},
		Source: SourceConfig{
			Kind: SourceVision,
			Vision: VisionConfig{
				LanguageHints: []string{"fi", "sv", "en", "de"},
			},
			VLM: VLMConfig{
				Provider:  "anthropic",
				APIKeyEnv: "ANTHROPIC_API_KEY",
			},
		},
		Preprocess: PreprocessConfig{
			Enabled:      true,
			MaxDimension: pre.MaxDimension,
			MinDimension: pre.MinDimension,
			Contrast:     pre.Contrast,
			Sharpen:      pre.Sharpen,
		},
		Output: OutputConfig{
			Format:     "text",
			LabelColor: "#1E5AE6",
			ValueColor: "#E62828",
			LinkColor:  "#14AA3C",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			OverlayEnabled:  true,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 5000,
				MaxDataPerDayMB:   1024,
			},
		},
		Batch: BatchConfig{
			Workers: 4,
		},
		Cache: CacheConfig{
			Kind:       CacheMemory,
			MemorySize: cache.DefaultMemorySize,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				TTLSec: 24 * 60 * 60,
			},
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	for name, col := range map[string]string{
		"output.label_color": c.Output.LabelColor,
		"output.value_color": c.Output.ValueColor,
		"output.link_color":  c.Output.LinkColor,
	} {
		if col == "" {
			continue
		}
		if _, ok := utils.ParseHexColor(col); !ok {
			return fmt.Errorf("invalid %s: %q (must be #RRGGBB)", name, col)
		}
	}

	if err := c.Engine.validate(); err != nil {
		return err
	}

	validSources := []string{SourceTokens, SourceVision, SourceVLM}
	if !slices.Contains(validSources, c.Source.Kind) {
		return fmt.Errorf("invalid source kind: %s (must be one of: %s)", c.Source.Kind, strings.Join(validSources, ", "))
	}
	validProviders := []string{"anthropic", "openai"}
	if c.Source.Kind == SourceVLM && !slices.Contains(validProviders, c.Source.VLM.Provider) {
		return fmt.Errorf("invalid vlm provider: %s (must be one of: %s)", c.Source.VLM.Provider, strings.Join(validProviders, ", "))
	}

	if c.Preprocess.Enabled {
		if c.Preprocess.MaxDimension < 0 || c.Preprocess.MinDimension < 0 {
			return fmt.Errorf("invalid preprocess dimensions: max %d, min %d (must be >= 0)", c.Preprocess.MaxDimension, c.Preprocess.MinDimension)
		}
		if c.Preprocess.Contrast < -100 || c.Preprocess.Contrast > 100 {
			return fmt.Errorf("invalid preprocess contrast: %.1f (must be between -100 and 100)", c.Preprocess.Contrast)
		}
		if c.Preprocess.Sharpen < 0 {
			return fmt.Errorf("invalid preprocess sharpen: %.2f (must be >= 0)", c.Preprocess.Sharpen)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	validCaches := []string{CacheNone, CacheMemory, CacheRedis}
	if !slices.Contains(validCaches, c.Cache.Kind) {
		return fmt.Errorf("invalid cache kind: %s (must be one of: %s)", c.Cache.Kind, strings.Join(validCaches, ", "))
	}
	if c.Cache.Kind == CacheRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when cache kind is %s", CacheRedis)
	}
	if c.Cache.Redis.TTLSec < 0 {
		return fmt.Errorf("invalid cache.redis.ttl_sec: %d (must be >= 0)", c.Cache.Redis.TTLSec)
	}
	return nil
}

func (e EngineConfig) validate() error {
	for name, v := range map[string]float64{
		"engine.max_left_offset":       e.MaxLeftOffset,
		"engine.row_tolerance":         e.RowTolerance,
		"engine.protein_row_tolerance": e.ProteinRowTolerance,
		"engine.row_hysteresis":        e.RowHysteresis,
		"engine.column_tolerance":      e.ColumnTolerance,
		"engine.grid_x":                e.GridX,
		"engine.grid_y":                e.GridY,
	} {
		if v < 0 {
			return fmt.Errorf("invalid %s: %.2f (must be >= 0)", name, v)
		}
	}
	if e.MaxCandidatesPerLabel < 0 {
		return fmt.Errorf("invalid engine.max_candidates_per_label: %d (must be >= 0)", e.MaxCandidatesPerLabel)
	}
	return nil
}

// ToEngineParams converts the engine section. Zero values fall back to the
// engine defaults.
func (c *Config) ToEngineParams() nutrition.Params {
	return nutrition.Params{
		MaxLeftOffset:         c.Engine.MaxLeftOffset,
		RowTolerance:          c.Engine.RowTolerance,
		ProteinRowTolerance:   c.Engine.ProteinRowTolerance,
		RowHysteresis:         c.Engine.RowHysteresis,
		ColumnTolerance:       c.Engine.ColumnTolerance,
		GridX:                 c.Engine.GridX,
		GridY:                 c.Engine.GridY,
		MaxCandidatesPerLabel: c.Engine.MaxCandidatesPerLabel,
	}
}

// ToPreprocessOptions converts the preprocess section.
func (c *Config) ToPreprocessOptions() utils.PreprocessOptions {
	return utils.PreprocessOptions{
		MaxDimension: c.Preprocess.MaxDimension,
		MinDimension: c.Preprocess.MinDimension,
		Contrast:     c.Preprocess.Contrast,
		Sharpen:      c.Preprocess.Sharpen,
		Grayscale:    c.Preprocess.Grayscale,
	}
}

// ToRedisOptions converts the cache.redis section.
func (c *Config) ToRedisOptions() cache.RedisOptions {
	return cache.RedisOptions{
		Addr:     c.Cache.Redis.Addr,
		Password: c.Cache.Redis.Password,
		DB:       c.Cache.Redis.DB,
		TTL:      time.Duration(c.Cache.Redis.TTLSec) * time.Second,
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) * 1024 * 1024
}
