package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "labelscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "LABELSCAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, so flags bound
// by the root command take part in resolution.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on an isolated viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// Load resolves configuration from the search paths, the environment and
// defaults, then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadFile("", true)
}

// LoadWithFile loads configuration from a specific file path. An empty
// path falls back to the search paths.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.LoadFile(configFile, true)
}

// LoadFile is the common loading path. When validate is false the result
// is returned as resolved, which lets callers apply flag overrides first.
func (l *Loader) LoadFile(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &cfg, nil
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that AutomaticEnv can resolve nested
// keys during Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("engine.max_left_offset", d.Engine.MaxLeftOffset)
	l.v.SetDefault("engine.row_tolerance", d.Engine.RowTolerance)
	l.v.SetDefault("engine.protein_row_tolerance", d.Engine.ProteinRowTolerance)
	l.v.SetDefault("engine.row_hysteresis", d.Engine.RowHysteresis)
	l.v.SetDefault("engine.column_tolerance", d.Engine.ColumnTolerance)
	l.v.SetDefault("engine.grid_x", d.Engine.GridX)
	l.v.SetDefault("engine.grid_y", d.Engine.GridY)
	l.v.SetDefault("engine.max_candidates_per_label", d.Engine.MaxCandidatesPerLabel)

	l.v.SetDefault("source.kind", d.Source.Kind)
	l.v.SetDefault("source.vision.credentials_file", d.Source.Vision.CredentialsFile)
	l.v.SetDefault("source.vision.language_hints", d.Source.Vision.LanguageHints)
	l.v.SetDefault("source.vlm.provider", d.Source.VLM.Provider)
	l.v.SetDefault("source.vlm.model", d.Source.VLM.Model)
	l.v.SetDefault("source.vlm.api_key_env", d.Source.VLM.APIKeyEnv)
	l.v.SetDefault("source.vlm.base_url", d.Source.VLM.BaseURL)

	l.v.SetDefault("preprocess.enabled", d.Preprocess.Enabled)
	l.v.SetDefault("preprocess.max_dimension", d.Preprocess.MaxDimension)
	l.v.SetDefault("preprocess.min_dimension", d.Preprocess.MinDimension)
	l.v.SetDefault("preprocess.contrast", d.Preprocess.Contrast)
	l.v.SetDefault("preprocess.sharpen", d.Preprocess.Sharpen)
	l.v.SetDefault("preprocess.grayscale", d.Preprocess.Grayscale)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.overlay_dir", d.Output.OverlayDir)
	l.v.SetDefault("output.label_color", d.Output.LabelColor)
	l.v.SetDefault("output.value_color", d.Output.ValueColor)
	l.v.SetDefault("output.link_color", d.Output.LinkColor)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.overlay_enabled", d.Server.OverlayEnabled)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day_mb", d.Server.RateLimit.MaxDataPerDayMB)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)
	l.v.SetDefault("batch.include", d.Batch.Include)
	l.v.SetDefault("batch.exclude", d.Batch.Exclude)

	l.v.SetDefault("cache.kind", d.Cache.Kind)
	l.v.SetDefault("cache.memory_size", d.Cache.MemorySize)
	l.v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	l.v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	l.v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	l.v.SetDefault("cache.redis.ttl_sec", d.Cache.Redis.TTLSec)
}

// WriteDefaultConfig writes DefaultConfig as YAML.
func WriteDefaultConfig(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	return enc.Close()
}

// GenerateDefaultConfigFile writes a default configuration file.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	f, err := os.Create(filename) //nolint:gosec // G304: user-chosen output path
	if err != nil {
		return err
	}
	if err := WriteDefaultConfig(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}
	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "labelscan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "labelscan"))
	}
	return append(paths, "/etc/labelscan")
}
