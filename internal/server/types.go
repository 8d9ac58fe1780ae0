package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scanPipeline defines the methods needed by the server from a pipeline.
type scanPipeline interface {
	Run(ctx context.Context, data []byte) (*pipeline.Outcome, error)
	AnalyzeTokens(ctx context.Context, tokens []nutrition.TextToken) (*nutrition.Result, *nutrition.Analysis, error)
	HasImageSource() bool
	Info() map[string]any
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    scanPipeline
	fields      nutrition.FieldTable
	cfg         Config
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// RateLimitConfig holds per-client limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64 // bytes
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	ShutdownTimeout int
	OverlayEnabled  bool
	Overlay         pipeline.OverlayStyle
	RateLimit       RateLimitConfig
	Version         string
}

// ConfigFromSettings maps the loaded configuration onto server settings.
// Unparseable overlay colours keep the default style.
func ConfigFromSettings(sc config.ServerConfig, oc config.OutputConfig) Config {
	return Config{
		Host:            sc.Host,
		Port:            sc.Port,
		CORSOrigin:      sc.CORSOrigin,
		MaxUploadMB:     int64(sc.MaxUploadMB),
		TimeoutSec:      sc.TimeoutSec,
		ShutdownTimeout: sc.ShutdownTimeout,
		OverlayEnabled:  sc.OverlayEnabled,
		Overlay:         pipeline.OverlayStyleFromHex(oc.LabelColor, oc.ValueColor, oc.LinkColor),
		RateLimit: RateLimitConfig{
			Enabled:           sc.RateLimit.Enabled,
			RequestsPerMinute: sc.RateLimit.RequestsPerMinute,
			RequestsPerHour:   sc.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: sc.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     int64(sc.RateLimit.MaxDataPerDayMB) * 1024 * 1024,
		},
	}
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Source  string `json:"source,omitempty"`
	Time    string `json:"time"`
}

type FieldInfo struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Priority int      `json:"priority"`
}

type FieldsResponse struct {
	Fields []FieldInfo `json:"fields"`
	Count  int         `json:"count"`
}

type ImageInfo struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int64  `json:"bytes"`
}

// ScanResponse wraps a scan result with request metadata.
type ScanResponse struct {
	RequestID  string            `json:"request_id,omitempty"`
	Result     *nutrition.Result `json:"result"`
	Source     string            `json:"source,omitempty"`
	Cached     bool              `json:"cached"`
	DurationMs float64           `json:"duration_ms"`
	Image      *ImageInfo        `json:"image,omitempty"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// TokensRequest is the body of POST /scan/tokens. A bare token list is
// accepted too.
type TokensRequest struct {
	Tokens []nutrition.TextToken `json:"tokens"`
}

// NewServer creates a server around an already built pipeline.
func NewServer(cfg Config, pl *pipeline.Pipeline, logger *slog.Logger) (*Server, error) {
	if pl == nil {
		return nil, errors.New("server requires a pipeline")
	}
	return newServer(cfg, pl, pl.Engine.Fields(), logger), nil
}

func newServer(cfg Config, pl scanPipeline, fields nutrition.FieldTable, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 20
	}
	if cfg.Overlay.LabelColor == nil {
		cfg.Overlay = pipeline.DefaultOverlayStyle()
	}
	s := &Server{
		pipeline: pl,
		fields:   fields,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(
			cfg.RateLimit.RequestsPerMinute,
			cfg.RateLimit.RequestsPerHour,
			cfg.RateLimit.MaxRequestsPerDay,
			cfg.RateLimit.MaxDataPerDay,
		)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.wrap(s.healthHandler))
	mux.HandleFunc("/fields", s.wrap(s.fieldsHandler))
	mux.HandleFunc("/info", s.wrap(s.infoHandler))
	mux.HandleFunc("/scan/image", s.wrap(s.rateLimitMiddleware(s.scanImageHandler)))
	mux.HandleFunc("/scan/tokens", s.wrap(s.rateLimitMiddleware(s.scanTokensHandler)))
	mux.HandleFunc("/ws/scan", s.requestIDMiddleware(s.rateLimitMiddleware(s.scanWebSocketHandler)))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// requestTimeout is the per-request processing budget.
func (s *Server) requestTimeout() time.Duration {
	if s.cfg.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.cfg.TimeoutSec) * time.Second
}

func (s *Server) maxUploadBytes() int64 { return s.cfg.MaxUploadMB * 1024 * 1024 }
