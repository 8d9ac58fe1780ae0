package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/MeKo-Tech/labelscan/internal/server"
	"github.com/MeKo-Tech/labelscan/internal/version"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the scanning API",
	Long: `Start an HTTP server that provides REST and WebSocket endpoints for
nutrition label scanning.

The server provides the following endpoints:
  POST /scan/image  - Scan an uploaded label photo (multipart field "image")
  POST /scan/tokens - Scan a JSON token list
  GET  /ws/scan     - Streaming scans over WebSocket
  GET  /fields      - List recognised nutrition fields
  GET  /info        - Pipeline settings and counters
  GET  /health      - Health check endpoint
  GET  /metrics     - Prometheus metrics

Examples:
  labelscan serve
  labelscan serve --port 8080
  labelscan serve --host 0.0.0.0 --port 3000 --source vlm`,
	SilenceUsage: true,
	RunE:         runServeCommand,
}

// serverSettings applies serve flags on top of the loaded configuration.
func serverSettings(cmd *cobra.Command, cfg *config.Config) server.Config {
	sc := cfg.Server
	sc.Host = stringFlag(cmd, "host", sc.Host)
	sc.Port = intFlag(cmd, "port", sc.Port)
	sc.CORSOrigin = stringFlag(cmd, "cors-origin", sc.CORSOrigin)
	sc.MaxUploadMB = intFlag(cmd, "max-upload-size", sc.MaxUploadMB)
	sc.TimeoutSec = intFlag(cmd, "timeout", sc.TimeoutSec)
	sc.ShutdownTimeout = intFlag(cmd, "shutdown-timeout", sc.ShutdownTimeout)
	sc.OverlayEnabled = boolFlag(cmd, "overlay-enable", sc.OverlayEnabled)
	sc.RateLimit.Enabled = boolFlag(cmd, "rate-limit-enabled", sc.RateLimit.Enabled)
	sc.RateLimit.RequestsPerMinute = intFlag(cmd, "requests-per-minute", sc.RateLimit.RequestsPerMinute)
	sc.RateLimit.RequestsPerHour = intFlag(cmd, "requests-per-hour", sc.RateLimit.RequestsPerHour)
	sc.RateLimit.MaxRequestsPerDay = intFlag(cmd, "max-requests-per-day", sc.RateLimit.MaxRequestsPerDay)
	if cmd.Flags().Changed("max-data-per-day") {
		sc.RateLimit.MaxDataPerDayMB, _ = cmd.Flags().GetInt64("max-data-per-day")
	}

	out := server.ConfigFromSettings(sc, cfg.Output)
	out.Version = version.Version
	return out
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg := *GetConfig()
	cfg.Source.Kind = stringFlag(cmd, "source", cfg.Source.Kind)
	tokenFile, _ := cmd.Flags().GetString("tokens")
	serverConfig := serverSettings(cmd, &cfg)

	if serverConfig.Port < 1 || serverConfig.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", serverConfig.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pl, err := buildPipeline(ctx, &cfg, pipelineOptions{tokenFile: tokenFile})
	if err != nil {
		return err
	}
	apiServer, err := server.NewServer(serverConfig, pl, slog.Default())
	if err != nil {
		_ = pl.Close()
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() { _ = apiServer.Close() }()

	timeout := time.Duration(serverConfig.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}

	go func() {
		slog.Info("Starting labelscan server",
			"host", serverConfig.Host,
			"port", serverConfig.Port,
			"source", pl.Config().SourceName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", serverConfig.ShutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(serverConfig.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	if err := apiServer.Close(); err != nil {
		slog.Error("Server cleanup error", "error", err)
	}
	slog.Info("Graceful shutdown completed")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().String("source", config.SourceVision, "detection source: vision, vlm or tokens")
	serveCmd.Flags().String("tokens", "", "replay this token dump for every uploaded image")
	serveCmd.Flags().Bool("overlay-enable", true, "enable overlay image responses")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 5000, "maximum requests per day per client")
	serveCmd.Flags().Int64("max-data-per-day", 1024, "maximum data processed per day per client (MB)")
}
