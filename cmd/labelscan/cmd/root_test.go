package cmd

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "labelscan", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	out, _, err := executeCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "per-100g values")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	out, _, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "labelscan version")
	assert.Contains(t, out, "commit")
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"scan", "image", "batch", "serve", "fields", "config"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	_, _, err := executeCommand(t, "--invalid-flag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRootCommandInvalidLogLevel(t *testing.T) {
	_, _, err := executeCommand(t, "fields", "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewLoggerLevels(t *testing.T) {
	cfg := GetConfig()
	tests := []struct {
		level   string
		verbose bool
		debug   bool
		info    bool
	}{
		{level: "info", info: true},
		{level: "debug", debug: true, info: true},
		{level: "warn"},
		{level: "error"},
		{level: "error", verbose: true, debug: true, info: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			c := *cfg
			c.LogLevel = tt.level
			c.Verbose = tt.verbose
			logger := newLogger(nil, &c)
			assert.Equal(t, tt.debug, logger.Enabled(t.Context(), slog.LevelDebug))
			assert.Equal(t, tt.info, logger.Enabled(t.Context(), slog.LevelInfo))
		})
	}
}

func TestRootCommandLoadsConfigBeforeSubcommand(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	tests := []struct {
		name    string
		args    []string
		level   string
		verbose bool
	}{
		{"defaults", []string{"fields"}, "info", false},
		{"log level flag", []string{"fields", "--log-level", "debug"}, "debug", false},
		{"verbose flag", []string{"-v", "fields"}, "info", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, tt.args...)
			require.NoError(t, err)
			require.NotNil(t, globalConfig)
			assert.Equal(t, tt.level, globalConfig.LogLevel)
			assert.Equal(t, tt.verbose, globalConfig.Verbose)
			debug := tt.level == "debug" || tt.verbose
			assert.Equal(t, debug, slog.Default().Enabled(t.Context(), slog.LevelDebug))
		})
	}
}
