package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCommandFlags(t *testing.T) {
	for _, name := range []string{
		"host", "port", "cors-origin", "max-upload-size", "timeout", "shutdown-timeout",
		"source", "tokens", "overlay-enable", "rate-limit-enabled", "requests-per-minute",
		"requests-per-hour", "max-requests-per-day", "max-data-per-day",
	} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestServerSettings(t *testing.T) {
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	require.NoError(t, serveCmd.Flags().Set("port", "9090"))
	require.NoError(t, serveCmd.Flags().Set("rate-limit-enabled", "true"))
	require.NoError(t, serveCmd.Flags().Set("max-data-per-day", "2"))

	cfg := *GetConfig()
	sc := serverSettings(serveCmd, &cfg)

	assert.Equal(t, 9090, sc.Port)
	assert.Equal(t, cfg.Server.Host, sc.Host)
	assert.True(t, sc.RateLimit.Enabled)
	assert.Equal(t, int64(2*1024*1024), sc.RateLimit.MaxDataPerDay)
	assert.NotEmpty(t, sc.Version)
	assert.NotNil(t, sc.Overlay.LabelColor)
}

func TestServeCommandInvalidPort(t *testing.T) {
	_, _, err := executeCommand(t, "serve", "--port", "70000", "--source", "tokens")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port number")
}
