package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 8*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 3*time.Second, cfg.IntentTimeout)
	assert.Equal(t, int64(100), cfg.TransportFlatCost)
	assert.True(t, cfg.MockMode())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tripagent.yaml")
	content := `
http_port: 9000
tool_timeout: 2s
transport_flat_cost: 250
policy_deny_tools: [hotel_search]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTPPort, "env wins over file")
	assert.Equal(t, 2*time.Second, cfg.ToolTimeout)
	assert.Equal(t, int64(250), cfg.TransportFlatCost)
	assert.Equal(t, []string{"hotel_search"}, cfg.PolicyDenyTools)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT_MS", "1500")
	t.Setenv("POLICY_DENY_TOOLS", "weather_lookup, meal_suggestion")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.ToolTimeout)
	assert.Equal(t, []string{"weather_lookup", "meal_suggestion"}, cfg.PolicyDenyTools)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.ToolTimeout = 0
	cfg.EnrichMaxConcurrency = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool timeout")
	assert.Contains(t, err.Error(), "concurrency")

	cfg = Default()
	cfg.Mode = "LIVE"
	assert.Error(t, cfg.Validate(), "live mode needs an API key")
}
