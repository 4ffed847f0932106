package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Contains(t, cfg.UpstreamServices, "default")
	assert.Equal(t, "X-API-Key", cfg.ClientIDHeader)
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	contents := `
host: "127.0.0.1"
port: 9999
client_id_header: "X-Client"
fallback_to_ip: false
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "X-Client", cfg.ClientIDHeader)
	assert.False(t, cfg.FallbackToIP)
}

func TestEnvOverridesApplied(t *testing.T) {
	t.Setenv("GATEWAY_HOST", "10.0.0.1")
	t.Setenv("GATEWAY_PORT", "1234")
	t.Setenv("GATEWAY_CLIENT_ID_HEADER", "X-Env-Key")

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Host)
	assert.Equal(t, 1234, cfg.Port)
	assert.Equal(t, "X-Env-Key", cfg.ClientIDHeader)
}
