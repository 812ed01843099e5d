package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "stdout", cfg.Logger.Output)
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.RetryInterval)
	assert.Equal(t, 8082, cfg.Backends.BufSvc.Port)
	assert.Equal(t, "mirador", cfg.Metrics.Namespace)
	assert.False(t, cfg.Backends.Gateway.Enabled)
}

func TestSetDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logger.Level = "debug"
	cfg.Transport.Timeout = time.Second
	cfg.Backends.BufSvc.Port = 9000
	cfg.SetDefaults()

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 9000, cfg.Backends.BufSvc.Port)
}

func TestLoadConfig_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  level: warn
transport:
  max_retries: 4
backends:
  web_tile:
    quality: "0.8"
  gateway:
    enabled: true
    address: "http://gw.example"
  buffer_service:
    port: 9090
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, uint64(4), cfg.Transport.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout) // default fills in
	assert.Equal(t, "0.8", cfg.Backends.WebTile.Quality)
	assert.True(t, cfg.Backends.Gateway.Enabled)
	assert.Equal(t, "http://gw.example", cfg.Backends.Gateway.Address)
	assert.Equal(t, 9090, cfg.Backends.BufSvc.Port)
	// unset values still get defaults
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger: ["), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("MIRADOR_TEST_VALUE=hello\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("MIRADOR_TEST_VALUE") })

	_, err := LoadConfig("", envPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", os.Getenv("MIRADOR_TEST_VALUE"))

	// missing env files are skipped silently
	_, err = LoadConfig("", filepath.Join(dir, "nope.env"))
	assert.NoError(t, err)
}
