package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Scan.Cooldown)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, "5", cfg.Fyers.Resolution)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
scan:
  cooldown: 2m
  workers: 8
indices:
  names: [NIFTY50, SENSEX]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Scan.Cooldown)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, []string{"NIFTY50", "SENSEX"}, cfg.Indices.Names)
	// Untouched sections keep defaults.
	assert.Equal(t, "https://api-t1.fyers.in", cfg.Fyers.BaseURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OISCAN_DATABASE_URL", "postgres://scan:scan@db:5432/oiscan")
	t.Setenv("OISCAN_HTTP_PORT", "7001")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://scan:scan@db:5432/oiscan", cfg.Database.URL)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Scan.Cooldown = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Fyers.RPS = 0
	assert.Error(t, cfg.Validate())
}
