package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://localhost:8080/api
rabbitmq:
  host: localhost
  port: 5672
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3002, cfg.Tracking.HTTPPort)
	assert.Equal(t, 5000, cfg.Tracking.PollIntervalMs)
	assert.Equal(t, 10, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Routing.TimeoutSeconds)
}

func TestLoadRejectsMissingBackend(t *testing.T) {
	path := writeConfig(t, `
rabbitmq:
  host: localhost
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://orders.internal/api
  timeout_seconds: 3
tracking:
  http_port: 4000
  poll_interval_ms: 1500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://orders.internal/api", cfg.Backend.BaseURL)
	assert.Equal(t, 3, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, 4000, cfg.Tracking.HTTPPort)
	assert.Equal(t, 1500, cfg.Tracking.PollIntervalMs)
}
