package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Redis.PlayTTL)
	assert.Equal(t, "greed.play", cfg.NATS.Subject)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9000"
store:
  backend: redis
redis:
  play_ttl: 90m
nats:
  enabled: true
`)
	t.Setenv("GREED_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 90*time.Minute, cfg.Redis.PlayTTL)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: sqlite\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
