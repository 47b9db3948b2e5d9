package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
store: postgres
game:
  turn_timeout: 45s
  bot_delay: 500ms
  rules:
    allow_pass: true
limits:
  rps: 5
  burst: 8
redis:
  addr: localhost:6379
`), 0o600))

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("STORE", "")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("TURN_TIMEOUT", "")
	t.Setenv("TURN_WORKERS", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, storePostgres, cfg.Store)
	assert.Equal(t, 45*time.Second, cfg.Game.TurnTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Game.BotDelay)
	assert.True(t, cfg.Game.Rules.AllowPass)
	assert.Equal(t, 5.0, cfg.Limits.RPS)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "nats://nats:4222", cfg.JetStream.URL)
	assert.Equal(t, "PIDR_SNAPSHOTS", cfg.JetStream.StreamName, "defaults survive a partial file")
	assert.Equal(t, "s3cret", cfg.Server.JWTSecret)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE", "")
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE", "sqlite")
	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "unknown STORE")
}
