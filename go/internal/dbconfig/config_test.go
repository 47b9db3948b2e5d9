package dbconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "pidr")
	t.Setenv("DB_PASSWORD", "p@ss word")
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_SSLMODE", "")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MAX_CONN_IDLE", "")

	cfg := NewConfigFromEnv()
	assert.Equal(t, "postgres://pidr:p%40ss%20word@db:6543/pidr?sslmode=disable", cfg.DSN())

	pool, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(4), pool.MaxConns)
	assert.Equal(t, 5*time.Minute, pool.MaxConnIdleTime)
	assert.Equal(t, "p@ss word", pool.ConnConfig.Password)
	assert.Equal(t, uint16(6543), pool.ConnConfig.Port)
}
