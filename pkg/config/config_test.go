package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/fieldline_test")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	c, err := Load()
	require.NoError(t, err)

	require.Equal(t, "development", c.AppEnv)
	require.Equal(t, "0.0.0.0:8080", c.HTTPAddr)
	require.Equal(t, 15*time.Second, c.ShutdownTimeout)
	require.Equal(t, 720*time.Hour, c.DeletedRetention)
	require.Equal(t, 5*time.Second, c.AutomationTimeout)
	require.Equal(t, 10, c.AsynqConcurrency)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/fieldline_test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesRetention(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/fieldline_test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("DELETED_RETENTION", "24h")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, c.DeletedRetention)
}
