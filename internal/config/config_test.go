package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "memory", cfg.TokenCache)
	assert.Equal(t, 55*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 30*time.Second, cfg.CourtHTTPTimeout)
	assert.Equal(t, 15*time.Second, cfg.CourtAuthTimeout)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, "@every 1m", cfg.SchedulerSpec)
}

func TestLoadOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TOKEN_TTL", "20")
	t.Setenv("COURT_HTTP_TIMEOUT", "5")
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("TOKEN_CACHE", "redis")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.CourtHTTPTimeout)
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, "redis", cfg.TokenCache)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad ttl", "TOKEN_TTL", "soon"},
		{"bad driver", "DATABASE_DRIVER", "oracle"},
		{"postgres without dsn", "DATABASE_DRIVER", "postgres"},
		{"bad token cache", "TOKEN_CACHE", "disk"},
		{"bad scheduler flag", "SCHEDULER_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
