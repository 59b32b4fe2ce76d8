package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3002, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Redis.ExistsCacheTTL.Duration)
	assert.Equal(t, 3*time.Second, cfg.Oracle.Timeout.Duration)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel())
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Run("overrides values", func(t *testing.T) {
		cfg := Default()
		err := cfg.applyEnv(envMap(map[string]string{
			"PORT":             "8081",
			"DATABASE_URL":     "postgres://x/y",
			"JWT_SECRET":       " secret ",
			"RATE_LIMIT_RPS":   "2.5",
			"RATE_LIMIT_BURST": "4",
			"EXISTS_CACHE_TTL": "30s",
			"ORACLE_TIMEOUT":   "750ms",
			"LOG_LEVEL":        "debug",
		}))
		require.NoError(t, err)

		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, ":8081", cfg.Addr())
		assert.Equal(t, "postgres://x/y", cfg.Database.URL)
		assert.Equal(t, "secret", cfg.Server.JWTSecret)
		assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
		assert.Equal(t, 4, cfg.Server.RateLimitBurst)
		assert.Equal(t, 30*time.Second, cfg.Redis.ExistsCacheTTL.Duration)
		assert.Equal(t, 750*time.Millisecond, cfg.Oracle.Timeout.Duration)
		assert.Equal(t, log.DebugLevel, cfg.LogLevel())
	})

	t.Run("blank values are ignored", func(t *testing.T) {
		cfg := Default()
		require.NoError(t, cfg.applyEnv(envMap(map[string]string{"PORT": "", "DATABASE_URL": "  "})))
		assert.Equal(t, Default().Database.URL, cfg.Database.URL)
		assert.Equal(t, 3002, cfg.Server.Port)
	})

	t.Run("reports every bad number", func(t *testing.T) {
		cfg := Default()
		err := cfg.applyEnv(envMap(map[string]string{
			"PORT":             "eighty",
			"EXISTS_CACHE_TTL": "soon",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PORT")
		assert.Contains(t, err.Error(), "EXISTS_CACHE_TTL")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"empty database url", func(c *Config) { c.Database.URL = "" }},
		{"negative rate", func(c *Config) { c.Server.RateLimitRPS = -1 }},
		{"missing user service", func(c *Config) { c.Oracle.UserServiceURL = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "playlist.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 4000

[redis]
url = ""
exists_cache_ttl = "1m"
`), 0o644))

	for _, k := range []string{"PORT", "REDIS_URL", "EXISTS_CACHE_TTL", "USER_SERVICE_URL", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", "postgres://from-env/db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "", cfg.Redis.URL)
	assert.Equal(t, time.Minute, cfg.Redis.ExistsCacheTTL.Duration)
	assert.Equal(t, "postgres://from-env/db", cfg.Database.URL)
	assert.Equal(t, Default().Oracle.UserServiceURL, cfg.Oracle.UserServiceURL)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.toml"))
		assert.Error(t, err)
	})
}
