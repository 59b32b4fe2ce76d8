// Package config loads playlist-service settings from defaults, an optional
// TOML file, a .env file and the environment, in that order.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Oracle   OracleConfig   `toml:"oracle"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Port           int     `toml:"port"`
	JWTSecret      string  `toml:"jwt_secret"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RedisConfig is optional: an empty URL disables events and the existence
// cache.
type RedisConfig struct {
	URL            string   `toml:"url"`
	ExistsCacheTTL Duration `toml:"exists_cache_ttl"`
}

type OracleConfig struct {
	UserServiceURL    string   `toml:"user_service_url"`
	CatalogServiceURL string   `toml:"catalog_service_url"`
	Timeout           Duration `toml:"timeout"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as "3s" or "5m" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the embedded defaults.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("USER_SERVICE_URL", &c.Oracle.UserServiceURL)
	str("CATALOG_SERVICE_URL", &c.Oracle.CatalogServiceURL)
	str("JWT_SECRET", &c.Server.JWTSecret)
	str("LOG_LEVEL", &c.Log.Level)

	var errs []error
	num := func(key string, set func(string) error) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		}
	}
	num("PORT", func(v string) (err error) {
		c.Server.Port, err = strconv.Atoi(v)
		return err
	})
	num("RATE_LIMIT_RPS", func(v string) (err error) {
		c.Server.RateLimitRPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	num("RATE_LIMIT_BURST", func(v string) (err error) {
		c.Server.RateLimitBurst, err = strconv.Atoi(v)
		return err
	})
	num("EXISTS_CACHE_TTL", func(v string) error {
		return c.Redis.ExistsCacheTTL.UnmarshalText([]byte(v))
	})
	num("ORACLE_TIMEOUT", func(v string) error {
		return c.Oracle.Timeout.UnmarshalText([]byte(v))
	})
	return errors.Join(errs...)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("database url is empty"))
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.Oracle.UserServiceURL == "" || c.Oracle.CatalogServiceURL == "" {
		errs = append(errs, errors.New("user and catalog service urls are required"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// LogLevel returns the configured level, falling back to info.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
