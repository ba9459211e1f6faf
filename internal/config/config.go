// Package config loads and validates client configuration from flags, the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Storage backends for the persisted session.
const (
	StoreBBolt    = "bbolt"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const defaultTimeout = 15 * time.Second

// Config holds client configuration. Every key may be set as an
// environment variable or in .env.
type Config struct {
	// BaseURL is the backend API root (e.g. http://localhost:5007/api).
	BaseURL string `mapstructure:"HRCLIENT_BASE_URL"`
	// Timeout bounds every backend call (e.g. "15s").
	Timeout string `mapstructure:"HRCLIENT_TIMEOUT"`
	// StateDir holds the bbolt session database and the generated key file.
	StateDir string `mapstructure:"HRCLIENT_STATE_DIR"`
	// Store selects where the sealed session lives: bbolt, postgres or memory.
	Store string `mapstructure:"HRCLIENT_STORE"`
	// PostgresDSN is required when Store is postgres.
	PostgresDSN string `mapstructure:"HRCLIENT_POSTGRES_DSN"`
	// Profile names the saved session; several profiles share one store.
	Profile string `mapstructure:"HRCLIENT_PROFILE"`
	// Passphrase derives the wrapping key. When empty a random key file in
	// StateDir is used instead.
	Passphrase string `mapstructure:"HRCLIENT_PASSPHRASE"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"HRCLIENT_LOG_LEVEL"`
	// LogFormat is text or json.
	LogFormat string `mapstructure:"HRCLIENT_LOG_FORMAT"`
	// RequireRevocation makes logout fail when the backend does not
	// acknowledge it.
	RequireRevocation bool `mapstructure:"HRCLIENT_REQUIRE_REVOCATION"`
	// DevAddr is the listen address of the development backend.
	DevAddr string `mapstructure:"HRCLIENT_DEV_ADDR"`
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"base-url":           "HRCLIENT_BASE_URL",
	"timeout":            "HRCLIENT_TIMEOUT",
	"state-dir":          "HRCLIENT_STATE_DIR",
	"store":              "HRCLIENT_STORE",
	"postgres-dsn":       "HRCLIENT_POSTGRES_DSN",
	"profile":            "HRCLIENT_PROFILE",
	"log-level":          "HRCLIENT_LOG_LEVEL",
	"log-format":         "HRCLIENT_LOG_FORMAT",
	"require-revocation": "HRCLIENT_REQUIRE_REVOCATION",
	"addr":               "HRCLIENT_DEV_ADDR",
}

// Load reads .env from the working directory (if present), then builds and
// validates Config. Changed flags in flags override environment variables,
// which override .env and defaults. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("HRCLIENT_BASE_URL", "http://localhost:5007/api")
	v.SetDefault("HRCLIENT_TIMEOUT", defaultTimeout.String())
	v.SetDefault("HRCLIENT_STATE_DIR", defaultStateDir())
	v.SetDefault("HRCLIENT_STORE", StoreBBolt)
	v.SetDefault("HRCLIENT_POSTGRES_DSN", "")
	v.SetDefault("HRCLIENT_PROFILE", "default")
	v.SetDefault("HRCLIENT_PASSPHRASE", "")
	v.SetDefault("HRCLIENT_LOG_LEVEL", "warn")
	v.SetDefault("HRCLIENT_LOG_FORMAT", "text")
	v.SetDefault("HRCLIENT_REQUIRE_REVOCATION", false)
	v.SetDefault("HRCLIENT_DEV_ADDR", ":5007")

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: binding flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: HRCLIENT_BASE_URL must be an http(s) URL, got %q", c.BaseURL)
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("config: HRCLIENT_TIMEOUT must be a positive duration, got %q", c.Timeout)
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreBBolt, StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: HRCLIENT_POSTGRES_DSN must be set when HRCLIENT_STORE=postgres")
		}
	default:
		return fmt.Errorf("config: HRCLIENT_STORE must be bbolt, postgres or memory, got %q", c.Store)
	}
	if c.Store == StoreBBolt && c.StateDir == "" {
		return errors.New("config: HRCLIENT_STATE_DIR must be set when HRCLIENT_STORE=bbolt")
	}
	if c.Profile == "" {
		c.Profile = "default"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("config: HRCLIENT_LOG_LEVEL: %w", err)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config: HRCLIENT_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// RequestTimeout parses Timeout. Returns 15s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

// Level returns the configured log level, defaulting to warn.
func (c *Config) Level() slog.Level {
	lvl := slog.LevelWarn
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}

// Logger builds the structured logger described by LogLevel and LogFormat.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// DatabasePath is the bbolt file inside StateDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StateDir, "session.db")
}

// KeyPath is the generated wrapping key file inside StateDir.
func (c *Config) KeyPath() string {
	return filepath.Join(c.StateDir, "session.key")
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".hrclient"
	}
	return filepath.Join(dir, "hrclient")
}
