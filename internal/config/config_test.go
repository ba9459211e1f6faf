package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with every HRCLIENT_ variable
// cleared.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for key := range defaultsByKey() {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func defaultsByKey() map[string]struct{} {
	keys := map[string]struct{}{"HRCLIENT_PASSPHRASE": {}}
	for _, key := range flagKeys {
		keys[key] = struct{}{}
	}
	return keys
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5007/api", cfg.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
	assert.Equal(t, StoreBBolt, cfg.Store)
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.RequireRevocation)
	assert.Equal(t, ":5007", cfg.DevAddr)
	assert.NotEmpty(t, cfg.StateDir)
	assert.Equal(t, filepath.Join(cfg.StateDir, "session.db"), cfg.DatabasePath())
}

func TestLoad_EnvVarOverride(t *testing.T) {
	isolate(t)
	t.Setenv("HRCLIENT_BASE_URL", "https://hr.example.com/api")
	t.Setenv("HRCLIENT_TIMEOUT", "3s")
	t.Setenv("HRCLIENT_STORE", "Memory")
	t.Setenv("HRCLIENT_PROFILE", "work")
	t.Setenv("HRCLIENT_LOG_LEVEL", "debug")
	t.Setenv("HRCLIENT_LOG_FORMAT", "JSON")
	t.Setenv("HRCLIENT_REQUIRE_REVOCATION", "true")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://hr.example.com/api", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout())
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "work", cfg.Profile)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.RequireRevocation)
}

func TestLoad_EnvFile(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("HRCLIENT_PROFILE=from-file\nHRCLIENT_TIMEOUT=7s\n"), 0o600))
	t.Setenv("HRCLIENT_TIMEOUT", "9s")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Profile)
	assert.Equal(t, 9*time.Second, cfg.RequestTimeout(), "environment overrides .env")
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("HRCLIENT_PROFILE", "env")
	t.Setenv("HRCLIENT_STORE", "memory")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("profile", "", "")
	flags.String("store", "", "")
	require.NoError(t, flags.Parse([]string{"--profile", "flag"}))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "flag", cfg.Profile)
	assert.Equal(t, StoreMemory, cfg.Store, "unchanged flags fall through to the environment")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad scheme", map[string]string{"HRCLIENT_BASE_URL": "ftp://hr.example.com"}},
		{"no host", map[string]string{"HRCLIENT_BASE_URL": "http://"}},
		{"bad timeout", map[string]string{"HRCLIENT_TIMEOUT": "soon"}},
		{"negative timeout", map[string]string{"HRCLIENT_TIMEOUT": "-1s"}},
		{"unknown store", map[string]string{"HRCLIENT_STORE": "redis"}},
		{"postgres without dsn", map[string]string{"HRCLIENT_STORE": "postgres"}},
		{"bad level", map[string]string{"HRCLIENT_LOG_LEVEL": "loud"}},
		{"bad format", map[string]string{"HRCLIENT_LOG_FORMAT": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(nil)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_PostgresWithDSN(t *testing.T) {
	isolate(t)
	t.Setenv("HRCLIENT_STORE", "postgres")
	t.Setenv("HRCLIENT_POSTGRES_DSN", "postgres://localhost/hr")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
}

func TestRequestTimeout_InvalidFallsBack(t *testing.T) {
	cfg := &Config{Timeout: "invalid"}
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
}
