package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liteEnvVars = []string{
	"NCCN_DATA_DIR",
	"NCCN_CACHE_MAX_ITEMS",
	"NCCN_CACHE_TTL",
	"NCCN_BATCH_WORKERS",
	"NCCN_TRANSPORT",
	"NCCN_HTTP_PORT",
	"NCCN_LOG_LEVEL",
	"NCCN_LOG_FORMAT",
}

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, ".nccn-uat", filepath.Base(cfg.DataDir))
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Positive(t, cfg.BatchWorkers)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearLiteEnv(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearLiteEnv(t)

	t.Setenv("NCCN_DATA_DIR", "/tmp/test-nccn")
	t.Setenv("NCCN_CACHE_MAX_ITEMS", "500")
	t.Setenv("NCCN_CACHE_TTL", "12h")
	t.Setenv("NCCN_BATCH_WORKERS", "3")
	t.Setenv("NCCN_TRANSPORT", "http")
	t.Setenv("NCCN_HTTP_PORT", "9090")
	t.Setenv("NCCN_LOG_LEVEL", "debug")
	t.Setenv("NCCN_LOG_FORMAT", "text")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-nccn", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 3, cfg.BatchWorkers)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadLiteConfig_InvalidNumbersIgnored(t *testing.T) {
	clearLiteEnv(t)

	t.Setenv("NCCN_CACHE_MAX_ITEMS", "lots")
	t.Setenv("NCCN_BATCH_WORKERS", "-2")
	t.Setenv("NCCN_HTTP_PORT", "0")
	t.Setenv("NCCN_CACHE_TTL", "tomorrow")

	cfg := LoadLiteConfig()
	def := DefaultLiteConfig()

	assert.Equal(t, def.CacheMaxItems, cfg.CacheMaxItems)
	assert.Equal(t, def.BatchWorkers, cfg.BatchWorkers)
	assert.Equal(t, def.HTTPPort, cfg.HTTPPort)
	assert.Equal(t, def.CacheTTL, cfg.CacheTTL)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.nccn-uat"}

	assert.Equal(t, "/home/user/.nccn-uat/results.db", cfg.ResultsDBPath())
	assert.Equal(t, "/home/user/.nccn-uat/exports", cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "nccn")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

// clearLiteEnv unsets every lite variable for the duration of the test.
func clearLiteEnv(t *testing.T) {
	t.Helper()
	for _, v := range liteEnvVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
