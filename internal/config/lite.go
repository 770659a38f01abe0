// Package config provides configuration management for the NCCN UAT tools.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// LiteConfig is the configuration for the standalone MCP server and CLI.
// It needs no external services: results go to a local SQLite file.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Cache settings
	CacheMaxItems int           // Maximum validation reports kept in memory
	CacheTTL      time.Duration // TTL for the optional shared cache

	// Batch validation
	BatchWorkers int // Concurrent workers for batch validation

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".nccn-uat")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 1000,
		CacheTTL:      24 * time.Hour,
		BatchWorkers:  runtime.NumCPU(),
		Transport:     "stdio",
		HTTPPort:      8080,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set or not parseable.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("NCCN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("NCCN_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("NCCN_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("NCCN_BATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchWorkers = n
		}
	}

	if v := os.Getenv("NCCN_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("NCCN_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("NCCN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NCCN_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ResultsDBPath returns the path to the results SQLite database.
func (c *LiteConfig) ResultsDBPath() string {
	return filepath.Join(c.DataDir, "results.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data and export directories if they don't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
