// Package setup registers the lite MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ServerKey is the name the server is registered under in client configs.
const ServerKey = "nccn-uat-notation"

// BinaryName is the executable registered with the client.
const BinaryName = "mcp-server-lite"

// DataDirEnv is passed to the server to locate its results database.
const DataDirEnv = "NCCN_DATA_DIR"

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	// Other keys are preserved untouched.
	extra map[string]json.RawMessage
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	ConfigPath string // Client config file; resolved per OS when empty
	BinaryPath string // Path to the server binary; searched when empty
	DataDir    string // Data directory passed through the environment
}

// Status represents the current setup status.
type Status struct {
	ConfigPath string   `json:"config_path" yaml:"config_path"`
	Configured bool     `json:"configured" yaml:"configured"`
	ServerPath string   `json:"server_path,omitempty" yaml:"server_path,omitempty"`
	DataDir    string   `json:"data_dir" yaml:"data_dir"`
	Issues     []string `json:"issues" yaml:"issues"`
}

// ConfigPathFor returns the client config path for an OS. getenv is consulted
// for XDG_CONFIG_HOME and APPDATA.
func ConfigPathFor(goos, home string, getenv func(string) string) (string, error) {
	var dir string
	switch goos {
	case "darwin":
		dir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "Claude")
		} else {
			dir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		dir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
	return filepath.Join(dir, "claude_desktop_config.json"), nil
}

// DefaultConfigPath returns the client config path for this machine.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return ConfigPathFor(runtime.GOOS, home, os.Getenv)
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nccn-uat")
}

// LoadConfig reads a client config. A missing file yields an empty config.
func LoadConfig(path string) (*ClaudeDesktopConfig, error) {
	cfg := &ClaudeDesktopConfig{MCPServers: map[string]MCPServerConfig{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.extra, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]MCPServerConfig{}
	}
	return cfg, nil
}

// SaveConfig writes a client config, creating its directory.
func SaveConfig(path string, cfg *ClaudeDesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(cfg.extra)+1)
	for k, v := range cfg.extra {
		out[k] = v
	}
	out["mcpServers"] = cfg.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or updates the server entry and returns the config path used.
func Register(opts Options) (string, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", err
		}
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return "", err
	}

	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = FindBinary(); err != nil {
			return "", fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := MCPServerConfig{Command: binary, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env[DataDirEnv] = opts.DataDir
	}
	cfg.MCPServers[ServerKey] = entry

	return path, SaveConfig(path, cfg)
}

// FindBinary looks for the server binary on PATH and in common locations.
func FindBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	locations := []string{
		"./" + BinaryName,
		"./build/" + BinaryName,
		filepath.Join(os.Getenv("HOME"), ".local", "bin", BinaryName),
		"/usr/local/bin/" + BinaryName,
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}

	return "", fmt.Errorf("binary '%s' not found in common locations", BinaryName)
}

// GetStatus inspects the client config at path (resolved when empty).
func GetStatus(path string) (*Status, error) {
	status := &Status{Issues: []string{}}

	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	status.ConfigPath = path

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if entry, ok := cfg.MCPServers[ServerKey]; ok {
		status.Configured = true
		status.ServerPath = entry.Command
		status.DataDir = entry.Env[DataDirEnv]

		info, err := os.Stat(entry.Command)
		switch {
		case os.IsNotExist(err):
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
		case err == nil && info.Mode()&0111 == 0:
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary is not executable: %s", entry.Command))
		}
	} else {
		status.Issues = append(status.Issues, "NCCN UAT notation server is not registered")
	}

	if status.DataDir == "" {
		status.DataDir = DefaultDataDir()
	}
	if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
	}

	return status, nil
}

// Healthy reports whether every issue is only informational.
func (s *Status) Healthy() bool {
	if !s.Configured {
		return false
	}
	for _, issue := range s.Issues {
		if !strings.Contains(issue, "will be created") {
			return false
		}
	}
	return true
}
