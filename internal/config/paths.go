package config

import (
	"os"
	"path/filepath"
)

// HomeDir returns the current user's home directory.
func HomeDir() (string, error) {
	return os.UserHomeDir()
}

// AgentRoot returns the directory under which per-project conversation
// logs live: <home>/<dotdir>/projects.
func (c *Config) AgentRoot() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, c.Agent.Dotdir, "projects"), nil
}

// SidecarPath returns the project registry's sidecar config file.
func (c *Config) SidecarPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, c.Agent.Dotdir, "project-config.json"), nil
}

// ToolConfigPath returns the well-known MCP-style tool-config path:
// <home>/.<agent>.json.
func (c *Config) ToolConfigPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+c.Agent.Binary+".json"), nil
}

// AuditDBPath returns the invocation-audit database path.
func (c *Config) AuditDBPath() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, c.Agent.Dotdir, "audit.db"), nil
}
