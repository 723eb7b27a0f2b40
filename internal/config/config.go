// Package config loads gatewayd's configuration from a YAML file,
// environment variable overrides, and CLI flags, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is gatewayd's top-level configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// AgentConfig names the agent binary this gateway drives and the
// dotdir under $HOME it reads projects and sidecar config from.
type AgentConfig struct {
	Binary string `yaml:"binary"`
	Dotdir string `yaml:"dotdir"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration used when no file is
// supplied.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Binary: "claude",
			Dotdir: ".claude",
		},
		Server: ServerConfig{
			Port: 8787,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (a YAML file; KEY=VALUE .env
// syntax is not parsed) if it exists, layers environment variable
// overrides on top, and returns the result. A missing path is not an
// error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, cfg.applyEnv()
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return cfg, cfg.applyEnv()
}

// applyEnv overrides fields from AGENTGATE_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("AGENTGATE_AGENT_BINARY"); v != "" {
		c.Agent.Binary = v
	}
	if v := os.Getenv("AGENTGATE_AGENT_DOTDIR"); v != "" {
		c.Agent.Dotdir = v
	}
	if v := os.Getenv("AGENTGATE_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENTGATE_PORT %q: %w", v, err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("AGENTGATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AGENTGATE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	return nil
}
