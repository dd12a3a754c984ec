package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full redline service configuration. Every field can be
// overridden by environment variables (see main.go); the YAML file is
// optional.
type Config struct {
	Listen           string    `yaml:"listen"`
	AuthToken        string    `yaml:"auth_token"`
	ObsDB            string    `yaml:"obs_db"`
	ObsRetentionDays int       `yaml:"obs_retention_days"`
	MaxUploadMB      int       `yaml:"max_upload_mb"`
	LogLevel         string    `yaml:"log_level"`
	Sessions         Sessions  `yaml:"sessions"`
	Gate             Gate      `yaml:"gate"`
	MCP              MCPConfig `yaml:"mcp"`
}

// Sessions bounds concurrent document sessions.
type Sessions struct {
	Max         int `yaml:"max"`
	WaitSeconds int `yaml:"wait_seconds"`
}

// Gate configures upload admission checks.
type Gate struct {
	MaxBombRatio      int `yaml:"max_bomb_ratio"`
	MaxUncompressedMB int `yaml:"max_uncompressed_mb"`
}

// MCPConfig configures the optional MCP-over-QUIC transport.
type MCPConfig struct {
	Transport string `yaml:"transport"` // "" (disabled) or "quic"
	Addr      string `yaml:"addr"`
	TLSCert   string `yaml:"tls_cert"`
	TLSKey    string `yaml:"tls_key"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:           ":8086",
		ObsDB:            "db/obs.db",
		ObsRetentionDays: 30,
		MaxUploadMB:      50,
		LogLevel:         "info",
		Sessions: Sessions{
			Max:         4,
			WaitSeconds: 30,
		},
		Gate: Gate{
			MaxBombRatio:      100,
			MaxUncompressedMB: 500,
		},
		MCP: MCPConfig{
			Addr: ":9446",
		},
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.Sessions.Max <= 0 {
		return fmt.Errorf("sessions.max must be > 0")
	}
	if c.ObsRetentionDays <= 0 {
		return fmt.Errorf("obs_retention_days must be > 0")
	}
	if c.Gate.MaxBombRatio <= 0 {
		return fmt.Errorf("gate.max_bomb_ratio must be > 0")
	}
	if c.MCP.Transport != "" && c.MCP.Transport != "quic" {
		return fmt.Errorf("mcp.transport must be empty or \"quic\"")
	}
	return nil
}
