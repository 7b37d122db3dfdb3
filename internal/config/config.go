// Package config loads and validates neurond configuration.
// Configuration lives at .neurond/config.yaml under the workspace root;
// absent file or absent fields fall back to defaults so a bare workspace
// always starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all neurond configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Message bus configuration
	Bus BusConfig `yaml:"bus"`

	// Governance configuration
	Governance GovernanceConfig `yaml:"governance"`

	// Coordinator configuration
	Coordinator CoordinatorConfig `yaml:"coordinator"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:        "neurond",
		Version:     "0.1.0",
		Bus:         DefaultBusConfig(),
		Governance:  DefaultGovernanceConfig(),
		Coordinator: DefaultCoordinatorConfig(),
		Logging:     DefaultLoggingConfig(),
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".neurond", "config.yaml")
}

// Load reads the config file for the given workspace, applying defaults for
// missing fields and environment overrides last. A missing file is not an
// error; defaults are returned.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to the workspace.
func (c *Config) Save(workspace string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "neurond"
	}
	c.Bus.applyDefaults()
	c.Governance.applyDefaults()
	c.Coordinator.applyDefaults()
	c.Logging.applyDefaults()
}

// applyEnvOverrides applies NEUROND_* environment variables over the loaded
// values. Only operationally useful knobs are exposed.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEUROND_YOLO"); v != "" {
		c.Coordinator.YoloMode = v == "1" || v == "true"
	}
	if v := os.Getenv("NEUROND_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Coordinator.TickInterval = d
		}
	}
	if v := os.Getenv("NEUROND_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Coordinator.PollInterval = d
		}
	}
	if v := os.Getenv("NEUROND_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Bus.HistorySize = n
		}
	}
	if v := os.Getenv("NEUROND_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Bus.HistorySize <= 0 {
		return fmt.Errorf("bus.history_size must be positive, got %d", c.Bus.HistorySize)
	}
	if c.Coordinator.TickInterval <= 0 {
		return fmt.Errorf("coordinator.tick_interval must be positive, got %v", c.Coordinator.TickInterval)
	}
	if c.Coordinator.PollInterval <= 0 {
		return fmt.Errorf("coordinator.poll_interval must be positive, got %v", c.Coordinator.PollInterval)
	}
	if c.Coordinator.PendingCeiling <= 0 {
		return fmt.Errorf("coordinator.pending_ceiling must be positive, got %d", c.Coordinator.PendingCeiling)
	}
	return nil
}
