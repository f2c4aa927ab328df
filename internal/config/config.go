// Package config loads ambient application configuration — the root
// directory the storage core reads and writes scopes under, plus logging
// and checkpoint tuning — using the same YAML-file-plus-environment-
// override shape the teacher uses for its own config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// UserDir is the root every workspace/project/application scope lives
	// under (§3.4).
	UserDir string   `yaml:"user_dir"`
	Kv      KvConfig `yaml:"kv"`
	Log     LogConfig `yaml:"log"`
}

type KvConfig struct {
	BusyTimeout      time.Duration `yaml:"busy_timeout"`
	CheckpointPeriod time.Duration `yaml:"checkpoint_period"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	Debug bool   `yaml:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Kv: KvConfig{
			BusyTimeout:      5 * time.Second,
			CheckpointPeriod: 2 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function. This allows tests to provide isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables override config file
	if userDir := getenv("SAPIC_USER_DIR"); userDir != "" {
		cfg.UserDir = userDir
	}
	if cfg.UserDir == "" {
		home, _ := os.UserHomeDir()
		cfg.UserDir = filepath.Join(home, ".sapic")
	}

	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sapic", "config.yaml")
	}

	// Fall back to ~/.config
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sapic", "config.yaml")
}
