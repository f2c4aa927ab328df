package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockEnv creates an environment lookup function from a map.
func mockEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if cfg.Kv.BusyTimeout != 5*time.Second {
		t.Errorf("DefaultConfig() Kv.BusyTimeout = %v, want %v", cfg.Kv.BusyTimeout, 5*time.Second)
	}
	if cfg.Kv.CheckpointPeriod != 2*time.Minute {
		t.Errorf("DefaultConfig() Kv.CheckpointPeriod = %v, want %v", cfg.Kv.CheckpointPeriod, 2*time.Minute)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("DefaultConfig() Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.UserDir != "" {
		t.Errorf("DefaultConfig() UserDir should be empty before Load resolves it, got %q", cfg.UserDir)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "sapic")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
user_dir: /srv/sapic-data
kv:
  busy_timeout: 10s
  checkpoint_period: 1m
log:
  level: debug
  file: /var/log/sapic.log
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.UserDir != "/srv/sapic-data" {
		t.Errorf("LoadWithEnv() UserDir = %q, want %q", cfg.UserDir, "/srv/sapic-data")
	}
	if cfg.Kv.BusyTimeout != 10*time.Second {
		t.Errorf("LoadWithEnv() Kv.BusyTimeout = %v, want %v", cfg.Kv.BusyTimeout, 10*time.Second)
	}
	if cfg.Kv.CheckpointPeriod != time.Minute {
		t.Errorf("LoadWithEnv() Kv.CheckpointPeriod = %v, want %v", cfg.Kv.CheckpointPeriod, time.Minute)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("LoadWithEnv() Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.File != "/var/log/sapic.log" {
		t.Errorf("LoadWithEnv() Log.File = %q, want %q", cfg.Log.File, "/var/log/sapic.log")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "sapic")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `user_dir: /from/file`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
		"SAPIC_USER_DIR":  "/from/env",
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.UserDir != "/from/env" {
		t.Errorf("LoadWithEnv() UserDir = %q, want %q (env override)", cfg.UserDir, "/from/env")
	}
}

func TestLoadNoConfigFileFallsBackToHomeDir(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.Kv.BusyTimeout != 5*time.Second {
		t.Errorf("LoadWithEnv() without file should use default Kv.BusyTimeout, got %v", cfg.Kv.BusyTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("LoadWithEnv() without file should use default Log.Level, got %q", cfg.Log.Level)
	}
	home, _ := os.UserHomeDir()
	if cfg.UserDir != filepath.Join(home, ".sapic") {
		t.Errorf("LoadWithEnv() UserDir = %q, want home-relative default", cfg.UserDir)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "sapic")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	invalidContent := `
user_dir: [this is invalid yaml
kv:
  busy_timeout: not a duration
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	_, err := LoadWithEnv(env)
	if err == nil {
		t.Error("LoadWithEnv() with invalid YAML should return error")
	}
}

func TestGetConfigPathXDG(t *testing.T) {
	t.Parallel()
	tmpDir := "/custom/config/path"

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	path := getConfigPathWithEnv(env)
	expected := filepath.Join(tmpDir, "sapic", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestGetConfigPathFallback(t *testing.T) {
	t.Parallel()
	env := mockEnv(map[string]string{})

	path := getConfigPathWithEnv(env)
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".config", "sapic", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "sapic")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
kv:
  busy_timeout: 30s
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.Kv.BusyTimeout != 30*time.Second {
		t.Errorf("LoadWithEnv() Kv.BusyTimeout = %v, want %v", cfg.Kv.BusyTimeout, 30*time.Second)
	}
	// default preserved since the file didn't set it
	if cfg.Kv.CheckpointPeriod != 2*time.Minute {
		t.Errorf("LoadWithEnv() Kv.CheckpointPeriod = %v, want %v (default)", cfg.Kv.CheckpointPeriod, 2*time.Minute)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("LoadWithEnv() Log.Level = %q, want %q (default)", cfg.Log.Level, "info")
	}
}
