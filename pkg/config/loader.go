package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidLevel = errors.New("invalid log level")

// LoadConfig reads config.yaml. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes the config to the specified path
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLevel, cfg.Log.Level)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Discovery.Interval <= 0 {
		cfg.Discovery.Interval = 2 * time.Second
	}
	if cfg.Termination.Timeout <= 0 {
		cfg.Termination.Timeout = 5 * time.Second
	}
	if cfg.Termination.ForceKillWait <= 0 {
		cfg.Termination.ForceKillWait = 2 * time.Second
	}
	if cfg.Launch.SettleDelay <= 0 {
		cfg.Launch.SettleDelay = 2 * time.Second
	}
	if cfg.Launch.LogOutput == nil {
		on := true
		cfg.Launch.LogOutput = &on
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.UI.RunningColor == "" {
		cfg.UI.RunningColor = "#2ecc71"
	}
	if cfg.UI.StoppedColor == "" {
		cfg.UI.StoppedColor = "#7f8c8d"
	}
}
