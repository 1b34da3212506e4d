// Package config loads and persists dspx settings. Each session takes an
// immutable snapshot of the loaded config; nothing reads it as global state
// mid-run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wolfbed/dspx/pkg/utils"
)

// Config is the persisted settings file.
type Config struct {
	Workers       int      `yaml:"workers"`        // 0 = min(32, 2*NumCPU)
	MemoryBudget  string   `yaml:"memory_budget"`  // ceiling for in-flight read buffers, e.g. "16MB"
	ChunkSize     int      `yaml:"chunk_size"`     // hash read buffer, bytes
	BatchSize     int      `yaml:"batch_size"`     // entries per atomic store commit
	HashTimeout   int      `yaml:"hash_timeout"`   // per-file stall threshold, seconds; 0 disables
	PatternsPath  string   `yaml:"patterns_path"`  // residual pattern CSV
	SessionRoot   string   `yaml:"session_root"`   // parent directory for session dirs
	PrimaryDevice string   `yaml:"primary_device"` // keep-preference device id, may be empty
	HDDQueueDepth int      `yaml:"hdd_queue_depth"`
	SSDQueueDepth int      `yaml:"ssd_queue_depth"`
	Excludes      []string `yaml:"exclude_patterns"`
	DryRun        bool     `yaml:"dry_run"`
	Log           Log      `yaml:"log"`
}

// Log configures the rotating session log.
type Log struct {
	Filename   string `yaml:"filename"` // relative names resolve inside the session dir
	MaxSizeMB  int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
	Verbose    bool   `yaml:"verbose"`
}

// Load reads the config file, falling back to defaults when it is absent.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefault(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := GetDefault()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Save writes the config to disk, creating parent directories as needed.
func Save(config *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects configurations that would break a run.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be >= 0")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must be >= 0")
	}
	if c.HashTimeout < 0 {
		return fmt.Errorf("hash timeout must be >= 0")
	}
	if c.HDDQueueDepth < 1 || c.SSDQueueDepth < 1 {
		return fmt.Errorf("queue depths must be >= 1")
	}
	if c.MemoryBudget != "" {
		if _, err := utils.ParseSize(c.MemoryBudget); err != nil {
			return fmt.Errorf("invalid memory budget: %w", err)
		}
	}
	for _, pattern := range c.Excludes {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// MemoryBudgetBytes parses the configured ceiling; 0 means unset.
func (c *Config) MemoryBudgetBytes() int64 {
	if c.MemoryBudget == "" {
		return 0
	}
	n, err := utils.ParseSize(c.MemoryBudget)
	if err != nil {
		return 0
	}
	return n
}

// GetConfigPath returns the default config file location.
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "dspx", "settings.yaml"), nil
}

// EnsureConfigExists writes the default config on first run and returns the
// config path either way.
func EnsureConfigExists() (string, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(GetDefault(), configPath); err != nil {
			return "", err
		}
	}
	return configPath, nil
}
