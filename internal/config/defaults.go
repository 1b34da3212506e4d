package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/wolfbed/dspx/internal/device"
	"github.com/wolfbed/dspx/internal/hasher"
)

// GetDefault returns the default configuration.
func GetDefault() *Config {
	return &Config{
		Workers:       min(32, 2*runtime.NumCPU()),
		MemoryBudget:  "16MB",
		ChunkSize:     hasher.DefaultChunkSize,
		BatchSize:     10000,
		HashTimeout:   120,
		PatternsPath:  defaultPatternsPath(),
		SessionRoot:   DefaultSessionRoot(),
		HDDQueueDepth: device.DefaultHDDQueueDepth,
		SSDQueueDepth: device.DefaultSSDQueueDepth,
		Excludes: []string{
			".git",
			"lost+found",
		},
		Log: Log{
			Filename:   "dspx.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// DefaultSessionRoot is the per-user cache location holding session dirs.
func DefaultSessionRoot() string {
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "dspx", "sessions")
	}
	return filepath.Join(".", ".dspx", "sessions")
}

func defaultPatternsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dspx_residuals_patterns.csv"
	}
	return filepath.Join(home, ".config", "dspx", "dspx_residuals_patterns.csv")
}
