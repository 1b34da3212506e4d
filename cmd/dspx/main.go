package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wolfbed/dspx/internal/config"
)

var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	configPath  string
	sessionRoot string
	verbose     bool
)

const envPrefix = "DSPX"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dspx",
	Short: "Data store pruner",
	Long: `dspx cleans directory trees by finding OS residual files, exact duplicate
files, and empty directories. Scanning is batched and resumable; nothing is
deleted without an explicitly approved action list.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
}

func init() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.config/dspx/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&sessionRoot, "session-root", "", "directory holding session state")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr instead of the session log file")

	for _, name := range []string{"config", "session-root", "verbose"} {
		cobra.CheckErr(viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)))
	}
}

// loadConfig loads the settings file and applies flag/env overrides.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		var err error
		path, err = config.EnsureConfigExists()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if root := viper.GetString("session-root"); root != "" {
		cfg.SessionRoot = root
	}
	if viper.GetBool("verbose") {
		cfg.Log.Verbose = true
	}
	return cfg, nil
}

// setupLogging points slog at a rotating file under the session root, or at
// stderr when verbose.
func setupLogging(cfg *config.Config) error {
	if cfg.Log.Verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return nil
	}

	filename := cfg.Log.Filename
	if !filepath.IsAbs(filename) {
		if err := os.MkdirAll(cfg.SessionRoot, 0755); err != nil {
			return err
		}
		filename = filepath.Join(cfg.SessionRoot, filename)
	}

	writer := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(writer, nil)))
	return nil
}
