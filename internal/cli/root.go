// Package cli wires the evlog commands together.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/evlog-dev/evlog/internal/config"
)

var (
	flagConfig string
	flagDir    string
	flagQuiet  bool
)

var rootCmd = &cobra.Command{
	Use:   "evlog",
	Short: "Durable evidence store with hybrid retrieval",
	Long:  "evlog keeps structured memory entries in an append-only log, derives keyword and vector indices from it, and serves ranked search over both.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default .evlog.toml)")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "memory directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(evolveCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
}

// loadConfig resolves the config file path, loads it, and applies flag
// overrides. Flags win over the file, the file wins over its preset.
func loadConfig() (config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("EVLOG_CONFIG")
	}
	if path == "" {
		path = ".evlog.toml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if flagDir != "" {
		cfg.Memory.Dir = flagDir
	}
	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = config.DefaultDir()
	}
	abs, err := filepath.Abs(cfg.Memory.Dir)
	if err != nil {
		return config.Config{}, fmt.Errorf("resolve memory dir: %w", err)
	}
	cfg.Memory.Dir = abs
	return cfg, nil
}

// newLogger builds the process logger from config. Quiet mode and unknown
// levels both fall back to sensible defaults rather than failing startup.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	if flagQuiet {
		return zerolog.Nop()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
