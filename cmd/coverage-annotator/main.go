package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-annotator/pkg/config"
	"github.com/jupierce/coverage-annotator/pkg/log"
)

var (
	// Global flags
	configPath string
	verbosity  string
	logDir     string

	rootCmd = &cobra.Command{
		Use:   "coverage-annotator",
		Short: "Render counted coverage regions as annotated HTML",
		Long: `coverage-annotator turns a coverage payload (module -> coverage kind ->
counted regions) and the matching source files into a single HTML report.
Each region is wrapped in a covered/uncovered span with its execution count,
and nested regions render as nested spans.

Typical flow:

  1. render   Build coverage.html straight from coverage.json.
  2. compile  Store a payload in a SQLite database for later runs.
  3. bigquery Export per-module summaries of a stored run.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "Log verbosity (error, info, debug, trace)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for a log file (disabled when empty)")
}

// loadConfig reads the config file and applies global flags that were set
// explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("verbosity") {
		cfg.Verbosity = verbosity
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createLogger creates the logger described by cfg
func createLogger(cfg *config.Config) (*log.Logger, error) {
	logger, err := log.New(cfg.LogLevel(), cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
