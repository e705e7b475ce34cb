package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/store"
)

var (
	compileCoverageFile string
	compileDBPath       string
	compileLabel        string

	compileCmd = &cobra.Command{
		Use:   "compile",
		Short: "Store a coverage payload in a SQLite database",
		Long: `Decode a coverage payload and store it as a new run in a SQLite
database. Stored runs can be rendered later with 'render --db' and exported
with 'bigquery ingest'.

Modules whose entries fail to decode are stored without regions, matching
what render does with the same payload.`,
		Example: `  # Store a payload
  coverage-annotator compile --coverage .coverage/coverage.json --db coverage.db

  # Store with a label to tell runs apart
  coverage-annotator compile --coverage coverage.json --db coverage.db --label nightly-2026-10-18`,
		RunE: runCompile,
	}
)

func init() {
	compileCmd.Flags().StringVar(&compileCoverageFile, "coverage", "", "Coverage payload (JSON, required)")
	compileCmd.Flags().StringVar(&compileDBPath, "db", "coverage.db", "SQLite database to create or update")
	compileCmd.Flags().StringVar(&compileLabel, "label", "", "Free-form label stored with the run")
	compileCmd.MarkFlagRequired("coverage")

	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := createLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Info("Compiling %s into %s", compileCoverageFile, compileDBPath)

	payload, moduleErrs, err := coverage.DecodeFile(compileCoverageFile)
	if err != nil {
		return err
	}
	for _, me := range moduleErrs {
		logger.Warning("No coverage data for %s: %v", me.Module, me.Err)
	}

	db, err := store.Open(compileDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := db.SaveRun(compileLabel, compileCoverageFile, payload, time.Now())
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	summary := coverage.Summarize(payload)
	logger.Success("Stored run %d: %d modules, %d/%d regions covered",
		runID, len(summary.Modules), summary.Total.Hit, summary.Total.Total)
	return nil
}
