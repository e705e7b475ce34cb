package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-annotator/pkg/config"
	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/log"
	"github.com/jupierce/coverage-annotator/pkg/report"
	"github.com/jupierce/coverage-annotator/pkg/store"
)

var (
	renderCoverageFile string
	renderGoProfile    string
	renderDBPath       string
	renderRunID        int64
	renderSourceDirs   []string
	renderOutput       string
	renderTitle        string
	renderStrict       bool
	renderConcurrency  int
	renderExt          string

	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Generate an annotated HTML coverage report",
		Long: `Render every module of a coverage payload as annotated source.

Exactly one input is required:
  --coverage    coverage.json written by the instrumented test run
  --go-profile  a Go coverage profile (coverage.out)
  --db          a database filled by 'compile' (latest run unless --run)

Source files are looked up in each --source-dir, first by the path recorded
in the payload, then by the module name with dots as directory separators.
Modules without a source file appear in the summary table only.`,
		Example: `  # Render an Elm coverage payload
  coverage-annotator render --coverage .coverage/coverage.json --source-dir src

  # Render a Go profile against the module in the current directory
  coverage-annotator render --go-profile coverage.out --output out/coverage.html

  # Render the latest stored run and fail on badly nested regions
  coverage-annotator render --db coverage.db --source-dir src --strict`,
		RunE: runRender,
	}
)

func init() {
	renderCmd.Flags().StringVar(&renderCoverageFile, "coverage", "", "Coverage payload (JSON)")
	renderCmd.Flags().StringVar(&renderGoProfile, "go-profile", "", "Go coverage profile")
	renderCmd.Flags().StringVar(&renderDBPath, "db", "", "SQLite database written by compile")
	renderCmd.Flags().Int64Var(&renderRunID, "run", 0, "Run id to render from --db (defaults to the latest)")
	renderCmd.Flags().StringArrayVar(&renderSourceDirs, "source-dir", nil, "Directory to search for sources (repeatable)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "Output HTML file (default from config: coverage.html)")
	renderCmd.Flags().StringVar(&renderTitle, "title", "", "Report title")
	renderCmd.Flags().BoolVar(&renderStrict, "strict", false, "Abort when a module's regions do not nest")
	renderCmd.Flags().IntVar(&renderConcurrency, "concurrency", 0, "Modules rendered in parallel")
	renderCmd.Flags().StringVar(&renderExt, "ext", ".elm", "Extension for sources derived from module names")
	renderCmd.MarkFlagsMutuallyExclusive("coverage", "go-profile", "db")
	renderCmd.MarkFlagsOneRequired("coverage", "go-profile", "db")

	rootCmd.AddCommand(renderCmd)
}

func applyRenderFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("source-dir") {
		cfg.SourceDirs = renderSourceDirs
	}
	if flags.Changed("output") {
		cfg.Output = renderOutput
	}
	if flags.Changed("title") {
		cfg.Title = renderTitle
	}
	if flags.Changed("strict") {
		cfg.Strict = renderStrict
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = renderConcurrency
	}
	return cfg.Validate()
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRenderFlags(cmd, cfg); err != nil {
		return err
	}

	logger, err := createLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	sources := report.DirSources{Dirs: cfg.SourceDirs, Ext: renderExt}

	payload, err := loadPayload(logger, sources)
	if err != nil {
		return err
	}
	logger.Info("Loaded coverage for %d modules", len(payload.Modules))

	logger.Progress("Rendering %d modules...", len(payload.Modules))
	builder := report.NewBuilder(cfg, logger, sources)
	r, err := builder.Build(context.Background(), payload)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if err := report.WriteFile(cfg.Output, r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	abs, err := filepath.Abs(cfg.Output)
	if err != nil {
		abs = cfg.Output
	}
	logger.Success("Coverage report written: %s (%d/%d regions covered, %.1f%%)",
		cfg.Output, r.Summary.Total.Hit, r.Summary.Total.Total, r.Summary.Total.Percent())
	logger.Info("\n🌐 Open HTML report: file://%s", abs)
	return nil
}

// loadPayload reads whichever input was given on the command line.
func loadPayload(logger *log.Logger, sources report.DirSources) (*coverage.Payload, error) {
	switch {
	case renderCoverageFile != "":
		payload, moduleErrs, err := coverage.DecodeFile(renderCoverageFile)
		if err != nil {
			return nil, err
		}
		for _, me := range moduleErrs {
			logger.Warning("No coverage data for %s: %v", me.Module, me.Err)
		}
		return payload, nil

	case renderGoProfile != "":
		modulePath := ""
		for _, dir := range sources.Dirs {
			if modulePath = coverage.GoModulePath(dir); modulePath != "" {
				break
			}
		}
		logger.Debug("Go module path: %q", modulePath)
		lookup := func(relPath string) (string, bool) {
			return sources.Lookup("", relPath)
		}
		return coverage.LoadGoProfiles(renderGoProfile, modulePath, lookup)

	default:
		if _, err := os.Stat(renderDBPath); err != nil {
			return nil, fmt.Errorf("database not found at %s, run 'compile' first", renderDBPath)
		}
		db, err := store.Open(renderDBPath)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		runID := renderRunID
		if runID == 0 {
			run, err := db.LatestRun()
			if errors.Is(err, store.ErrNoRuns) {
				return nil, fmt.Errorf("%s: %w", renderDBPath, err)
			}
			if err != nil {
				return nil, err
			}
			runID = run.ID
			logger.Info("Using run %d (%s, %s)", run.ID, run.Label, run.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return db.LoadRun(runID)
	}
}
