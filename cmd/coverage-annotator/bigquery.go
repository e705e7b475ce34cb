package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/spf13/cobra"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/store"
)

// BigQuery command flags
var (
	bqProject string
	bqDataset string
	bqDBPath  string
	bqRunID   int64
	bqModules []string
)

// ModuleCoverageRow is one row of the module_coverage table.
type ModuleCoverageRow struct {
	IngestionTime time.Time `bigquery:"ingestion_time"`
	RunID         int64     `bigquery:"run_id"`
	RunLabel      string    `bigquery:"run_label"`
	Module        string    `bigquery:"module"`
	SourcePath    string    `bigquery:"source_path"`
	Kind          string    `bigquery:"kind"`
	KindLabel     string    `bigquery:"kind_label"`
	HitRegions    int       `bigquery:"hit_regions"`
	TotalRegions  int       `bigquery:"total_regions"`
	CoveragePct   float64   `bigquery:"coverage_pct"`
}

const moduleCoverageTable = "module_coverage"

type labelFunc func(coverage.Kind) string

var bigqueryCmd = &cobra.Command{
	Use:   "bigquery",
	Short: "BigQuery operations",
	Long:  `Export stored coverage runs to Google BigQuery for trend analysis.`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest per-module coverage of a stored run into BigQuery",
	Long: `Ingest the per-module, per-kind region counts of one run from the
SQLite database written by 'compile'.

Creates the module_coverage table in the dataset if needed; the dataset is
created too.`,
	Example: `  # Ingest the latest run
  coverage-annotator bigquery --project my-project --dataset coverage \
    ingest --db coverage.db

  # Ingest a specific run, only some modules
  coverage-annotator bigquery --project my-project --dataset coverage \
    ingest --db coverage.db --run 12 --module 'Data.*'`,
	RunE: runIngest,
}

func init() {
	bigqueryCmd.PersistentFlags().StringVar(&bqProject, "project", "", "GCP project ID (required)")
	bigqueryCmd.PersistentFlags().StringVar(&bqDataset, "dataset", "", "BigQuery dataset name (required)")
	bigqueryCmd.MarkPersistentFlagRequired("project")
	bigqueryCmd.MarkPersistentFlagRequired("dataset")

	ingestCmd.Flags().StringVar(&bqDBPath, "db", "coverage.db", "SQLite database written by compile")
	ingestCmd.Flags().Int64Var(&bqRunID, "run", 0, "Run id to ingest (defaults to the latest)")
	ingestCmd.Flags().StringArrayVar(&bqModules, "module", []string{"*"}, "Module name glob patterns (repeatable, OR logic)")

	bigqueryCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(bigqueryCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ingestionTime := time.Now().UTC()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := createLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	if _, err := os.Stat(bqDBPath); err != nil {
		return fmt.Errorf("database not found at %s, run 'compile' first", bqDBPath)
	}
	db, err := store.Open(bqDBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := selectRun(db, bqRunID)
	if err != nil {
		return err
	}
	logger.Info("Ingesting run %d (%s) into %s.%s", run.ID, run.Label, bqProject, bqDataset)

	stats, err := db.KindStats(run.ID)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}
	rows := buildModuleCoverageRows(run, stats, bqModules, cfg.Label, ingestionTime)
	logger.Info("%d rows after module filter %v", len(rows), bqModules)
	if len(rows) == 0 {
		logger.Warning("No modules match the filter criteria")
		return nil
	}

	client, err := bigquery.NewClient(ctx, bqProject)
	if err != nil {
		return fmt.Errorf("create BigQuery client: %w", err)
	}
	defer client.Close()

	if err := ensureBQDatasetAndTable(ctx, client); err != nil {
		return fmt.Errorf("setup BigQuery: %w", err)
	}

	inserter := client.Dataset(bqDataset).Table(moduleCoverageTable).Inserter()

	const batchSize = 500
	inserted := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := make([]*ModuleCoverageRow, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, &rows[i])
		}
		if err := inserter.Put(ctx, batch); err != nil {
			logger.Warning("Batch insert failed at offset %d: %v", start, err)
			continue
		}
		inserted += len(batch)
	}

	logger.Success("Ingested %d/%d rows into %s.%s.%s", inserted, len(rows), bqProject, bqDataset, moduleCoverageTable)
	return nil
}

func selectRun(db *store.Store, runID int64) (store.Run, error) {
	runs, err := db.Runs()
	if err != nil {
		return store.Run{}, err
	}
	if len(runs) == 0 {
		return store.Run{}, store.ErrNoRuns
	}
	if runID == 0 {
		return runs[0], nil
	}
	for _, r := range runs {
		if r.ID == runID {
			return r, nil
		}
	}
	return store.Run{}, fmt.Errorf("run %d not found", runID)
}

// buildModuleCoverageRows turns per-kind stats into table rows, keeping
// modules that match any of the glob patterns.
func buildModuleCoverageRows(run store.Run, stats []store.KindStat, patterns []string, label labelFunc, at time.Time) []ModuleCoverageRow {
	var rows []ModuleCoverageRow
	for _, st := range stats {
		if !matchesAnyGlob(st.Module, patterns) {
			continue
		}
		rows = append(rows, ModuleCoverageRow{
			IngestionTime: at,
			RunID:         run.ID,
			RunLabel:      run.Label,
			Module:        st.Module,
			SourcePath:    st.Path,
			Kind:          string(st.Kind),
			KindLabel:     label(st.Kind),
			HitRegions:    st.Hit,
			TotalRegions:  st.Total,
			CoveragePct:   st.Percent(),
		})
	}
	return rows
}

// matchesAnyGlob returns true if value matches any of the glob patterns (OR logic).
func matchesAnyGlob(value string, patterns []string) bool {
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, value); matched {
			return true
		}
	}
	return false
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Already Exists") ||
		strings.Contains(msg, "alreadyExists") ||
		strings.Contains(msg, "409")
}

// ensureBQDatasetAndTable creates the dataset and table if they don't exist.
func ensureBQDatasetAndTable(ctx context.Context, client *bigquery.Client) error {
	dataset := client.Dataset(bqDataset)

	if err := dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create dataset: %w", err)
		}
	}

	schema := bigquery.Schema{
		{Name: "ingestion_time", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "run_id", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "run_label", Type: bigquery.StringFieldType},
		{Name: "module", Type: bigquery.StringFieldType, Required: true},
		{Name: "source_path", Type: bigquery.StringFieldType},
		{Name: "kind", Type: bigquery.StringFieldType, Required: true},
		{Name: "kind_label", Type: bigquery.StringFieldType},
		{Name: "hit_regions", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "total_regions", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "coverage_pct", Type: bigquery.FloatFieldType, Required: true},
	}

	table := dataset.Table(moduleCoverageTable)
	if err := table.Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Field: "ingestion_time",
		},
		Clustering: &bigquery.Clustering{
			Fields: []string{"module", "kind"},
		},
	}); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create %s table: %w", moduleCoverageTable, err)
		}
	}
	return nil
}
