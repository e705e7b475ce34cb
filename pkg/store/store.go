// Package store persists decoded coverage runs in SQLite so reports can be
// re-rendered and exported without the original payload.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
)

// ErrNoRuns is returned when the database holds no runs.
var ErrNoRuns = errors.New("store: no runs recorded")

const schemaVersion = 2

// Store wraps a SQLite database of coverage runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

		CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			label       TEXT NOT NULL DEFAULT '',
			source_file TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS modules (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			name   TEXT NOT NULL,
			path   TEXT NOT NULL DEFAULT '',
			UNIQUE (run_id, name)
		);

		CREATE TABLE IF NOT EXISTS regions (
			module_id  INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
			kind       TEXT NOT NULL,
			from_line  INTEGER NOT NULL,
			from_col   INTEGER NOT NULL,
			to_line    INTEGER NOT NULL,
			to_col     INTEGER NOT NULL,
			exec_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_modules_run ON modules(run_id);
		CREATE INDEX IF NOT EXISTS idx_regions_module ON regions(module_id);
	`)
	if err != nil {
		return err
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err = db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		return err
	}

	var currentVersion int
	if err := db.QueryRow("SELECT version FROM schema_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion < 2 {
		// v1 → v2: record which payload file a run came from
		_, alterErr := db.Exec("ALTER TABLE runs ADD COLUMN source_file TEXT NOT NULL DEFAULT ''")
		if alterErr != nil && !strings.Contains(alterErr.Error(), "duplicate column") {
			return fmt.Errorf("migrate v1→v2: %w", alterErr)
		}
	}
	if currentVersion < schemaVersion {
		if _, err := db.Exec("UPDATE schema_version SET version = ?", schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

// Run describes one stored run.
type Run struct {
	ID         int64
	Label      string
	SourceFile string
	CreatedAt  time.Time
	Modules    int
}

// SaveRun stores a payload as a new run and returns its id.
func (s *Store) SaveRun(label, sourceFile string, p *coverage.Payload, at time.Time) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO runs (label, source_file, created_at) VALUES (?, ?, ?)",
		label, sourceFile, at.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	regionStmt, err := tx.Prepare(`
		INSERT INTO regions (module_id, kind, from_line, from_col, to_line, to_col, exec_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare region insert: %w", err)
	}
	defer regionStmt.Close()

	for _, name := range p.ModuleNames() {
		res, err := tx.Exec("INSERT INTO modules (run_id, name, path) VALUES (?, ?, ?)", runID, name, p.Paths[name])
		if err != nil {
			return 0, fmt.Errorf("insert module %s: %w", name, err)
		}
		moduleID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}

		regions := p.Modules[name]
		for _, kind := range regions.Kinds() {
			for _, r := range regions[kind] {
				if _, err := regionStmt.Exec(moduleID, string(kind), r.From.Line, r.From.Column, r.To.Line, r.To.Column, r.Count); err != nil {
					return 0, fmt.Errorf("insert region of %s: %w", name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.label, r.source_file, r.created_at, COUNT(m.id)
		FROM runs r LEFT JOIN modules m ON m.run_id = r.id
		GROUP BY r.id
		ORDER BY r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Label, &r.SourceFile, &createdAt, &r.Modules); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently stored run.
func (s *Store) LatestRun() (Run, error) {
	runs, err := s.Runs()
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}

// LoadRun rebuilds the payload of a stored run.
func (s *Store) LoadRun(runID int64) (*coverage.Payload, error) {
	p := coverage.NewPayload()

	mods, err := s.db.Query("SELECT name, path FROM modules WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer mods.Close()
	for mods.Next() {
		var name, path string
		if err := mods.Scan(&name, &path); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		p.Modules[name] = make(coverage.Regions)
		if path != "" {
			p.Paths[name] = path
		}
	}
	if err := mods.Err(); err != nil {
		return nil, err
	}
	if len(p.Modules) == 0 {
		return nil, fmt.Errorf("run %d: %w", runID, ErrNoRuns)
	}

	rows, err := s.db.Query(`
		SELECT m.name, r.kind, r.from_line, r.from_col, r.to_line, r.to_col, r.exec_count
		FROM regions r JOIN modules m ON m.id = r.module_id
		WHERE m.run_id = ?
		ORDER BY r.rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query regions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			module, kind string
			r            coverage.Region
		)
		if err := rows.Scan(&module, &kind, &r.From.Line, &r.From.Column, &r.To.Line, &r.To.Column, &r.Count); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		p.Add(module, coverage.Kind(kind), r)
	}
	return p, rows.Err()
}

// KindStat is the hit/total count of one kind within one module of a run.
type KindStat struct {
	Module string
	Path   string
	Kind   coverage.Kind
	coverage.Counts
}

// KindStats aggregates a run per module and kind.
func (s *Store) KindStats(runID int64) ([]KindStat, error) {
	rows, err := s.db.Query(`
		SELECT m.name, m.path, r.kind,
		       SUM(CASE WHEN r.exec_count > 0 THEN 1 ELSE 0 END),
		       COUNT(*)
		FROM regions r JOIN modules m ON m.id = r.module_id
		WHERE m.run_id = ?
		GROUP BY m.name, m.path, r.kind
		ORDER BY m.name, r.kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("query kind stats: %w", err)
	}
	defer rows.Close()

	var stats []KindStat
	for rows.Next() {
		var st KindStat
		var kind string
		if err := rows.Scan(&st.Module, &st.Path, &kind, &st.Hit, &st.Total); err != nil {
			return nil, fmt.Errorf("scan kind stat: %w", err)
		}
		st.Kind = coverage.Kind(kind)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
