// Package runstore keeps a SQLite ledger of tool runs and their per-line
// outcomes.
package runstore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Line statuses.
const (
	LineSucceeded = "SUCCESS"
	LineSkipped   = "SKIPPED"
)

// ErrRunNotFound is returned when no run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of a tool.
type Run struct {
	RunID      string          `json:"run_id"`
	Tool       string          `json:"tool"`
	InputPath  string          `json:"input_path"`
	OutputPath string          `json:"output_path"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	LineCount  int             `json:"line_count"`
	SkipCount  int             `json:"skip_count"`
	StartedAt  int64           `json:"started_at"`
	FinishedAt int64           `json:"finished_at,omitempty"`
}

// Duration is the wall time of a finished run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == 0 {
		return 0
	}
	return time.Duration(r.FinishedAt - r.StartedAt)
}

// LineResult is the outcome of one line inside a run.
type LineResult struct {
	FID       int     `json:"fid"`
	Seg       int     `json:"seg"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	Width     float64 `json:"width,omitempty"`
	ElapsedMs float64 `json:"elapsed_ms,omitempty"`
}

// Store is the run ledger.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens or creates the ledger at path and applies pending migrations.
// A nil clock uses the wall clock.
func Open(path string, clock timeutil.Clock) (*Store, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	s := &Store{db: db, clock: clock}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// migrations
// ---------------------------------------------------------------------------

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: closing it would close the shared connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and dirty flag.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// migrateLogger implements migrate.Logger on the diagnostic stream.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Diagf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// ---------------------------------------------------------------------------
// runs
// ---------------------------------------------------------------------------

// Begin records a new running run. params is stored as JSON.
func (s *Store) Begin(tool, input, output string, params interface{}) (*Run, error) {
	r := &Run{
		RunID:      uuid.New().String(),
		Tool:       tool,
		InputPath:  input,
		OutputPath: output,
		Status:     StatusRunning,
		StartedAt:  s.clock.Now().UnixNano(),
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		r.ParamsJSON = raw
	}

	var paramsStr interface{}
	if len(r.ParamsJSON) > 0 {
		paramsStr = string(r.ParamsJSON)
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, tool, input_path, output_path, params_json, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Tool, r.InputPath, r.OutputPath, paramsStr, r.Status, r.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	monitoring.Diagf("runstore: started %s run %s", tool, r.RunID)
	return r, nil
}

// RecordLines stores per-line outcomes for a run in one transaction.
func (s *Store) RecordLines(runID string, results []LineResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO line_results (run_id, fid, seg, status, reason, width, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare line insert: %w", err)
	}
	defer stmt.Close()

	for _, lr := range results {
		var reason interface{}
		if lr.Reason != "" {
			reason = lr.Reason
		}
		if _, err := stmt.Exec(runID, lr.FID, lr.Seg, lr.Status, reason, lr.Width, lr.ElapsedMs); err != nil {
			return fmt.Errorf("insert line %d/%d: %w", lr.FID, lr.Seg, err)
		}
	}
	return tx.Commit()
}

// Finish closes a run. A nil runErr marks it succeeded. Line and skip
// counts are taken from the recorded line results.
func (s *Store) Finish(r *Run, runErr error) error {
	r.FinishedAt = s.clock.Now().UnixNano()
	r.Status = StatusSucceeded
	r.Error = ""
	if runErr != nil {
		r.Status = StatusFailed
		r.Error = runErr.Error()
	}
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM line_results WHERE run_id = ?`, LineSkipped, r.RunID).Scan(&r.LineCount, &r.SkipCount)
	if err != nil {
		return fmt.Errorf("count lines: %w", err)
	}

	var errStr interface{}
	if r.Error != "" {
		errStr = r.Error
	}
	res, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, line_count = ?, skip_count = ?, finished_at = ?
		WHERE run_id = ?`,
		r.Status, errStr, r.LineCount, r.SkipCount, r.FinishedAt, r.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, r.RunID)
	}
	monitoring.Diagf("runstore: %s run %s %s in %v", r.Tool, r.RunID, r.Status, r.Duration())
	return nil
}

const runColumns = `run_id, tool, input_path, output_path, params_json, status, error,
	line_count, skip_count, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                     Run
		input, output, errStr sql.NullString
		params                sql.NullString
		finished              sql.NullInt64
	)
	err := row.Scan(&r.RunID, &r.Tool, &input, &output, &params, &r.Status, &errStr,
		&r.LineCount, &r.SkipCount, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	r.InputPath = input.String
	r.OutputPath = output.String
	r.Error = errStr.String
	r.FinishedAt = finished.Int64
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	return &r, nil
}

// Get returns one run by ID.
func (s *Store) Get(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Lines returns the recorded line results of a run ordered by FID and
// segment.
func (s *Store) Lines(runID string) ([]LineResult, error) {
	rows, err := s.db.Query(`
		SELECT fid, seg, status, reason, width, elapsed_ms
		FROM line_results WHERE run_id = ? ORDER BY fid, seg`, runID)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	var out []LineResult
	for rows.Next() {
		var (
			lr      LineResult
			reason  sql.NullString
			width   sql.NullFloat64
			elapsed sql.NullFloat64
		)
		if err := rows.Scan(&lr.FID, &lr.Seg, &lr.Status, &reason, &width, &elapsed); err != nil {
			return nil, err
		}
		lr.Reason = reason.String
		lr.Width = width.Float64
		lr.ElapsedMs = elapsed.Float64
		out = append(out, lr)
	}
	return out, rows.Err()
}

// Delete removes a run and its line results.
func (s *Store) Delete(runID string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
