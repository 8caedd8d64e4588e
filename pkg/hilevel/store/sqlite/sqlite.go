package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/hilevel/pkg/hilevel/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// schema if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Parallel batches record from several goroutines; serialize writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT UNIQUE NOT NULL,
	batch_id TEXT NOT NULL,
	input TEXT NOT NULL,
	output TEXT NOT NULL,
	status TEXT NOT NULL,
	stage TEXT,
	error TEXT,
	processed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_batch ON runs(batch_id, seq);

CREATE TABLE IF NOT EXISTS run_annotations (
	run_id TEXT NOT NULL,
	model TEXT NOT NULL,
	label TEXT NOT NULL,
	probability REAL,
	PRIMARY KEY(run_id, model),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// RecordRun inserts or replaces a run and its annotations
func (s *sqliteStore) RecordRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("record run: empty id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO runs (id, batch_id, input, output, status, stage, error, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	batch_id=excluded.batch_id,
	input=excluded.input,
	output=excluded.output,
	status=excluded.status,
	stage=excluded.stage,
	error=excluded.error,
	processed_at=excluded.processed_at;
`
	_, err = tx.ExecContext(ctx, stmt,
		r.ID,
		r.BatchID,
		r.Input,
		r.Output,
		r.Status,
		r.Stage,
		r.Error,
		r.ProcessedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}

	if err := replaceAnnotations(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceAnnotations(ctx context.Context, tx *sql.Tx, r store.Run) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_annotations WHERE run_id=?`, r.ID); err != nil {
		return err
	}
	if len(r.Annotations) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_annotations (run_id, model, label, probability) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	models := make([]string, 0, len(r.Annotations))
	for m := range r.Annotations {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		var prob sql.NullFloat64
		if p, ok := r.Probabilities[m]; ok {
			prob = sql.NullFloat64{Float64: p, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, m, r.Annotations[m], prob); err != nil {
			return err
		}
	}
	return nil
}

const runColumns = `id, batch_id, input, output, status, stage, error, processed_at`

// GetRun retrieves a run by ID
func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.Run, bool, error) {
	runs, err := s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return store.Run{}, false, err
	}
	if len(runs) == 0 {
		return store.Run{}, false, nil
	}
	return runs[0], true, nil
}

// RunsByBatch returns the runs of a batch in recorded order
func (s *sqliteStore) RunsByBatch(ctx context.Context, batchID string) ([]store.Run, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE batch_id = ? ORDER BY seq`, batchID)
}

// Failures returns the failed runs of a batch in recorded order
func (s *sqliteStore) Failures(ctx context.Context, batchID string) ([]store.Run, error) {
	return s.queryRuns(ctx,
		`SELECT `+runColumns+` FROM runs WHERE batch_id = ? AND status = ? ORDER BY seq`,
		batchID, store.StatusFailed)
}

// Batches returns batch summaries, newest first
func (s *sqliteStore) Batches(ctx context.Context, limit int) ([]store.Batch, error) {
	query := `
SELECT batch_id,
	COUNT(*),
	SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
	MIN(processed_at),
	MAX(processed_at)
FROM runs
GROUP BY batch_id
ORDER BY MIN(seq) DESC`
	args := []interface{}{store.StatusFailed}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Batch
	for rows.Next() {
		var b store.Batch
		var started, finished string
		if err := rows.Scan(&b.ID, &b.Total, &b.Failed, &started, &finished); err != nil {
			return nil, err
		}
		b.StartedAt = parseTime(started)
		b.FinishedAt = parseTime(finished)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *sqliteStore) queryRuns(ctx context.Context, query string, args ...interface{}) ([]store.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var runs []store.Run
	for rows.Next() {
		var r store.Run
		var stage, errMsg sql.NullString
		var processed string
		if err := rows.Scan(&r.ID, &r.BatchID, &r.Input, &r.Output, &r.Status, &stage, &errMsg, &processed); err != nil {
			rows.Close()
			return nil, err
		}
		r.Stage = stage.String
		r.Error = errMsg.String
		r.ProcessedAt = parseTime(processed)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// One connection: annotations are loaded after the run rows are closed.
	for i := range runs {
		if err := s.loadAnnotations(ctx, &runs[i]); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *sqliteStore) loadAnnotations(ctx context.Context, r *store.Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, label, probability FROM run_annotations WHERE run_id = ? ORDER BY model`, r.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var model, label string
		var prob sql.NullFloat64
		if err := rows.Scan(&model, &label, &prob); err != nil {
			return err
		}
		if r.Annotations == nil {
			r.Annotations = make(map[string]string)
			r.Probabilities = make(map[string]float64)
		}
		r.Annotations[model] = label
		if prob.Valid {
			r.Probabilities[model] = prob.Float64
		}
	}
	return rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
