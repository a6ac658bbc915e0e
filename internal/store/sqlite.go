package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sitescore/internal/raster"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS score_runs (
	id         TEXT PRIMARY KEY,
	region     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	spec       TEXT NOT NULL,
	summary    TEXT,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS score_cells (
	run_id  TEXT NOT NULL REFERENCES score_runs(id) ON DELETE CASCADE,
	row_idx INTEGER NOT NULL,
	col_idx INTEGER NOT NULL,
	lat     REAL NOT NULL,
	lng     REAL NOT NULL,
	score   REAL,
	PRIMARY KEY (run_id, row_idx, col_idx)
);

CREATE INDEX IF NOT EXISTS idx_score_runs_region ON score_runs(region);
CREATE INDEX IF NOT EXISTS idx_score_runs_created_at ON score_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, region string, spec raster.Spec) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal spec")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_runs (id, region, status, spec, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, region, string(RunStatusPending), string(specJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		Region:    region,
		Status:    RunStatusPending,
		Spec:      spec,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) SaveField(ctx context.Context, runID string, field *raster.Field) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := checkShape(run.Spec, field); err != nil {
		return err
	}

	summaryJSON, err := json.Marshal(field.Summary())
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM score_cells WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear cells for run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO score_cells (run_id, row_idx, col_idx, lat, lng, score) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare cell insert")
	}
	defer stmt.Close() //nolint:errcheck

	for r, lat := range field.Lats {
		for c, lng := range field.Lngs {
			if _, err := stmt.ExecContext(ctx, runID, r, c, lat, lng, scoreValue(field.Values[r][c])); err != nil {
				return eris.Wrapf(err, "sqlite: insert cell (%d, %d)", r, c)
			}
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE score_runs SET status = ?, summary = ?, elapsed_ms = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusComplete), string(summaryJSON), field.Elapsed.Milliseconds(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", runID)
	}
	if err := checkRunAffected(res, runID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit field")
	}
	zap.L().With(zap.String("component", "store.sqlite")).
		Debug("field saved", zap.String("run_id", runID), zap.Int("cells", run.Spec.Cells()))
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, region, status, spec, summary, elapsed_ms, created_at, updated_at FROM score_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, region, status, spec, summary, elapsed_ms, created_at, updated_at FROM score_runs WHERE 1=1`
	var args []any

	if filter.Region != "" {
		query += ` AND region = ?`
		args = append(args, filter.Region)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LoadField(ctx context.Context, runID string) (*raster.Field, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusComplete {
		return nil, eris.Errorf("store: run %s has no saved field", runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_idx, col_idx, score FROM score_cells WHERE run_id = ? ORDER BY row_idx, col_idx`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load cells for run %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	f := newField(run.Spec)
	f.Elapsed = time.Duration(run.ElapsedMS) * time.Millisecond
	for rows.Next() {
		var r, c int
		var score sql.NullFloat64
		if err := rows.Scan(&r, &c, &score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		if err := checkCell(run.Spec, r, c); err != nil {
			return nil, err
		}
		if score.Valid {
			f.Values[r][c] = score.Float64
		}
	}
	return f, eris.Wrap(rows.Err(), "sqlite: load cells iterate")
}

// helpers

func checkRunAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "sqlite: update run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var status, specJSON string
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.Region, &status, &specJSON, &summaryJSON, &r.ElapsedMS, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrRunNotFound, "sqlite: scan run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = RunStatus(status)

	if err := decodeRunJSON(&r, []byte(specJSON), nullBytes(summaryJSON)); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode run")
	}
	return &r, nil
}

func nullBytes(s sql.NullString) []byte {
	if !s.Valid {
		return nil
	}
	return []byte(s.String)
}

// decodeRunJSON fills the JSON-encoded spec and optional summary columns.
func decodeRunJSON(r *Run, spec, summary []byte) error {
	if err := json.Unmarshal(spec, &r.Spec); err != nil {
		return eris.Wrap(err, "unmarshal spec")
	}
	if len(summary) > 0 {
		r.Summary = &raster.Summary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return eris.Wrap(err, "unmarshal summary")
		}
	}
	return nil
}
