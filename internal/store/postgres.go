package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/db"
	"github.com/sells-group/sitescore/internal/raster"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

var cellColumns = []string{"run_id", "row_idx", "col_idx", "lat", "lng", "score"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS score_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	region     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	spec       JSONB NOT NULL,
	summary    JSONB,
	elapsed_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS score_cells (
	run_id  TEXT NOT NULL REFERENCES score_runs(id) ON DELETE CASCADE,
	row_idx INTEGER NOT NULL,
	col_idx INTEGER NOT NULL,
	lat     DOUBLE PRECISION NOT NULL,
	lng     DOUBLE PRECISION NOT NULL,
	score   DOUBLE PRECISION,
	PRIMARY KEY (run_id, row_idx, col_idx)
);

CREATE INDEX IF NOT EXISTS idx_score_runs_region ON score_runs(region);
CREATE INDEX IF NOT EXISTS idx_score_runs_created_at ON score_runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, region string, spec raster.Spec) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal spec")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO score_runs (id, region, status, spec, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, region, string(RunStatusPending), specJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

// SaveField replaces the run's cells with a COPY and then marks it complete.
func (s *PostgresStore) SaveField(ctx context.Context, runID string, field *raster.Field) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := checkShape(run.Spec, field); err != nil {
		return err
	}

	summaryJSON, err := json.Marshal(field.Summary())
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM score_cells WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear cells for run %s", runID)
	}

	rows := make([][]any, 0, run.Spec.Cells())
	for r, lat := range field.Lats {
		for c, lng := range field.Lngs {
			rows = append(rows, []any{runID, r, c, lat, lng, scoreValue(field.Values[r][c])})
		}
	}
	n, err := db.CopyFrom(ctx, s.pool, "score_cells", cellColumns, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: copy cells for run %s", runID)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE score_runs SET status = $1, summary = $2, elapsed_ms = $3, updated_at = $4 WHERE id = $5`,
		string(RunStatusComplete), summaryJSON, field.Elapsed.Milliseconds(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: update run %s", runID)
	}

	zap.L().With(zap.String("component", "store.postgres")).
		Debug("field saved", zap.String("run_id", runID), zap.Int64("cells", n))
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, region, status, spec, summary, elapsed_ms, created_at, updated_at FROM score_runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, region, status, spec, summary, elapsed_ms, created_at, updated_at FROM score_runs
		 WHERE ($1 = '' OR region = $1) AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		filter.Region, string(filter.Status), filter.limit(), filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) LoadField(ctx context.Context, runID string) (*raster.Field, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusComplete {
		return nil, eris.Errorf("store: run %s has no saved field", runID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT row_idx, col_idx, score FROM score_cells WHERE run_id = $1 ORDER BY row_idx, col_idx`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load cells for run %s", runID)
	}
	defer rows.Close()

	f := newField(run.Spec)
	f.Elapsed = time.Duration(run.ElapsedMS) * time.Millisecond
	for rows.Next() {
		var r, c int
		var score *float64
		if err := rows.Scan(&r, &c, &score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell")
		}
		if err := checkCell(run.Spec, r, c); err != nil {
			return nil, err
		}
		if score != nil {
			f.Values[r][c] = *score
		}
	}
	return f, eris.Wrap(rows.Err(), "postgres: load cells iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var status string
	var specJSON, summaryJSON []byte

	if err := row.Scan(&r.ID, &r.Region, &status, &specJSON, &summaryJSON, &r.ElapsedMS, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	if err := decodeRunJSON(&r, specJSON, summaryJSON); err != nil {
		return nil, err
	}
	return &r, nil
}
