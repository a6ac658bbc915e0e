// Package store persists rasterised score fields and the runs that produced
// them.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitescore/internal/config"
	"github.com/sells-group/sitescore/internal/raster"
)

// ErrRunNotFound is returned, wrapped, when no run has the requested ID.
var ErrRunNotFound = eris.New("store: run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusComplete RunStatus = "complete"
)

// Run is one rasterisation: the grid it covered and, once saved, the summary
// of its scores.
type Run struct {
	ID        string          `json:"id"`
	Region    string          `json:"region"`
	Status    RunStatus       `json:"status"`
	Spec      raster.Spec     `json:"spec"`
	Summary   *raster.Summary `json:"summary,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Region string    `json:"region,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for score runs.
type Store interface {
	CreateRun(ctx context.Context, region string, spec raster.Spec) (*Run, error)
	// SaveField stores every cell of field under runID, replacing any cells
	// already saved, and marks the run complete.
	SaveField(ctx context.Context, runID string, field *raster.Field) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	// LoadField rebuilds a saved field. Undefined cells come back as NaN.
	LoadField(ctx context.Context, runID string) (*raster.Field, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "sitescore.db"
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newField allocates a field for spec with every cell undefined.
func newField(spec raster.Spec) *raster.Field {
	f := &raster.Field{
		Spec:   spec,
		Lngs:   raster.Linspace(spec.LngStart, spec.LngStop, spec.Cols),
		Lats:   raster.Linspace(spec.LatStart, spec.LatStop, spec.Rows),
		Values: make([][]float64, spec.Rows),
	}
	for r := range f.Values {
		row := make([]float64, spec.Cols)
		for c := range row {
			row[c] = nan
		}
		f.Values[r] = row
	}
	return f
}

func checkCell(spec raster.Spec, row, col int) error {
	if row < 0 || row >= spec.Rows || col < 0 || col >= spec.Cols {
		return eris.Errorf("store: cell (%d, %d) outside %dx%d grid", row, col, spec.Rows, spec.Cols)
	}
	return nil
}

func checkShape(spec raster.Spec, f *raster.Field) error {
	if len(f.Values) != spec.Rows {
		return eris.Errorf("store: field has %d rows, run expects %d", len(f.Values), spec.Rows)
	}
	for r, row := range f.Values {
		if len(row) != spec.Cols {
			return eris.Errorf("store: field row %d has %d cols, run expects %d", r, len(row), spec.Cols)
		}
	}
	return nil
}
