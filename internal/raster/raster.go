// Package raster evaluates a scorer over a regular longitude/latitude grid.
package raster

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sitescore/internal/config"
	"github.com/sells-group/sitescore/internal/geo"
)

// Rater scores a single coordinate. It must be safe for concurrent use.
type Rater interface {
	Rate(p geo.Coordinate) float64
}

// RaterFunc adapts a function to Rater.
type RaterFunc func(p geo.Coordinate) float64

// Rate calls f(p).
func (f RaterFunc) Rate(p geo.Coordinate) float64 { return f(p) }

// Linspace returns n evenly spaced values from start to stop inclusive. n == 1
// yields [start]; n <= 0 yields nil.
func Linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}

// Spec describes a grid. Latitudes may run north to south (LatStart > LatStop);
// rows follow the order given.
type Spec struct {
	LngStart float64 `json:"lng_start"`
	LngStop  float64 `json:"lng_stop"`
	LatStart float64 `json:"lat_start"`
	LatStop  float64 `json:"lat_stop"`
	Cols     int     `json:"cols"`
	Rows     int     `json:"rows"`
}

// SpecFromConfig converts the configured default grid.
func SpecFromConfig(c config.RasterConfig) Spec {
	return Spec{
		LngStart: c.LngStart,
		LngStop:  c.LngStop,
		LatStart: c.LatStart,
		LatStop:  c.LatStop,
		Cols:     c.Cols,
		Rows:     c.Rows,
	}
}

// MaxCells bounds the grid size Validate accepts, keeping Cells free of
// overflow.
const MaxCells = math.MaxInt32

// Cells returns Cols*Rows. It is only meaningful for a validated Spec.
func (s Spec) Cells() int { return s.Cols * s.Rows }

// CellsWithin reports whether the grid is non-empty and has at most limit
// cells. It never multiplies, so oversized dimensions cannot wrap around.
func (s Spec) CellsWithin(limit int) bool {
	if s.Cols <= 0 || s.Rows <= 0 || limit <= 0 {
		return false
	}
	return s.Cols <= limit && s.Rows <= limit && s.Cols <= limit/s.Rows
}

// Validate checks the grid is non-empty and its bounds are real coordinates.
func (s Spec) Validate() error {
	var errs []string
	if s.Cols <= 0 || s.Rows <= 0 {
		errs = append(errs, "cols and rows must be > 0")
	} else if !s.CellsWithin(MaxCells) {
		errs = append(errs, fmt.Sprintf("grid of %dx%d exceeds %d cells", s.Cols, s.Rows, MaxCells))
	}
	for _, v := range []float64{s.LngStart, s.LngStop, s.LatStart, s.LatStop} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, "bounds must be finite")
			break
		}
	}
	if math.Abs(s.LatStart) > 90 || math.Abs(s.LatStop) > 90 {
		errs = append(errs, "latitudes must be within [-90, 90]")
	}
	if math.Abs(s.LngStart) > 180 || math.Abs(s.LngStop) > 180 {
		errs = append(errs, "longitudes must be within [-180, 180]")
	}
	if len(errs) > 0 {
		return eris.Errorf("raster: invalid grid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Field is a rasterised score grid. Values[row][col] is the score at
// (Lats[row], Lngs[col]).
type Field struct {
	Spec    Spec
	Lngs    []float64
	Lats    []float64
	Values  [][]float64
	Elapsed time.Duration
}

// At returns the coordinate of a cell.
func (f *Field) At(row, col int) geo.Coordinate {
	return geo.Coordinate{Lat: f.Lats[row], Lng: f.Lngs[col]}
}

// Rasterize scores every grid cell. Rows are spread over at most workers
// goroutines (GOMAXPROCS when workers <= 0); each goroutine writes only its
// own row, so the result is identical to a sequential evaluation.
func Rasterize(ctx context.Context, rater Rater, spec Spec, workers int) (*Field, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log := zap.L().With(zap.String("component", "raster.rasterize"))
	start := time.Now()

	f := &Field{
		Spec:   spec,
		Lngs:   Linspace(spec.LngStart, spec.LngStop, spec.Cols),
		Lats:   Linspace(spec.LatStart, spec.LatStop, spec.Rows),
		Values: make([][]float64, spec.Rows),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for row := range f.Lats {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values := make([]float64, len(f.Lngs))
			lat := f.Lats[row]
			for col, lng := range f.Lngs {
				values[col] = rater.Rate(geo.Coordinate{Lat: lat, Lng: lng})
			}
			f.Values[row] = values
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "raster: rasterize")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "raster: rasterize")
	}

	f.Elapsed = time.Since(start)
	log.Info("finished rasterising",
		zap.Int("cols", spec.Cols),
		zap.Int("rows", spec.Rows),
		zap.Int("workers", workers),
		zap.Float64("elapsed_secs", f.Elapsed.Seconds()),
	)
	return f, nil
}
