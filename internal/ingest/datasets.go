package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sitescore/internal/config"
	"github.com/sells-group/sitescore/internal/proximity"
	"github.com/sells-group/sitescore/internal/zoning"
)

// Datasets holds the three raw inputs to a scoring engine. Cables are not yet
// filtered by the allow-list.
type Datasets struct {
	Stations []proximity.Station
	Cables   []proximity.Cable
	Zones    []zoning.Zone
}

// LoadDatasets reads the station, cable and zone files concurrently.
func LoadDatasets(ctx context.Context, cfg config.DataConfig) (*Datasets, error) {
	log := zap.L().With(zap.String("component", "ingest.datasets"))
	start := time.Now()

	var ds Datasets
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		stations, err := LoadStations(cfg.StationsPath)
		if err != nil {
			return err
		}
		ds.Stations = stations
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		cables, err := LoadCables(cfg.CablesPath)
		if err != nil {
			return err
		}
		ds.Cables = cables
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		opts := ZoneOptions{CodeField: cfg.ZoneCodeField, SkipInvalid: cfg.SkipInvalidZones}
		var zones []zoning.Zone
		var err error
		switch cfg.ZonesFormat {
		case "shapefile":
			zones, err = LoadZonesShapefile(cfg.ZonesPath, ShapefileOptions{ZoneOptions: opts, Charset: cfg.Charset})
		case "", "geojson":
			zones, err = LoadZones(cfg.ZonesPath, opts)
		default:
			err = eris.Errorf("ingest: unknown zones format %q", cfg.ZonesFormat)
		}
		if err != nil {
			return err
		}
		ds.Zones = zones
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ingest: load datasets")
	}

	log.Info("datasets loaded",
		zap.Int("stations", len(ds.Stations)),
		zap.Int("cables", len(ds.Cables)),
		zap.Int("zones", len(ds.Zones)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &ds, nil
}

// Index builds a proximity index over the stations and the cables whose IDs
// are in allow.
func (d *Datasets) Index(allow []string) *proximity.Index {
	return proximity.NewIndex(d.Stations, proximity.FilterCables(d.Cables, allow))
}
