package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/config"
	"github.com/sells-group/sitescore/internal/ingest"
	"github.com/sells-group/sitescore/internal/region"
	"github.com/sells-group/sitescore/internal/scoring"
	"github.com/sells-group/sitescore/internal/store"
	"github.com/sells-group/sitescore/internal/zoning"
)

// scoringEnv holds the loaded datasets and the engine built from them.
type scoringEnv struct {
	Datasets *ingest.Datasets
	Region   *region.Definition
	Engine   *scoring.Engine
}

// loadRegion resolves the configured region from the outline file, or from
// the bundled outlines when no file is configured.
func loadRegion(c *config.Config) (*region.Definition, error) {
	var (
		defs map[string]*region.Definition
		err  error
	)
	if c.Data.RegionsPath != "" {
		defs, err = region.LoadFile(c.Data.RegionsPath)
	} else {
		defs, err = region.Bundled()
	}
	if err != nil {
		return nil, err
	}
	return region.Lookup(defs, c.Scoring.Region)
}

// initEngine loads the datasets and builds the scoring engine. obs may be nil.
func initEngine(ctx context.Context, c *config.Config, obs scoring.Observer) (*scoringEnv, error) {
	if err := c.Validate("data"); err != nil {
		return nil, err
	}

	def, err := loadRegion(c)
	if err != nil {
		return nil, err
	}

	ds, err := ingest.LoadDatasets(ctx, c.Data)
	if err != nil {
		return nil, err
	}

	zones, err := zoning.Partition(ds.Zones,
		zoning.NewCodeList(c.Zoning.Include...),
		zoning.NewCodeList(c.Zoning.Exclude...),
	)
	if err != nil {
		return nil, eris.Wrap(err, "partition zones")
	}

	engine, err := scoring.NewEngine(scoring.Options{
		Region:     def,
		Zones:      zones,
		Index:      ds.Index(c.Data.CableIDs),
		Thresholds: scoring.ThresholdsFromConfig(c.Scoring),
		Observer:   obs,
	})
	if err != nil {
		return nil, eris.Wrap(err, "build engine")
	}

	zap.L().With(zap.String("component", "engine")).Info("engine ready",
		zap.String("region", def.Name),
		zap.Int("include_zones", zones.Include.Len()),
		zap.Int("exclude_zones", zones.Exclude.Len()),
	)
	return &scoringEnv{Datasets: ds, Region: def, Engine: engine}, nil
}

// initStore validates the store settings and opens the configured backend
// with migrations applied.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate("store"); err != nil {
		return nil, err
	}
	return store.Open(ctx, c.Store)
}
