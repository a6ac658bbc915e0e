// Package observability exposes Prometheus metrics for scoring and
// rasterisation.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sitescore/internal/region"
	"github.com/sells-group/sitescore/internal/scoring"
)

// Collector bundles the scoring metrics. It implements scoring.Observer and
// is safe to use as a nil pointer.
type Collector struct {
	gatherer prometheus.Gatherer

	Tiers     *prometheus.CounterVec
	Cells     *prometheus.CounterVec
	Rasters   *prometheus.HistogramVec
	SavedRuns *prometheus.GaugeVec
}

var _ scoring.Observer = (*Collector)(nil)

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry returns the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tiers, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_region_tier_total",
		Help: "Region containment queries, labeled by the ring tier that decided them.",
	}, []string{"tier"}), "sitescore_region_tier_total")
	if err != nil {
		return nil, err
	}

	cells, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitescore_cells_total",
		Help: "Rated points, labeled by outcome (outside, excluded, scored).",
	}, []string{"outcome"}), "sitescore_cells_total")
	if err != nil {
		return nil, err
	}

	rasters, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitescore_raster_duration_seconds",
		Help:    "Wall time to rasterise a score grid.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"region"}), "sitescore_raster_duration_seconds")
	if err != nil {
		return nil, err
	}

	saved, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sitescore_saved_runs",
		Help: "Saved score runs in the store, labeled by status.",
	}, []string{"status"}), "sitescore_saved_runs")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:  gatherer,
		Tiers:     tiers,
		Cells:     cells,
		Rasters:   rasters,
		SavedRuns: saved,
	}, nil
}

// ObserveTier counts a containment query decided by tier.
func (c *Collector) ObserveTier(tier region.Tier) {
	if c == nil || c.Tiers == nil {
		return
	}
	c.Tiers.WithLabelValues(tier.String()).Inc()
}

// ObserveOutcome counts a rated point.
func (c *Collector) ObserveOutcome(outcome scoring.Outcome) {
	if c == nil || c.Cells == nil {
		return
	}
	c.Cells.WithLabelValues(outcome.String()).Inc()
}

// ObserveRaster records how long a rasterisation of regionName took.
func (c *Collector) ObserveRaster(regionName string, elapsed time.Duration) {
	if c == nil || c.Rasters == nil {
		return
	}
	c.Rasters.WithLabelValues(regionName).Observe(elapsed.Seconds())
}

// SetSavedRuns replaces the saved-runs gauge with counts keyed by status.
func (c *Collector) SetSavedRuns(byStatus map[string]int) {
	if c == nil || c.SavedRuns == nil {
		return
	}
	c.SavedRuns.Reset()
	for status, n := range byStatus {
		c.SavedRuns.WithLabelValues(status).Set(float64(n))
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, eris.Errorf("observability: collector %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "observability: register %s", name)
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, eris.Errorf("observability: collector %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "observability: register %s", name)
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, eris.Errorf("observability: collector %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "observability: register %s", name)
	}
	return vec, nil
}
