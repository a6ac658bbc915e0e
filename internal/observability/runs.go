package observability

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/store"
)

// RunLister is the slice of store.Store the run checker needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error)
}

// RunSnapshot is a point-in-time count of saved runs.
type RunSnapshot struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByRegion    map[string]int `json:"by_region"`
	CollectedAt time.Time      `json:"collected_at"`
}

// snapshotLimit caps how many runs one snapshot scans.
const snapshotLimit = 10000

// CollectRuns counts the saved runs visible through lister.
func CollectRuns(ctx context.Context, lister RunLister) (*RunSnapshot, error) {
	runs, err := lister.ListRuns(ctx, store.RunFilter{Limit: snapshotLimit})
	if err != nil {
		return nil, eris.Wrap(err, "observability: list runs")
	}

	snap := &RunSnapshot{
		Total:       len(runs),
		ByStatus:    map[string]int{string(store.RunStatusPending): 0, string(store.RunStatusComplete): 0},
		ByRegion:    map[string]int{},
		CollectedAt: time.Now().UTC(),
	}
	for _, r := range runs {
		snap.ByStatus[string(r.Status)]++
		snap.ByRegion[r.Region]++
	}
	return snap, nil
}

// RunChecker periodically refreshes the saved-runs gauge.
type RunChecker struct {
	lister    RunLister
	collector *Collector
	interval  time.Duration
}

// NewRunChecker creates a background checker. A non-positive interval
// defaults to one minute.
func NewRunChecker(lister RunLister, collector *Collector, interval time.Duration) *RunChecker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RunChecker{lister: lister, collector: collector, interval: interval}
}

// Run refreshes the gauge immediately and then on every tick. It blocks until
// ctx is cancelled.
func (c *RunChecker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "observability.runs"))
	log.Info("starting run checker", zap.Duration("interval", c.interval))

	c.Check(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("run checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one snapshot and publishes it.
func (c *RunChecker) Check(ctx context.Context) {
	snap, err := CollectRuns(ctx, c.lister)
	if err != nil {
		zap.L().With(zap.String("component", "observability.runs")).
			Error("failed to collect runs", zap.Error(err))
		return
	}
	c.collector.SetSavedRuns(snap.ByStatus)
}
