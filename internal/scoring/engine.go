package scoring

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitescore/internal/geo"
	"github.com/sells-group/sitescore/internal/proximity"
	"github.com/sells-group/sitescore/internal/region"
	"github.com/sells-group/sitescore/internal/zoning"
)

// MaxScore is the highest composite score: both closeness components at 1.
const MaxScore = 2.0

// Undefined is the score of points outside the scored region.
var Undefined = math.NaN()

// IsUndefined reports whether score is the out-of-region sentinel.
func IsUndefined(score float64) bool {
	return math.IsNaN(score)
}

// Observer receives per-query events. Implementations must be safe for
// concurrent use; the rasteriser scores cells from several goroutines.
type Observer interface {
	ObserveTier(tier region.Tier)
	ObserveOutcome(outcome Outcome)
}

// Options configures an Engine.
type Options struct {
	Region     *region.Definition
	Zones      *zoning.Classifier
	Index      *proximity.Index
	Thresholds Thresholds
	Observer   Observer
}

// Engine scores coordinates. It holds only immutable inputs and is safe for
// concurrent use.
type Engine struct {
	region     *region.Definition
	zones      *zoning.Classifier
	index      *proximity.Index
	thresholds Thresholds
	observer   Observer
}

// NewEngine validates opts and builds an Engine. Empty infrastructure sets are
// rejected here so that Rate never fails.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Region == nil {
		return nil, eris.New("scoring: region is required")
	}
	if err := opts.Region.Validate(); err != nil {
		return nil, eris.Wrap(err, "scoring: region")
	}
	if opts.Zones == nil {
		opts.Zones = &zoning.Classifier{}
	}
	if opts.Index == nil {
		return nil, eris.New("scoring: proximity index is required")
	}
	if opts.Index.Stations() == 0 {
		return nil, &proximity.EmptyInputError{Set: "power stations"}
	}
	if opts.Index.CableVertices() == 0 {
		return nil, &proximity.EmptyInputError{Set: "cable vertices"}
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		region:     opts.Region,
		zones:      opts.Zones,
		index:      opts.Index,
		thresholds: opts.Thresholds,
		observer:   opts.Observer,
	}, nil
}

// Region returns the scored region.
func (e *Engine) Region() *region.Definition { return e.region }

// Zones returns the zone classifier.
func (e *Engine) Zones() *zoning.Classifier { return e.zones }

// Thresholds returns the closeness thresholds.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Rate scores p:
//   - Undefined (NaN) outside the region,
//   - 0 inside an excluded zone, whatever the infrastructure nearby,
//   - otherwise cable closeness plus station closeness, in [0, MaxScore].
func (e *Engine) Rate(p geo.Coordinate) float64 {
	in, tier := e.region.ContainsTier(p)
	e.observeTier(tier)
	if !in {
		e.observeOutcome(OutcomeOutside)
		return Undefined
	}
	if e.zones.Excluded(p) {
		e.observeOutcome(OutcomeExcluded)
		return 0
	}
	e.observeOutcome(OutcomeScored)
	cable, station := e.closeness(p)
	return cable.score + station.score
}

type component struct {
	distance float64
	score    float64
}

func (e *Engine) closeness(p geo.Coordinate) (cable, station component) {
	// Both sets were checked non-empty in NewEngine.
	cable.distance, _ = e.index.NearestCable(p)
	station.distance, _ = e.index.NearestStation(p)
	cable.score = NormaliseCloseness(e.thresholds.CableNearM, e.thresholds.CableFarM, cable.distance)
	station.score = NormaliseCloseness(e.thresholds.StationNearM, e.thresholds.StationFarM, station.distance)
	return cable, station
}

// Breakdown is a scored point with the inputs that produced its score.
type Breakdown struct {
	Point            geo.Coordinate `json:"point"`
	Score            float64        `json:"-"`
	Outcome          Outcome        `json:"-"`
	Class            string         `json:"class"`
	Tier             region.Tier    `json:"-"`
	ExcludedBy       string         `json:"excluded_by,omitempty"`
	IncludedBy       string         `json:"included_by,omitempty"`
	CableDistanceM   float64        `json:"cable_distance_m"`
	CableScore       float64        `json:"cable_score"`
	StationDistanceM float64        `json:"station_distance_m"`
	StationScore     float64        `json:"station_score"`
	NearbyMW         float64        `json:"nearby_mw"`
}

// Breakdown applies the same policy as Rate and reports every component. The
// distances and nearby capacity are filled in for all in-region points,
// including excluded ones, though they do not contribute to an excluded score.
func (e *Engine) Breakdown(p geo.Coordinate) Breakdown {
	b := Breakdown{Point: p}

	in, tier := e.region.ContainsTier(p)
	b.Tier = tier
	if !in {
		b.Score = Undefined
		b.Outcome = OutcomeOutside
		b.Class = Classify(false, false, false)
		return b
	}

	cable, station := e.closeness(p)
	b.CableDistanceM, b.CableScore = cable.distance, cable.score
	b.StationDistanceM, b.StationScore = station.distance, station.score
	b.NearbyMW, _ = e.index.MegawattsWithin(p, e.thresholds.MegawattRadius)

	excludedBy, excluded := e.zones.Exclude.Find(p)
	includedBy, included := e.zones.Include.Find(p)
	if excluded {
		b.ExcludedBy = excludedBy.Code
	}
	if included {
		b.IncludedBy = includedBy.Code
	}
	b.Class = Classify(true, excluded, included)

	if excluded {
		b.Outcome = OutcomeExcluded
		b.Score = 0
		return b
	}
	b.Outcome = OutcomeScored
	b.Score = cable.score + station.score
	return b
}

func (e *Engine) observeTier(t region.Tier) {
	if e.observer != nil {
		e.observer.ObserveTier(t)
	}
}

func (e *Engine) observeOutcome(o Outcome) {
	if e.observer != nil {
		e.observer.ObserveOutcome(o)
	}
}
