// Package scoring composes region, zoning and proximity tests into a site
// suitability score.
package scoring

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitescore/internal/config"
)

// Thresholds holds the near/far distances, in meters, between which each
// closeness component falls linearly from 1 to 0.
type Thresholds struct {
	CableNearM     float64
	CableFarM      float64
	StationNearM   float64
	StationFarM    float64
	MegawattRadius float64
}

// DefaultThresholds returns 30/200 km for cables and 30/100 km for stations.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CableNearM:     30_000,
		CableFarM:      200_000,
		StationNearM:   30_000,
		StationFarM:    100_000,
		MegawattRadius: 100_000,
	}
}

// ThresholdsFromConfig converts kilometer settings to meters. Zero values fall
// back to the defaults.
func ThresholdsFromConfig(c config.ScoringConfig) Thresholds {
	t := DefaultThresholds()
	set := func(dst *float64, km float64) {
		if km != 0 {
			*dst = km * 1000
		}
	}
	set(&t.CableNearM, c.CableNearKM)
	set(&t.CableFarM, c.CableFarKM)
	set(&t.StationNearM, c.StationNearKM)
	set(&t.StationFarM, c.StationFarKM)
	set(&t.MegawattRadius, c.MegawattRadiusKM)
	return t
}

// Validate checks the far threshold exceeds the near one for each component.
// NormaliseCloseness divides by their difference.
func (t Thresholds) Validate() error {
	var errs []string
	if t.CableNearM < 0 || t.StationNearM < 0 {
		errs = append(errs, "near thresholds must be >= 0")
	}
	if t.CableFarM <= t.CableNearM {
		errs = append(errs, "cable far threshold must exceed near threshold")
	}
	if t.StationFarM <= t.StationNearM {
		errs = append(errs, "station far threshold must exceed near threshold")
	}
	if t.MegawattRadius < 0 {
		errs = append(errs, "megawatt radius must be >= 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("scoring: invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NormaliseCloseness maps a distance x to 1 at or below near, 0 at or above
// far, and linearly in between. far must exceed near.
func NormaliseCloseness(near, far, x float64) float64 {
	if x <= near {
		return 1
	}
	if x >= far {
		return 0
	}
	return (far - x) / (far - near)
}
