// Package geo provides the spherical distance and planar containment primitives
// used to score candidate sites.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6_371_000.0

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// FromLngLat builds a Coordinate from a [longitude, latitude] pair, the axis
// order used by GeoJSON and shapefiles.
func FromLngLat(lng, lat float64) Coordinate {
	return Coordinate{Lat: lat, Lng: lng}
}

// Valid reports whether the coordinate lies within the WGS84 ranges.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the great-circle distance in meters between a and b using
// the spherical law of cosines.
//
// The cosine argument is clamped to [-1, 1]: for coincident or near-antipodal
// points rounding can push it just outside the domain of acos, which would
// otherwise yield NaN.
func Distance(a, b Coordinate) float64 {
	if a == b {
		return 0
	}
	aLat := radians(a.Lat)
	bLat := radians(b.Lat)
	dLng := math.Abs(radians(a.Lng) - radians(b.Lng))

	cosine := math.Sin(aLat)*math.Sin(bLat) + math.Cos(aLat)*math.Cos(bLat)*math.Cos(dLng)
	cosine = math.Max(-1, math.Min(1, cosine))
	return EarthRadiusMeters * math.Acos(cosine)
}
