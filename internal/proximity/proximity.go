// Package proximity answers nearest-distance and radius queries over power
// stations and submarine cable routes.
package proximity

import (
	"errors"
	"fmt"
	"math"

	"github.com/sells-group/sitescore/internal/geo"
)

// ErrEmptyInput is matched by every EmptyInputError.
var ErrEmptyInput = errors.New("proximity: empty input")

// EmptyInputError reports a query against an infrastructure set with no
// records. It indicates a data or configuration problem, not a property of the
// queried point.
type EmptyInputError struct {
	Set string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("proximity: no %s loaded", e.Set)
}

// Is makes errors.Is(err, ErrEmptyInput) succeed.
func (e *EmptyInputError) Is(target error) bool {
	return target == ErrEmptyInput
}

// Station is a power generation site.
type Station struct {
	Name         string         `json:"name,omitempty"`
	Location     geo.Coordinate `json:"location"`
	GenerationMW *float64       `json:"generation_mw,omitempty"`
}

// Cable is a submarine cable route. Each line is a polyline of densely sampled
// vertices.
type Cable struct {
	ID    string             `json:"id"`
	Name  string             `json:"name,omitempty"`
	Lines [][]geo.Coordinate `json:"lines"`
}

// VertexCount returns the number of vertices across all lines.
func (c Cable) VertexCount() int {
	n := 0
	for _, l := range c.Lines {
		n += len(l)
	}
	return n
}

// FilterCables keeps the cables whose ID is in allow, preserving input order.
// An empty allow list keeps nothing.
func FilterCables(cables []Cable, allow []string) []Cable {
	ids := make(map[string]struct{}, len(allow))
	for _, id := range allow {
		ids[id] = struct{}{}
	}
	var out []Cable
	for _, c := range cables {
		if _, ok := ids[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Index holds the infrastructure sets queried during scoring. It is read-only
// after construction and safe for concurrent use.
type Index struct {
	stations []Station
	cables   []Cable
	vertices int
}

// NewIndex copies stations and cables into an Index.
func NewIndex(stations []Station, cables []Cable) *Index {
	idx := &Index{
		stations: append([]Station(nil), stations...),
		cables:   append([]Cable(nil), cables...),
	}
	for _, c := range idx.cables {
		idx.vertices += c.VertexCount()
	}
	return idx
}

// Stations returns the number of stations.
func (idx *Index) Stations() int { return len(idx.stations) }

// Cables returns the number of cables.
func (idx *Index) Cables() int { return len(idx.cables) }

// CableVertices returns the number of cable vertices.
func (idx *Index) CableVertices() int { return idx.vertices }

// NearestStation returns the distance in meters from p to the closest station.
func (idx *Index) NearestStation(p geo.Coordinate) (float64, error) {
	if len(idx.stations) == 0 {
		return 0, &EmptyInputError{Set: "power stations"}
	}
	best := math.Inf(1)
	for _, s := range idx.stations {
		best = math.Min(best, geo.Distance(p, s.Location))
	}
	return best, nil
}

// MegawattsWithin sums the generation capacity of stations within radius
// meters of p, inclusive. Stations with unknown capacity are left out of the
// sum rather than counted as zero, so a result of 0 with nearby stations of
// unknown size is possible.
func (idx *Index) MegawattsWithin(p geo.Coordinate, radius float64) (float64, error) {
	if len(idx.stations) == 0 {
		return 0, &EmptyInputError{Set: "power stations"}
	}
	var total float64
	for _, s := range idx.stations {
		if s.GenerationMW == nil {
			continue
		}
		if geo.Distance(p, s.Location) <= radius {
			total += *s.GenerationMW
		}
	}
	return total, nil
}

// NearestCable returns the distance in meters from p to the closest cable
// vertex. Segments between vertices are not considered; cable routes are
// sampled densely enough that the vertex distance is a close upper bound.
func (idx *Index) NearestCable(p geo.Coordinate) (float64, error) {
	if idx.vertices == 0 {
		return 0, &EmptyInputError{Set: "cable vertices"}
	}
	best := math.Inf(1)
	for _, c := range idx.cables {
		for _, line := range c.Lines {
			for _, v := range line {
				best = math.Min(best, geo.Distance(p, v))
			}
		}
	}
	return best, nil
}
