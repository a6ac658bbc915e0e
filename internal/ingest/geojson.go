package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/sitescore/internal/geo"
)

// featureCollection is the envelope of a GeoJSON file. Geometries are kept
// raw and decoded with go-geom; properties are decoded per dataset.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	BBox       []float64       `json:"bbox,omitempty"`
	Properties json.RawMessage `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// geometryBBox picks the bbox member off a geometry object. The planning
// zones dataset stores it there rather than on the feature.
type geometryBBox struct {
	BBox []float64 `json:"bbox"`
}

func readCollection(r io.Reader) (*featureCollection, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "ingest: decode feature collection")
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, eris.Errorf("ingest: expected FeatureCollection, got %s", fc.Type)
	}
	return &fc, nil
}

// decodeGeometry returns nil for a missing or null geometry.
func decodeGeometry(raw json.RawMessage) (geom.T, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "ingest: decode geometry")
	}
	return g, nil
}

// bbox returns the geometry's bbox, falling back to the feature's.
func (f feature) bbox() []float64 {
	var gb geometryBBox
	if len(f.Geometry) > 0 && json.Unmarshal(f.Geometry, &gb) == nil && len(gb.BBox) > 0 {
		return gb.BBox
	}
	return f.BBox
}

// geometryType names g for error messages.
func geometryType(g geom.T) string {
	switch g.(type) {
	case nil:
		return "null"
	case *geom.Point:
		return "Point"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.LineString:
		return "LineString"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	default:
		return fmt.Sprintf("%T", g)
	}
}

// coordinate swaps a GeoJSON [lng, lat] position into a Coordinate.
func coordinate(c geom.Coord) (geo.Coordinate, error) {
	if len(c) < 2 {
		return geo.Coordinate{}, eris.Errorf("position has %d values", len(c))
	}
	p := geo.FromLngLat(c[0], c[1])
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return geo.Coordinate{}, eris.Errorf("non-finite position %v", []float64(c))
	}
	return p, nil
}

// line converts a run of positions.
func line(coords []geom.Coord) ([]geo.Coordinate, error) {
	out := make([]geo.Coordinate, 0, len(coords))
	for _, c := range coords {
		p, err := coordinate(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ring converts a GeoJSON linear ring, dropping the repeated closing position.
func ring(coords []geom.Coord) (geo.Ring, error) {
	pts, err := line(coords)
	if err != nil {
		return nil, err
	}
	if n := len(pts); n > 1 && pts[0] == pts[n-1] {
		pts = pts[:n-1]
	}
	return geo.Ring(pts), nil
}
