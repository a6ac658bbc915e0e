package ingest

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/proximity"
)

type stationProperties struct {
	Name         string   `json:"name"`
	GenerationMW *float64 `json:"generationmw"`
}

type cableProperties struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoadStations reads a GeoJSON feature collection of power station points.
func LoadStations(path string) ([]proximity.Station, error) {
	return loadFile(path, "stations", ReadStations)
}

// ReadStations decodes power station points. A null generationmw leaves the
// station's capacity unknown.
func ReadStations(r io.Reader) ([]proximity.Station, error) {
	fc, err := readCollection(r)
	if err != nil {
		return nil, err
	}

	stations := make([]proximity.Station, 0, len(fc.Features))
	for i, feat := range fc.Features {
		var props stationProperties
		if len(feat.Properties) > 0 {
			if err := json.Unmarshal(feat.Properties, &props); err != nil {
				return nil, eris.Wrapf(err, "ingest: station %d: decode properties", i)
			}
		}
		g, err := decodeGeometry(feat.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: station %d", i)
		}
		pt, ok := g.(*geom.Point)
		if !ok {
			return nil, eris.Errorf("ingest: station %d: expected Point geometry, got %s", i, geometryType(g))
		}
		loc, err := coordinate(pt.Coords())
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: station %d", i)
		}
		stations = append(stations, proximity.Station{
			Name:         props.Name,
			Location:     loc,
			GenerationMW: props.GenerationMW,
		})
	}
	return stations, nil
}

// LoadCables reads a GeoJSON feature collection of submarine cable routes.
func LoadCables(path string) ([]proximity.Cable, error) {
	return loadFile(path, "cables", ReadCables)
}

// ReadCables decodes LineString and MultiLineString cable routes keyed by
// properties.id.
func ReadCables(r io.Reader) ([]proximity.Cable, error) {
	fc, err := readCollection(r)
	if err != nil {
		return nil, err
	}

	cables := make([]proximity.Cable, 0, len(fc.Features))
	for i, feat := range fc.Features {
		var props cableProperties
		if err := json.Unmarshal(feat.Properties, &props); err != nil {
			return nil, eris.Wrapf(err, "ingest: cable %d: decode properties", i)
		}
		if props.ID == "" {
			return nil, eris.Errorf("ingest: cable %d: missing id", i)
		}
		g, err := decodeGeometry(feat.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: cable %s", props.ID)
		}

		var coords [][]geom.Coord
		switch g := g.(type) {
		case *geom.LineString:
			coords = append(coords, g.Coords())
		case *geom.MultiLineString:
			for j := 0; j < g.NumLineStrings(); j++ {
				coords = append(coords, g.LineString(j).Coords())
			}
		default:
			return nil, eris.Errorf("ingest: cable %s: expected LineString or MultiLineString, got %s", props.ID, geometryType(g))
		}

		cable := proximity.Cable{ID: props.ID, Name: props.Name}
		for _, c := range coords {
			l, err := line(c)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: cable %s", props.ID)
			}
			cable.Lines = append(cable.Lines, l)
		}
		cables = append(cables, cable)
	}
	return cables, nil
}

func loadFile[T any](path, kind string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	out, err := read(f)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: load %s from %s", kind, path)
	}
	zap.L().With(zap.String("component", "ingest."+kind)).
		Debug("dataset loaded", zap.String("path", path), zap.Int("records", len(out)))
	return out, nil
}
