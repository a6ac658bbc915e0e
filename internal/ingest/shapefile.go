package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/sitescore/internal/zoning"
)

// ShapefileOptions configures LoadZonesShapefile.
type ShapefileOptions struct {
	ZoneOptions
	// Charset names the DBF attribute encoding (e.g. "windows-1252"). Empty
	// means attributes are used as stored.
	Charset string
}

// LoadZonesShapefile reads planning zones from an ESRI shapefile. Polygon
// parts wound clockwise start a new polygon; the first counter-clockwise part
// that follows becomes its hole.
func LoadZonesShapefile(path string, opts ShapefileOptions) ([]zoning.Zone, error) {
	log := zap.L().With(zap.String("component", "ingest.shapefile"))

	var dec *encoding.Decoder
	if opts.Charset != "" {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: unsupported charset %q", opts.Charset)
		}
		dec = enc.NewDecoder()
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	field := opts.codeField()
	codeIdx := fieldIndex(reader, field)
	if codeIdx < 0 {
		return nil, eris.Errorf("ingest: shapefile %s has no %s field", path, field)
	}

	var zones []zoning.Zone
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		if shape == nil {
			continue
		}

		code := strings.TrimSpace(strings.Trim(reader.Attribute(codeIdx), "\x00"))
		if dec != nil {
			decoded, err := dec.String(code)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: decode record %d attribute", n)
			}
			code = decoded
		}

		z, err := ConvertZone(ZoneRecord{Code: code, Geometry: shapeToGeometry(shape)})
		if err != nil {
			if !opts.SkipInvalid {
				return nil, eris.Wrapf(err, "ingest: shapefile record %d", n)
			}
			skipped++
			log.Warn("skipping invalid zone", zap.Int("record", n), zap.String("code", code), zap.Error(err))
			continue
		}
		zones = append(zones, z)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "ingest: read shapefile %s", path)
	}

	log.Debug("shapefile zones loaded", zap.String("path", path), zap.Int("zones", len(zones)), zap.Int("skipped", skipped))
	return zones, nil
}

// fieldIndex returns the index of a named DBF field, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// shapeToGeometry converts a shapefile shape to go-geom. Polygons become a
// MultiPolygon grouped by ring orientation; other shape types are returned as
// nil so ConvertZone reports them.
func shapeToGeometry(s shp.Shape) geom.T {
	p, ok := s.(*shp.Polygon)
	if !ok || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current != nil {
			if err := mp.Push(current); err != nil {
				zap.L().Debug("ingest: skipping malformed polygon part", zap.Error(err))
			}
		}
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start >= end {
			continue
		}
		pts := p.Points[start:end]
		flat := make([]float64, 0, len(pts)*2)
		for _, pt := range pts {
			flat = append(flat, pt.X, pt.Y)
		}
		lr := geom.NewLinearRingFlat(geom.XY, flat)

		if signedArea(pts) <= 0 || current == nil {
			// Clockwise: a new outer ring. A leading counter-clockwise ring is
			// treated as outer too.
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(lr); err != nil {
			zap.L().Debug("ingest: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is twice the shoelace area: negative for clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return a
}
