package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/sitescore/internal/geo"
	"github.com/sells-group/sitescore/internal/zoning"
)

// DefaultZoneCodeField is the property carrying a planning zone's code.
const DefaultZoneCodeField = "ZONE_CODE"

// ZoneRecord is a zone as read from a dataset, before conversion.
type ZoneRecord struct {
	Code     string
	BBox     []float64 // [minLng, minLat, maxLng, maxLat]; optional
	Geometry geom.T
}

// ConvertZone converts a record's Polygon or MultiPolygon geometry into a
// zone. For each polygon the first ring becomes the outer ring and the second,
// if present, the hole; further rings are dropped. Any other geometry type is
// a GeometryConversionError.
func ConvertZone(rec ZoneRecord) (zoning.Zone, error) {
	var polys []geo.CompoundPolygon

	switch g := rec.Geometry.(type) {
	case *geom.Polygon:
		cp, err := compoundPolygon(g)
		if err != nil {
			return zoning.Zone{}, &GeometryConversionError{Code: rec.Code, Type: "Polygon", Err: err}
		}
		polys = append(polys, cp)
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			cp, err := compoundPolygon(g.Polygon(i))
			if err != nil {
				return zoning.Zone{}, &GeometryConversionError{
					Code: rec.Code,
					Type: "MultiPolygon",
					Err:  eris.Wrapf(err, "polygon %d", i),
				}
			}
			polys = append(polys, cp)
		}
	default:
		return zoning.Zone{}, &GeometryConversionError{Code: rec.Code, Type: geometryType(rec.Geometry)}
	}

	if len(polys) == 0 {
		return zoning.Zone{}, &GeometryConversionError{
			Code: rec.Code,
			Type: geometryType(rec.Geometry),
			Err:  errors.New("no polygons"),
		}
	}

	z := zoning.Zone{Code: rec.Code, Polygons: polys}
	if len(rec.BBox) > 0 {
		b, err := geo.BBoxFromSlice(rec.BBox)
		if err != nil {
			return zoning.Zone{}, &GeometryConversionError{Code: rec.Code, Type: geometryType(rec.Geometry), Err: err}
		}
		z.BBox = b
		return z, nil
	}
	z.BBox = polys[0].Outer.Bounds()
	for _, p := range polys[1:] {
		z.BBox = z.BBox.Extend(p.Outer.Bounds())
	}
	return z, nil
}

func compoundPolygon(p *geom.Polygon) (geo.CompoundPolygon, error) {
	if p.NumLinearRings() == 0 {
		return geo.CompoundPolygon{}, errors.New("polygon has no rings")
	}
	outer, err := ring(p.LinearRing(0).Coords())
	if err != nil {
		return geo.CompoundPolygon{}, eris.Wrap(err, "outer ring")
	}
	cp := geo.CompoundPolygon{Outer: outer}
	if p.NumLinearRings() > 1 {
		hole, err := ring(p.LinearRing(1).Coords())
		if err != nil {
			return geo.CompoundPolygon{}, eris.Wrap(err, "hole")
		}
		cp.Hole = hole
	}
	return cp, nil
}

// ZoneOptions configures zone loading.
type ZoneOptions struct {
	// CodeField is the feature property holding the zone code.
	// Defaults to DefaultZoneCodeField.
	CodeField string
	// SkipInvalid logs and skips zones that fail conversion instead of
	// aborting the load.
	SkipInvalid bool
}

func (o ZoneOptions) codeField() string {
	if o.CodeField == "" {
		return DefaultZoneCodeField
	}
	return o.CodeField
}

// LoadZones reads a GeoJSON feature collection of planning zones.
func LoadZones(path string, opts ZoneOptions) ([]zoning.Zone, error) {
	return loadFile(path, "zones", func(r io.Reader) ([]zoning.Zone, error) {
		return ReadZones(r, opts)
	})
}

// ReadZones decodes a GeoJSON feature collection of planning zones.
func ReadZones(r io.Reader, opts ZoneOptions) ([]zoning.Zone, error) {
	log := zap.L().With(zap.String("component", "ingest.zones"))

	fc, err := readCollection(r)
	if err != nil {
		return nil, err
	}

	field := opts.codeField()
	zones := make([]zoning.Zone, 0, len(fc.Features))
	var skipped int
	for i, feat := range fc.Features {
		code, err := propertyString(feat.Properties, field)
		if err == nil {
			var z zoning.Zone
			z, err = convertFeature(feat, code)
			if err == nil {
				zones = append(zones, z)
				continue
			}
		}
		if !opts.SkipInvalid {
			return nil, eris.Wrapf(err, "ingest: feature %d", i)
		}
		skipped++
		log.Warn("skipping invalid zone", zap.Int("feature", i), zap.String("code", code), zap.Error(err))
	}

	log.Debug("zones decoded", zap.Int("zones", len(zones)), zap.Int("skipped", skipped))
	return zones, nil
}

func convertFeature(feat feature, code string) (zoning.Zone, error) {
	g, err := decodeGeometry(feat.Geometry)
	if err != nil {
		return zoning.Zone{}, &GeometryConversionError{Code: code, Type: "unknown", Err: err}
	}
	return ConvertZone(ZoneRecord{Code: code, BBox: feat.bbox(), Geometry: g})
}

// propertyString reads a string (or number) property.
func propertyString(raw json.RawMessage, name string) (string, error) {
	var props map[string]any
	if err := json.Unmarshal(raw, &props); err != nil {
		return "", eris.Wrap(err, "decode properties")
	}
	v, ok := props[name]
	if !ok || v == nil {
		return "", eris.Errorf("missing property %q", name)
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case float64:
		return fmt.Sprintf("%g", s), nil
	default:
		return "", eris.Errorf("property %q has unsupported type %T", name, v)
	}
}
