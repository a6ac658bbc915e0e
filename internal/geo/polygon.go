package geo

import "github.com/rotisserie/eris"

// CompoundPolygon is an outer boundary with at most one hole.
type CompoundPolygon struct {
	Outer Ring `json:"outer"`
	Hole  Ring `json:"hole,omitempty"`
}

// HasHole reports whether the polygon carries an inner ring.
func (cp CompoundPolygon) HasHole() bool {
	return len(cp.Hole) > 0
}

// ContainsOuter tests p against the outer ring only, ignoring any hole. This
// is the containment used by zone classification.
func (cp CompoundPolygon) ContainsOuter(p Coordinate) bool {
	return InsideRing(cp.Outer, p)
}

// Contains tests p against the outer ring and excludes points inside the hole.
func (cp CompoundPolygon) Contains(p Coordinate) bool {
	if !InsideRing(cp.Outer, p) {
		return false
	}
	return !cp.HasHole() || !InsideRing(cp.Hole, p)
}

// BBox is an axis-aligned longitude/latitude box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// BBoxFromSlice converts a GeoJSON-style [minLng, minLat, maxLng, maxLat] box.
func BBoxFromSlice(v []float64) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, eris.Errorf("geo: bbox needs 4 values, got %d", len(v))
	}
	return BBox{MinLng: v[0], MinLat: v[1], MaxLng: v[2], MaxLat: v[3]}, nil
}

// Contains reports whether p lies strictly between the box's edges on both
// axes. The test does not depend on which corner is stored as min, so boxes
// with swapped extents still work.
func (b BBox) Contains(p Coordinate) bool {
	return (p.Lat > b.MinLat) != (p.Lat > b.MaxLat) &&
		(p.Lng > b.MinLng) != (p.Lng > b.MaxLng)
}

// Extend grows b to cover o.
func (b BBox) Extend(o BBox) BBox {
	return BBox{
		MinLng: min(b.MinLng, o.MinLng),
		MinLat: min(b.MinLat, o.MinLat),
		MaxLng: max(b.MaxLng, o.MaxLng),
		MaxLat: max(b.MaxLat, o.MaxLat),
	}
}
