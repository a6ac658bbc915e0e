package geo

// Ring is a closed polygon boundary. The last vertex connects back to the
// first; callers must not repeat the first vertex to close it, although a
// repeated vertex only adds a zero-length edge and does not change results.
//
// Rings with fewer than three vertices, or zero area, have undefined but
// deterministic containment.
type Ring []Coordinate

// Edges calls fn for every edge of the ring in order, finishing with the wrap
// edge from the last vertex back to the first. Iteration stops early when fn
// returns false.
func (r Ring) Edges(fn func(start, end Coordinate) bool) {
	n := len(r)
	if n < 2 {
		return
	}
	for i := 0; i < n-1; i++ {
		if !fn(r[i], r[i+1]) {
			return
		}
	}
	fn(r[n-1], r[0])
}

// Bounds returns the axis-aligned box enclosing the ring's vertices.
func (r Ring) Bounds() BBox {
	if len(r) == 0 {
		return BBox{}
	}
	b := BBox{MinLng: r[0].Lng, MinLat: r[0].Lat, MaxLng: r[0].Lng, MaxLat: r[0].Lat}
	for _, c := range r[1:] {
		b.MinLng = min(b.MinLng, c.Lng)
		b.MinLat = min(b.MinLat, c.Lat)
		b.MaxLng = max(b.MaxLng, c.Lng)
		b.MaxLat = max(b.MaxLat, c.Lat)
	}
	return b
}

// InsideRing reports whether p lies inside ring using the even-odd rule: a
// horizontal ray from p toggles the result at every edge it crosses.
//
// No bounding-box pre-check is done; callers scanning many rings filter by
// box first.
func InsideRing(ring Ring, p Coordinate) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	ring.Edges(func(start, end Coordinate) bool {
		if (start.Lat > p.Lat) != (end.Lat > p.Lat) &&
			p.Lng < (start.Lng-end.Lng)*(p.Lat-end.Lat)/(start.Lat-end.Lat)+end.Lng {
			inside = !inside
		}
		return true
	})
	return inside
}
