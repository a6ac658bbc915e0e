// Package zoning classifies points against planning-zone polygons split into
// include and exclude sets by zone code.
package zoning

import (
	"sort"
	"strings"

	"github.com/sells-group/sitescore/internal/geo"
)

// Zone is a planning zone. A zone loaded from a MultiPolygon carries one
// compound polygon per part.
type Zone struct {
	Code     string                `json:"code"`
	BBox     geo.BBox              `json:"bbox"`
	Polygons []geo.CompoundPolygon `json:"polygons"`
}

// ContainsOuter reports whether p is inside the zone's box and inside the
// outer ring of any of its polygons. Holes are not subtracted.
func (z *Zone) ContainsOuter(p geo.Coordinate) bool {
	if !z.BBox.Contains(p) {
		return false
	}
	for _, poly := range z.Polygons {
		if poly.ContainsOuter(p) {
			return true
		}
	}
	return false
}

// Contains is ContainsOuter with holes subtracted.
func (z *Zone) Contains(p geo.Coordinate) bool {
	if !z.BBox.Contains(p) {
		return false
	}
	for _, poly := range z.Polygons {
		if poly.Contains(p) {
			return true
		}
	}
	return false
}

// Set is an immutable list of zones scanned linearly per query. Zone counts
// are in the low thousands and the box test rejects almost all of them in
// constant time.
type Set struct {
	zones []Zone
}

// NewSet copies zones into a Set.
func NewSet(zones []Zone) *Set {
	return &Set{zones: append([]Zone(nil), zones...)}
}

// Len returns the number of zones.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.zones)
}

// InsideAny reports whether p falls in any zone of the set, testing outer
// rings only.
//
// Holes are ignored: a point in a courtyard cut out of an excluded zone still
// counts as excluded. InsideAnyStrict subtracts holes.
func (s *Set) InsideAny(p geo.Coordinate) bool {
	_, ok := s.Find(p)
	return ok
}

// InsideAnyStrict reports whether p falls in any zone with holes subtracted.
func (s *Set) InsideAnyStrict(p geo.Coordinate) bool {
	if s == nil {
		return false
	}
	for i := range s.zones {
		if s.zones[i].Contains(p) {
			return true
		}
	}
	return false
}

// Find returns the first zone whose outer rings contain p.
func (s *Set) Find(p geo.Coordinate) (*Zone, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.zones {
		if s.zones[i].ContainsOuter(p) {
			return &s.zones[i], true
		}
	}
	return nil, false
}

// CodeCounts returns the number of zones per code.
func (s *Set) CodeCounts() map[string]int {
	counts := make(map[string]int)
	if s == nil {
		return counts
	}
	for _, z := range s.zones {
		counts[z.Code]++
	}
	return counts
}

// Bounds returns the box covering every zone in the set.
func (s *Set) Bounds() (geo.BBox, bool) {
	if s.Len() == 0 {
		return geo.BBox{}, false
	}
	b := s.zones[0].BBox
	for _, z := range s.zones[1:] {
		b = b.Extend(z.BBox)
	}
	return b, true
}

// CodeList is a set of zone codes.
type CodeList map[string]struct{}

// NewCodeList builds a CodeList, trimming whitespace and dropping blanks.
func NewCodeList(codes ...string) CodeList {
	cl := make(CodeList, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		cl[c] = struct{}{}
	}
	return cl
}

// Contains reports whether code is in the list.
func (c CodeList) Contains(code string) bool {
	_, ok := c[code]
	return ok
}

// Sorted returns the codes in lexical order.
func (c CodeList) Sorted() []string {
	out := make([]string, 0, len(c))
	for code := range c {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Overlap returns the codes present in both lists, sorted.
func (c CodeList) Overlap(o CodeList) []string {
	var out []string
	for code := range c {
		if o.Contains(code) {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}
