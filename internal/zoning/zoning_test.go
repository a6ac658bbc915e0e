package zoning

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitescore/internal/geo"
)

func box(minLng, minLat, maxLng, maxLat float64) geo.Ring {
	return geo.Ring{
		{Lat: minLat, Lng: minLng},
		{Lat: maxLat, Lng: minLng},
		{Lat: maxLat, Lng: maxLng},
		{Lat: minLat, Lng: maxLng},
	}
}

func zoneFrom(code string, polys ...geo.CompoundPolygon) Zone {
	b := polys[0].Outer.Bounds()
	for _, p := range polys[1:] {
		b = b.Extend(p.Outer.Bounds())
	}
	return Zone{Code: code, BBox: b, Polygons: polys}
}

func testZones() []Zone {
	return []Zone{
		// Residential block with a park cut out of the middle.
		zoneFrom("GRZ1", geo.CompoundPolygon{
			Outer: box(145.0, -38.0, 145.2, -37.8),
			Hole:  box(145.05, -37.95, 145.15, -37.85),
		}),
		// Two-part industrial zone.
		zoneFrom("IN1Z",
			geo.CompoundPolygon{Outer: box(144.0, -38.0, 144.1, -37.9)},
			geo.CompoundPolygon{Outer: box(144.5, -38.0, 144.6, -37.9)},
		),
		zoneFrom("PPRZ", geo.CompoundPolygon{Outer: box(146.0, -38.0, 146.1, -37.9)}),
		zoneFrom("C1Z", geo.CompoundPolygon{Outer: box(147.0, -38.0, 147.1, -37.9)}),
	}
}

func TestPartition_SplitsByCode(t *testing.T) {
	c, err := Partition(testZones(), NewCodeList(DefaultIncludeCodes()...), NewCodeList(DefaultExcludeCodes()...))
	require.NoError(t, err)

	assert.Equal(t, 1, c.Include.Len())
	assert.Equal(t, 2, c.Exclude.Len())
	assert.Equal(t, map[string]int{"GRZ1": 1, "PPRZ": 1}, c.Exclude.CodeCounts())
	assert.Equal(t, map[string]int{"IN1Z": 1}, c.Include.CodeCounts())
}

func TestPartition_OverlappingListsRejected(t *testing.T) {
	_, err := Partition(testZones(), NewCodeList("FZ", "GRZ1"), NewCodeList("GRZ1", "PPRZ"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, []string{"GRZ1"}, cfgErr.Codes)
	assert.Contains(t, err.Error(), "GRZ1")
}

func TestPartitionFunc_ConflictingPredicates(t *testing.T) {
	always := func(string) bool { return true }
	_, err := PartitionFunc(testZones(), always, always)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"C1Z", "GRZ1", "IN1Z", "PPRZ"}, cfgErr.Codes)
}

func TestSet_InsideAny(t *testing.T) {
	c, err := Partition(testZones(), NewCodeList(DefaultIncludeCodes()...), NewCodeList(DefaultExcludeCodes()...))
	require.NoError(t, err)

	tests := []struct {
		name     string
		p        geo.Coordinate
		excluded bool
		included bool
	}{
		{"residential body", geo.Coordinate{Lat: -37.82, Lng: 145.01}, true, false},
		{"park hole counts as excluded", geo.Coordinate{Lat: -37.9, Lng: 145.1}, true, false},
		{"public park", geo.Coordinate{Lat: -37.95, Lng: 146.05}, true, false},
		{"industrial first part", geo.Coordinate{Lat: -37.95, Lng: 144.05}, false, true},
		{"industrial second part", geo.Coordinate{Lat: -37.95, Lng: 144.55}, false, true},
		{"between industrial parts", geo.Coordinate{Lat: -37.95, Lng: 144.3}, false, false},
		{"commercial zone is neither", geo.Coordinate{Lat: -37.95, Lng: 147.05}, false, false},
		{"far away", geo.Coordinate{Lat: 10, Lng: 10}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.excluded, c.Excluded(tt.p))
			assert.Equal(t, tt.included, c.Included(tt.p))
		})
	}
}

func TestSet_InsideAnyStrictSubtractsHoles(t *testing.T) {
	set := NewSet(testZones()[:1])
	hole := geo.Coordinate{Lat: -37.9, Lng: 145.1}
	body := geo.Coordinate{Lat: -37.82, Lng: 145.01}

	assert.True(t, set.InsideAny(hole))
	assert.False(t, set.InsideAnyStrict(hole))
	assert.True(t, set.InsideAnyStrict(body))
}

func TestSet_BBoxRejectsBeforeRing(t *testing.T) {
	// A zone whose box excludes the point is skipped even if the ring would
	// contain it.
	z := Zone{
		Code:     "GRZ1",
		BBox:     geo.BBox{MinLng: 0, MinLat: 0, MaxLng: 1, MaxLat: 1},
		Polygons: []geo.CompoundPolygon{{Outer: box(144, -38, 146, -36)}},
	}
	set := NewSet([]Zone{z})
	assert.False(t, set.InsideAny(geo.Coordinate{Lat: -37, Lng: 145}))
}

func TestSet_FindAndBounds(t *testing.T) {
	set := NewSet(testZones())
	z, ok := set.Find(geo.Coordinate{Lat: -37.95, Lng: 146.05})
	require.True(t, ok)
	assert.Equal(t, "PPRZ", z.Code)

	_, ok = set.Find(geo.Coordinate{Lat: 0, Lng: 0})
	assert.False(t, ok)

	b, ok := set.Bounds()
	require.True(t, ok)
	assert.Equal(t, geo.BBox{MinLng: 144.0, MinLat: -38.0, MaxLng: 147.1, MaxLat: -37.8}, b)

	_, ok = NewSet(nil).Bounds()
	assert.False(t, ok)
}

func TestNilSetIsEmpty(t *testing.T) {
	var s *Set
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.InsideAny(geo.Coordinate{}))
	assert.False(t, s.InsideAnyStrict(geo.Coordinate{}))
	assert.Empty(t, s.CodeCounts())
}

func TestCodeList(t *testing.T) {
	cl := NewCodeList(" GRZ1 ", "", "NRZ2", "GRZ1")
	assert.Len(t, cl, 2)
	assert.True(t, cl.Contains("GRZ1"))
	assert.False(t, cl.Contains(" GRZ1 "))
	assert.Equal(t, []string{"GRZ1", "NRZ2"}, cl.Sorted())
	assert.Equal(t, []string{"NRZ2"}, cl.Overlap(NewCodeList("NRZ2", "FZ")))
}

func TestDefaultCodes(t *testing.T) {
	include := NewCodeList(DefaultIncludeCodes()...)
	exclude := NewCodeList(DefaultExcludeCodes()...)

	assert.Empty(t, include.Overlap(exclude))
	assert.Len(t, include, 5)
	// GRZ + 18 schedules, 14 NRZ, LDRZ + 6, RGZ + 9, PPRZ, PCRZ.
	assert.Len(t, exclude, 19+14+7+10+2)
	for _, code := range []string{"GRZ", "GRZ18", "NRZ14", "LDRZ6", "RGZ9", "PCRZ"} {
		assert.True(t, exclude.Contains(code), code)
	}
	assert.False(t, exclude.Contains("NRZ"))
}
