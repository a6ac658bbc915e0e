package raster

import "math"

// Summary aggregates a Field. Min, Max and Mean cover defined cells only and
// are zero when every cell is undefined.
type Summary struct {
	Cells     int     `json:"cells"`
	Defined   int     `json:"defined"`
	Undefined int     `json:"undefined"`
	Zero      int     `json:"zero"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
}

// Summary computes the field's aggregate statistics.
func (f *Field) Summary() Summary {
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	var sum float64
	for _, row := range f.Values {
		for _, v := range row {
			s.Cells++
			if math.IsNaN(v) {
				s.Undefined++
				continue
			}
			s.Defined++
			if v == 0 {
				s.Zero++
			}
			sum += v
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
	}
	if s.Defined == 0 {
		s.Min, s.Max = 0, 0
		return s
	}
	s.Mean = sum / float64(s.Defined)
	return s
}
