package store

import "math"

var nan = math.NaN()

// scoreValue maps an undefined score to SQL NULL.
func scoreValue(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
