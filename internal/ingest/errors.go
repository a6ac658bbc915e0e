// Package ingest loads the power station, submarine cable and planning zone
// datasets and converts their geometries into the internal coordinate types.
package ingest

import "fmt"

// GeometryConversionError reports a zone whose geometry cannot be represented
// as compound polygons.
type GeometryConversionError struct {
	Code string // zone code, if known
	Type string // geometry type encountered
	Err  error
}

func (e *GeometryConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingest: zone %q: cannot convert %s geometry: %v", e.Code, e.Type, e.Err)
	}
	return fmt.Sprintf("ingest: zone %q: unsupported geometry type %s", e.Code, e.Type)
}

func (e *GeometryConversionError) Unwrap() error {
	return e.Err
}
