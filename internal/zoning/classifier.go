package zoning

import (
	"fmt"
	"strings"

	"github.com/sells-group/sitescore/internal/geo"
)

// ConfigError reports zone codes configured as both included and excluded.
type ConfigError struct {
	Codes []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("zoning: codes listed as both include and exclude: %s", strings.Join(e.Codes, ", "))
}

// Classifier holds the include and exclude zone sets. Both are built once and
// never modified.
type Classifier struct {
	Include *Set
	Exclude *Set
}

// Partition splits zones into include and exclude sets by code. Zones whose
// code is on neither list are dropped. The lists must be disjoint.
func Partition(zones []Zone, include, exclude CodeList) (*Classifier, error) {
	if overlap := include.Overlap(exclude); len(overlap) > 0 {
		return nil, &ConfigError{Codes: overlap}
	}
	return PartitionFunc(zones, include.Contains, exclude.Contains)
}

// PartitionFunc splits zones using membership predicates. A zone matching both
// predicates is a configuration error.
func PartitionFunc(zones []Zone, include, exclude func(code string) bool) (*Classifier, error) {
	var in, out []Zone
	conflicts := map[string]struct{}{}
	for _, z := range zones {
		inc, exc := include(z.Code), exclude(z.Code)
		switch {
		case inc && exc:
			conflicts[z.Code] = struct{}{}
		case inc:
			in = append(in, z)
		case exc:
			out = append(out, z)
		}
	}
	if len(conflicts) > 0 {
		codes := make([]string, 0, len(conflicts))
		for c := range conflicts {
			codes = append(codes, c)
		}
		return nil, &ConfigError{Codes: NewCodeList(codes...).Sorted()}
	}
	return &Classifier{Include: NewSet(in), Exclude: NewSet(out)}, nil
}

// Excluded reports whether p lies in an exclude-listed zone.
func (c *Classifier) Excluded(p geo.Coordinate) bool {
	return c.Exclude.InsideAny(p)
}

// Included reports whether p lies in an include-listed zone.
func (c *Classifier) Included(p geo.Coordinate) bool {
	return c.Include.InsideAny(p)
}
