// Package region implements the tiered point-in-region test and bundles the
// national and state outlines used for scoring.
package region

import (
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sitescore/internal/geo"
)

// Bundled region names.
const (
	NameAustralia = "australia"
	NameVictoria  = "victoria"
)

//go:embed outlines.yaml
var outlinesYAML []byte

// Tier identifies which ring decided a containment query.
type Tier int

const (
	TierInner Tier = iota + 1
	TierOuter
	TierPrecise
)

func (t Tier) String() string {
	switch t {
	case TierInner:
		return "inner"
	case TierOuter:
		return "outer"
	case TierPrecise:
		return "precise"
	default:
		return "unknown"
	}
}

// Definition is a named region approximated by three rings: an inner ring
// wholly inside the region, an outer ring wholly enclosing it, and the precise
// outline. Either approximation may be empty, in which case its tier is
// skipped.
type Definition struct {
	Name    string   `yaml:"-"`
	Inner   geo.Ring `yaml:"inner"`
	Outer   geo.Ring `yaml:"outer"`
	Precise geo.Ring `yaml:"precise"`
}

// Contains reports whether p lies within the region.
func (d *Definition) Contains(p geo.Coordinate) bool {
	in, _ := d.ContainsTier(p)
	return in
}

// ContainsTier evaluates the tiers in order (inner accept, outer reject,
// precise) and also returns the tier that produced the answer. The result is
// always identical to InsideRing(d.Precise, p) provided the inner ring lies
// within the precise outline and the outer ring encloses it.
func (d *Definition) ContainsTier(p geo.Coordinate) (bool, Tier) {
	if len(d.Inner) > 0 && geo.InsideRing(d.Inner, p) {
		return true, TierInner
	}
	if len(d.Outer) > 0 && !geo.InsideRing(d.Outer, p) {
		return false, TierOuter
	}
	return geo.InsideRing(d.Precise, p), TierPrecise
}

// Validate checks that every ring present has enough vertices to bound an area.
func (d *Definition) Validate() error {
	if len(d.Precise) < 3 {
		return eris.Errorf("region: %s precise outline needs at least 3 points, got %d", d.Name, len(d.Precise))
	}
	if n := len(d.Inner); n > 0 && n < 3 {
		return eris.Errorf("region: %s inner ring needs at least 3 points, got %d", d.Name, n)
	}
	if n := len(d.Outer); n > 0 && n < 3 {
		return eris.Errorf("region: %s outer ring needs at least 3 points, got %d", d.Name, n)
	}
	return nil
}

type outlineFile struct {
	Regions map[string]*Definition `yaml:"regions"`
}

// Parse decodes a YAML outline file. YAML anchors let one region reuse
// another's ring, as the bundled state outline does with the national outer
// ring.
func Parse(data []byte) (map[string]*Definition, error) {
	var f outlineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "region: parse outlines")
	}
	if len(f.Regions) == 0 {
		return nil, eris.New("region: no regions defined")
	}
	for name, def := range f.Regions {
		if def == nil {
			return nil, eris.Errorf("region: %s is empty", name)
		}
		def.Name = name
		if err := def.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Regions, nil
}

// LoadFile reads outlines from path.
func LoadFile(path string) (map[string]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read %s", path)
	}
	return Parse(data)
}

// Bundled returns fresh copies of the outlines shipped with the binary.
func Bundled() (map[string]*Definition, error) {
	return Parse(outlinesYAML)
}

// Lookup returns the named region from defs.
func Lookup(defs map[string]*Definition, name string) (*Definition, error) {
	def, ok := defs[name]
	if !ok {
		names := make([]string, 0, len(defs))
		for n := range defs {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, eris.Errorf("region: unknown region %q (have %v)", name, names)
	}
	return def, nil
}

// Australia returns the bundled national outline.
func Australia() *Definition {
	return mustBundled(NameAustralia)
}

// Victoria returns the bundled state outline. Its cheap-reject tier is the
// national outer ring and it has no cheap-accept ring.
func Victoria() *Definition {
	return mustBundled(NameVictoria)
}

func mustBundled(name string) *Definition {
	defs, err := Bundled()
	if err != nil {
		panic(err)
	}
	def, err := Lookup(defs, name)
	if err != nil {
		panic(err)
	}
	return def
}
