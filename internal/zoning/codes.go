package zoning

import "fmt"

// DefaultIncludeCodes are Victorian planning zones suited to datacentre
// construction: industrial, farming and green wedge.
func DefaultIncludeCodes() []string {
	return []string{"IN1Z", "IN2Z", "IN3Z", "FZ", "GWZ"}
}

// DefaultExcludeCodes are zones unsuitable for datacentre construction:
// residential zones of every schedule plus public parks and conservation.
func DefaultExcludeCodes() []string {
	var codes []string
	codes = append(codes, "GRZ")
	codes = append(codes, numbered("GRZ", 18)...)
	codes = append(codes, numbered("NRZ", 14)...)
	codes = append(codes, "LDRZ")
	codes = append(codes, numbered("LDRZ", 6)...)
	codes = append(codes, "RGZ")
	codes = append(codes, numbered("RGZ", 9)...)
	codes = append(codes, "PPRZ", "PCRZ")
	return codes
}

func numbered(prefix string, n int) []string {
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}
