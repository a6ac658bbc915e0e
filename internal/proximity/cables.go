package proximity

// DefaultCableIDs lists the international submarine cables that land in
// Australia. The Bass Strait cables are domestic and left out.
func DefaultCableIDs() []string {
	return []string{
		"australia-singapore-cable-asc",
		"indigo-west",
		"north-west-cable-system",
		"japan-guam-australia-south-jga-s",
		"tasman-global-access-tga-cable",
		"honomoana",
		"sydney-melbourne-adelaide-perth-smap",
		"tabua",
		"tasman-ring-network",
		"australia-connect-interlink",
	}
}
