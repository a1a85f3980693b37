package relationship

import (
	"fmt"

	"valumatch/server/internal/location"
)

// Key prefixes for different data types
const (
	edgePrefix  = "edge"
	microPrefix = "micro"
)

// makeEdgeKey generates the key for a directed edge between two same-tier
// micro-locations. Format: edge:<tier>:<source>:<target>
func makeEdgeKey(tier location.Tier, source, target string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:%s", edgePrefix, tier.String(), source, target))
}

// makeEdgeSourcePrefix generates the scan prefix for all edges out of one
// micro-location.
func makeEdgeSourcePrefix(tier location.Tier, source string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s:", edgePrefix, tier.String(), source))
}

// makeEdgeTierPrefix generates the scan prefix for one tier partition.
func makeEdgeTierPrefix(tier location.Tier) []byte {
	return []byte(fmt.Sprintf("%s:%s:", edgePrefix, tier.String()))
}

// makeMicroKey generates the key for discovered micro-location metadata.
func makeMicroKey(loc location.MicroLocation) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", microPrefix, loc.Tier.String(), loc.Name))
}

// makeMicroTierPrefix generates the scan prefix for one tier's metadata.
func makeMicroTierPrefix(tier location.Tier) []byte {
	return []byte(fmt.Sprintf("%s:%s:", microPrefix, tier.String()))
}
