package location

// Tier is one level of the location-specificity hierarchy, ordered from most
// to least specific. Comparisons only ever happen within a single tier.
type Tier int

const (
	TierStreet Tier = iota
	TierUrbanization
	TierSuburb
	TierCity
)

// Tiers lists all tiers in specificity order.
var Tiers = []Tier{TierStreet, TierUrbanization, TierSuburb, TierCity}

// String returns the string representation of a Tier.
func (t Tier) String() string {
	switch t {
	case TierStreet:
		return "street"
	case TierUrbanization:
		return "urbanization"
	case TierSuburb:
		return "suburb"
	case TierCity:
		return "city"
	default:
		return "unknown"
	}
}

// MicroLocation is a named place at exactly one tier. Two micro-locations are
// comparable only when their tiers match; a street name equal to an
// urbanization name is still a different place.
type MicroLocation struct {
	Tier Tier   `json:"tier"`
	Name string `json:"name"`
}

// Key returns the stable representation used for store keys and map lookups.
func (m MicroLocation) Key() string {
	return m.Tier.String() + ":" + m.Name
}

// Equal reports same-tier, same-normalized-name equality.
func (m MicroLocation) Equal(other MicroLocation) bool {
	return m.Tier == other.Tier && m.Name == other.Name
}

// Hierarchy is a property's location decomposed into typed, normalized
// components. City and Province are always present for searchable records;
// the narrower tiers are optional.
type Hierarchy struct {
	Street       string `json:"street,omitempty"`
	Urbanization string `json:"urbanization,omitempty"`
	Suburb       string `json:"suburb,omitempty"`
	City         string `json:"city"`
	Province     string `json:"province"`
}

// At returns the micro-location for the given tier, or ok=false when the
// record has no component at that tier.
func (h Hierarchy) At(tier Tier) (MicroLocation, bool) {
	var name string
	switch tier {
	case TierStreet:
		name = h.Street
	case TierUrbanization:
		name = h.Urbanization
	case TierSuburb:
		name = h.Suburb
	case TierCity:
		name = h.City
	}
	if name == "" {
		return MicroLocation{}, false
	}
	return MicroLocation{Tier: tier, Name: name}, true
}
