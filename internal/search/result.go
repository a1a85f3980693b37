package search

import (
	"errors"

	"valumatch/server/internal/models"
)

// InputError family: the subject is unusable before any tier runs.
var (
	ErrMissingLocation     = errors.New("subject requires city and province")
	ErrMissingMetrics      = errors.New("subject requires a price or an area")
	ErrNoExclusionIdentity = errors.New("search requires an exclusion identity")
)

// TierID identifies one rung of the search ladder, ordered by preference.
// Tier is a pre-filter, not a score input: a match from an earlier tier
// always outranks a later-tier match regardless of score.
type TierID int

const (
	TierExactStreet TierID = iota + 1
	TierExactUrbanization
	TierExactSuburb
	TierNearbyUrbanizations
	TierExactCity
	TierBroadFallback
)

// String returns the string representation of a TierID.
func (t TierID) String() string {
	switch t {
	case TierExactStreet:
		return "exact_street"
	case TierExactUrbanization:
		return "exact_urbanization"
	case TierExactSuburb:
		return "exact_suburb"
	case TierNearbyUrbanizations:
		return "nearby_urbanizations"
	case TierExactCity:
		return "exact_city"
	case TierBroadFallback:
		return "broad_fallback"
	default:
		return "unknown"
	}
}

// Match is one ranked comparable.
type Match struct {
	Property *models.Property `json:"property"`
	Score    float64          `json:"score"`
	Tier     TierID           `json:"tier"`
}

// Result is the outcome of one comparable search. An empty Matches slice
// with empty TiersUsed is a valid outcome, not an error.
type Result struct {
	SearchID  string   `json:"search_id"`
	Matches   []Match  `json:"matches"`
	TiersUsed []TierID `json:"tiers_used"`
	Strategy  string   `json:"strategy"`

	// Degraded marks a result assembled only from the broad fallback or
	// from a relaxation step beyond the first; downstream reporting lowers
	// its confidence accordingly.
	Degraded bool `json:"degraded"`

	Classification Classification `json:"classification"`
}

// Options tune one findComparables call.
type Options struct {
	// MaxResults caps the returned comparables; zero uses the configured
	// default.
	MaxResults int

	// Transaction restricts candidates to one transaction type; empty uses
	// the subject's own.
	Transaction models.TransactionType

	// ClassificationOverride forces the strategy choice. Testing hook.
	ClassificationOverride *Classification
}
