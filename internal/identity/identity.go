package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"valumatch/server/internal/models"
)

// Derive computes the stable comparable identity for a property. The hash
// covers only identity-bearing fields; volatile fields (timestamps, geocode
// confidence, features) never change the result, so re-deriving after an
// update touch is idempotent.
//
// Layout: "<feed ref>-<12 hex chars>" so operators can still eyeball which
// feed a record came from.
func Derive(p *models.Property) string {
	parts := []string{
		"addr:" + strings.ToLower(strings.TrimSpace(p.Street)),
		"city:" + strings.ToLower(strings.TrimSpace(p.City)),
		"prov:" + strings.ToLower(strings.TrimSpace(p.Province)),
		"type:" + string(p.Category),
		"beds:" + fmt.Sprintf("%d", p.Bedrooms),
		"baths:" + fmt.Sprintf("%d", p.Bathrooms),
		"area:" + normalizeArea(p.BuildArea),
		"price:" + fmt.Sprintf("%d", int64(math.Round(p.Price))),
	}

	// Sorted so field ordering can never silently change the hash.
	sort.Strings(parts)
	payload := strings.Join(parts, "|")

	sum := sha256.Sum256([]byte(payload))
	short := hex.EncodeToString(sum[:])[:12]

	ref := strings.TrimSpace(p.FeedRef)
	if ref == "" {
		ref = "local"
	}
	return ref + "-" + short
}

// Ensure sets ComparableID when absent and returns it. A search must never
// run with an empty exclusion key, so callers derive on the spot.
func Ensure(p *models.Property) string {
	if p.ComparableID == "" {
		p.ComparableID = Derive(p)
	}
	return p.ComparableID
}

// normalizeArea renders an optional area as a whole number of square meters,
// or "null" when absent. Rounding keeps feed jitter (249.98 vs 250.01) from
// splitting one property into two identities.
func normalizeArea(a *float64) string {
	if a == nil {
		return "null"
	}
	return fmt.Sprintf("%d", int(math.Round(*a)))
}
