package corpus

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/sirupsen/logrus"

	"valumatch/server/internal/location"
	"valumatch/server/internal/models"
)

// Window is an absolute [Min, Max] acceptance range.
type Window struct {
	Min float64
	Max float64
}

func (w Window) Contains(v float64) bool {
	return v >= w.Min && v <= w.Max
}

// SelectOptions narrows a candidate selection beyond the base
// city/category/transaction intersection.
type SelectOptions struct {
	// Tier + Names restrict candidates to properties matching one of the
	// normalized names at exactly that tier. Nil Names means no tier filter.
	Tier  location.Tier
	Names []string

	// RadiusKm > 0 applies a geodesic filter when both sides have
	// coordinates. Candidates without coordinates are kept: absence of a
	// geocode must not silently exclude a listing.
	RadiusKm float64

	// Categories allowed beyond the subject's own. Empty means exact
	// category only.
	RelatedCategories []models.Category

	// BedroomSlack is the permitted absolute bedroom difference; negative
	// disables the filter.
	BedroomSlack int

	// PriceWindow / AreaWindow are absolute acceptance ranges; nil disables.
	PriceWindow *Window
	AreaWindow  *Window
}

// Selector produces bounded candidate sets from a snapshot. It walks the
// smallest applicable index posting and field-checks the rest, so no call
// ever scans the whole corpus or materializes more than the cap.
type Selector struct {
	cap    int
	logger *logrus.Logger
}

func NewSelector(cap int, logger *logrus.Logger) *Selector {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Selector{cap: cap, logger: logger}
}

// Select returns up to cap candidate identities matching the criteria under
// the given options. The subject's own identity is rejected here as the
// cheap first line of self-exclusion.
func (s *Selector) Select(snap *Snapshot, criteria *models.SearchCriteria, opts SelectOptions) []string {
	subject := location.ResolveCriteria(criteria)

	allowed := map[models.Category]bool{criteria.Category: true}
	for _, cat := range opts.RelatedCategories {
		allowed[cat] = true
	}

	base := s.basePosting(snap, subject, opts)
	if len(base) == 0 {
		return nil
	}

	var out []string
	for _, id := range base {
		if len(out) >= s.cap {
			break
		}
		if id == criteria.ExcludeID {
			continue
		}
		p, ok := snap.Get(id)
		if !ok {
			continue
		}
		h, _ := snap.Hierarchy(id)

		if h.City != subject.City {
			continue
		}
		if h.Province != subject.Province {
			continue
		}
		if !allowed[p.Category] {
			continue
		}
		if criteria.Transaction != "" && p.Transaction != criteria.Transaction {
			continue
		}
		if opts.Names != nil && !matchesTier(h, opts.Tier, opts.Names) {
			continue
		}
		if opts.BedroomSlack >= 0 && abs(p.Bedrooms-criteria.Bedrooms) > opts.BedroomSlack {
			continue
		}
		if opts.PriceWindow != nil && !opts.PriceWindow.Contains(p.Price) {
			continue
		}
		if opts.AreaWindow != nil {
			area, ok := p.Area()
			if !ok || !opts.AreaWindow.Contains(area) {
				continue
			}
		}
		if opts.RadiusKm > 0 && criteria.HasCoordinates() && p.HasCoordinates() {
			from := orb.Point{*criteria.Longitude, *criteria.Latitude}
			to := orb.Point{*p.Longitude, *p.Latitude}
			if geo.Distance(from, to)/1000.0 > opts.RadiusKm {
				continue
			}
		}

		out = append(out, id)
	}
	return out
}

// basePosting picks the index posting the filter loop walks: the named-tier
// postings when a tier filter is set, the city posting otherwise. Every tier
// including the broad fallback stays within the subject's city.
func (s *Selector) basePosting(snap *Snapshot, subject location.Hierarchy, opts SelectOptions) []string {
	if opts.Names != nil {
		var ids []string
		for _, name := range opts.Names {
			key := location.MicroLocation{Tier: opts.Tier, Name: name}.Key()
			ids = append(ids, snap.postings[key]...)
		}
		return ids
	}
	return snap.byCity[subject.City]
}

func matchesTier(h location.Hierarchy, tier location.Tier, names []string) bool {
	loc, ok := h.At(tier)
	if !ok {
		return false
	}
	for _, name := range names {
		if loc.Name == name {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
