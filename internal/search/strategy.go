package search

import (
	"valumatch/server/internal/corpus"
	"valumatch/server/internal/models"
)

// Strategy is the city-tier candidate collection policy, selected once per
// request by the classifier. Standard subjects expand a geodesic radius;
// edge-case subjects walk a relaxation ladder.
type Strategy interface {
	Name() string

	// CollectCity gathers city-level candidates, aiming for `remaining`.
	// degraded reports that the result needed more than the first rung.
	CollectCity(o *Orchestrator, snap *corpus.Snapshot, criteria *models.SearchCriteria, remaining int) (ids []string, degraded bool)
}

// adaptiveRadius tries increasing radii against the standard acceptance
// windows, stopping at the first radius that satisfies the remaining cap.
// Subjects without coordinates fall through to a plain city match.
type adaptiveRadius struct{}

func (adaptiveRadius) Name() string { return "adaptive_radius" }

func (adaptiveRadius) CollectCity(o *Orchestrator, snap *corpus.Snapshot, criteria *models.SearchCriteria, remaining int) ([]string, bool) {
	opts := o.standardOptions(criteria)

	if !criteria.HasCoordinates() {
		return o.selector.Select(snap, criteria, opts), false
	}

	var best []string
	for _, radius := range o.cfg.Search.RadiusLadderKm {
		opts.RadiusKm = radius
		ids := o.selector.Select(snap, criteria, opts)
		if len(ids) > len(best) {
			best = ids
		}
		if len(ids) >= remaining {
			return ids, false
		}
	}
	return best, false
}

// RelaxationStep is one rung of the progressive-relaxation ladder. Zero
// values disable the corresponding filter widening.
type RelaxationStep struct {
	BedroomSlack   int
	PriceFactor    float64
	ToleranceScale float64
	RadiusKm       float64
	AllowRelated   bool
}

// DefaultRelaxationLadder is the observed operating ladder; each step widens
// tolerances and radius, later steps admit related categories. The final
// step is the give-up point: its best candidates are returned even when
// the cap is not met.
var DefaultRelaxationLadder = []RelaxationStep{
	{BedroomSlack: 2, PriceFactor: 0.40, ToleranceScale: 1.0, RadiusKm: 10},
	{BedroomSlack: 3, PriceFactor: 0.60, ToleranceScale: 1.25, RadiusKm: 20},
	{BedroomSlack: 4, PriceFactor: 1.0, ToleranceScale: 1.5, RadiusKm: 40, AllowRelated: true},
	{BedroomSlack: -1, AllowRelated: true},
}

// relatedCategories maps each category to the ones a late relaxation step
// may admit. The type-mismatch score term is only reachable through here.
var relatedCategories = map[models.Category][]models.Category{
	models.CategoryVilla:        {models.CategoryCountryHouse, models.CategoryTownhouse},
	models.CategoryCountryHouse: {models.CategoryVilla},
	models.CategoryPenthouse:    {models.CategoryApartment},
	models.CategoryApartment:    {models.CategoryPenthouse, models.CategoryTownhouse},
	models.CategoryTownhouse:    {models.CategoryVilla, models.CategoryApartment},
}

// progressiveRelaxation stops at the first step meeting the remaining cap,
// else returns the best candidate set from the final step.
type progressiveRelaxation struct {
	ladder []RelaxationStep
}

func (progressiveRelaxation) Name() string { return "progressive_relaxation" }

func (s progressiveRelaxation) CollectCity(o *Orchestrator, snap *corpus.Snapshot, criteria *models.SearchCriteria, remaining int) ([]string, bool) {
	ladder := s.ladder
	if len(ladder) == 0 {
		ladder = DefaultRelaxationLadder
	}

	var ids []string
	for i, step := range ladder {
		opts := corpus.SelectOptions{
			BedroomSlack: step.BedroomSlack,
			PriceWindow:  priceWindow(criteria.Price, step.PriceFactor),
			AreaWindow:   o.toleranceWindow(criteria, step.ToleranceScale),
		}
		if criteria.HasCoordinates() {
			opts.RadiusKm = step.RadiusKm
		}
		if step.AllowRelated {
			opts.RelatedCategories = relatedCategories[criteria.Category]
		}

		ids = o.selector.Select(snap, criteria, opts)
		if len(ids) >= remaining {
			return ids, i > 0
		}
	}
	// Ladder exhausted: best effort from the final, loosest step.
	return ids, true
}

func priceWindow(price, factor float64) *corpus.Window {
	if price <= 0 || factor <= 0 {
		return nil
	}
	min := price * (1 - factor)
	if min < 0 {
		min = 0
	}
	return &corpus.Window{Min: min, Max: price * (1 + factor)}
}
