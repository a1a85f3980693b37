package scoring

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"valumatch/server/config"
	"valumatch/server/internal/models"
)

// Weights are the composite-score mix. They are observed operating constants
// exposed through config; the defaults sum to 1.0.
type Weights struct {
	Distance float64
	Price    float64
	Size     float64
	Bedrooms float64
	Type     float64

	MissingCoordinatePenaltyKm float64
	ExactLocationDistanceKm    float64
}

// WeightsFromConfig lifts the env-backed weight block into the scorer.
func WeightsFromConfig(cfg *config.Config) Weights {
	return Weights{
		Distance:                   cfg.Weights.Distance,
		Price:                      cfg.Weights.Price,
		Size:                       cfg.Weights.Size,
		Bedrooms:                   cfg.Weights.Bedrooms,
		Type:                       cfg.Weights.Type,
		MissingCoordinatePenaltyKm: cfg.Weights.MissingCoordinatePenaltyKm,
		ExactLocationDistanceKm:    cfg.Weights.ExactLocationDistanceKm,
	}
}

// DefaultWeights returns the uncalibrated defaults (30/30/20/15/5).
func DefaultWeights() Weights {
	return Weights{
		Distance:                   0.30,
		Price:                      0.30,
		Size:                       0.20,
		Bedrooms:                   0.15,
		Type:                       0.05,
		MissingCoordinatePenaltyKm: 20,
		ExactLocationDistanceKm:    0.05,
	}
}

// referenceDistanceKm normalizes the distance term so one "unit" of distance
// cost corresponds to the outer adaptive-search radius.
const referenceDistanceKm = 15.0

// Scorer computes the composite cost of a candidate against a subject.
// Lower is more similar; zero is a perfect match.
type Scorer struct {
	weights Weights
}

func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Score returns the non-negative composite cost. exactLocation marks that
// the candidate matched the subject's micro-location by name, which
// dominates raw distance: two listings on the same street rank together even
// when their geocodes are blocks apart.
func (s *Scorer) Score(c *models.SearchCriteria, p *models.Property, exactLocation bool) float64 {
	distKm := s.distanceKm(c, p, exactLocation)
	distCost := distKm / referenceDistanceKm

	priceCost := 0.0
	if c.Price > 0 {
		priceCost = math.Abs(p.Price-c.Price) / c.Price
	}

	sizeCost := 0.0
	if c.BuildArea > 0 {
		if area, ok := p.Area(); ok {
			sizeCost = math.Abs(area-c.BuildArea) / c.BuildArea
		}
	}

	bedRef := float64(c.Bedrooms)
	if bedRef < 1 {
		bedRef = 1
	}
	bedCost := math.Abs(float64(p.Bedrooms-c.Bedrooms)) / bedRef

	typeCost := 0.0
	if p.Category != c.Category {
		// Only reachable when a relaxation step explicitly allowed related
		// categories into the candidate set.
		typeCost = 1.0
	}

	return s.weights.Distance*distCost +
		s.weights.Price*priceCost +
		s.weights.Size*sizeCost +
		s.weights.Bedrooms*bedCost +
		s.weights.Type*typeCost
}

func (s *Scorer) distanceKm(c *models.SearchCriteria, p *models.Property, exactLocation bool) float64 {
	if exactLocation {
		return s.weights.ExactLocationDistanceKm
	}
	if c.HasCoordinates() && p.HasCoordinates() {
		from := orb.Point{*c.Longitude, *c.Latitude}
		to := orb.Point{*p.Longitude, *p.Latitude}
		return geo.Distance(from, to) / 1000.0
	}
	return s.weights.MissingCoordinatePenaltyKm
}
