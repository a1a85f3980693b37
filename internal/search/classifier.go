package search

import (
	"valumatch/server/config"
	"valumatch/server/internal/models"
)

// ClassKind tags how the subject will be searched.
type ClassKind string

const (
	ClassStandard ClassKind = "standard"
	ClassEdgeCase ClassKind = "edge_case"
)

// Classification is the pure classifier verdict. EdgeCase carries the
// reason that triggered it, for logging and reporting.
type Classification struct {
	Kind   ClassKind `json:"kind"`
	Reason string    `json:"reason,omitempty"`
}

// Classify decides Standard vs EdgeCase for a subject. Rare large or luxury
// subjects are systematically starved by strict matching, so they get the
// progressive-relaxation strategy instead of radius expansion.
func Classify(c *models.SearchCriteria, cfg *config.Config) Classification {
	if c.Bedrooms > cfg.Classifier.MaxStandardBedrooms {
		return Classification{Kind: ClassEdgeCase, Reason: "bedrooms above standard range"}
	}
	if c.Price > cfg.Classifier.LuxuryPriceThreshold {
		return Classification{Kind: ClassEdgeCase, Reason: "price above luxury threshold"}
	}
	if c.BuildArea > cfg.Classifier.BuildAreaCeiling {
		return Classification{Kind: ClassEdgeCase, Reason: "build area above ceiling"}
	}
	if models.LuxuryCategories[c.Category] && c.BuildArea > cfg.Classifier.LuxurySizeThreshold {
		return Classification{Kind: ClassEdgeCase, Reason: "large luxury category"}
	}
	return Classification{Kind: ClassStandard}
}
