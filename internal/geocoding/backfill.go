package geocoding

import (
	"github.com/sirupsen/logrus"

	"valumatch/server/internal/corpus"
	"valumatch/server/internal/location"
)

// Resolver is the slice of the geocoder the backfill depends on.
type Resolver interface {
	Resolve(street, urbanization, city, province string) (*Result, error)
}

// AliasObserver records discovered area metadata. The relationship store
// implements it; nil disables alias collection.
type AliasObserver interface {
	Observe(loc location.MicroLocation, alias, street string) error
}

// Backfill geocodes searchable records that lack coordinates, writing
// results back to the store. The resolver's display name for an
// urbanization is recorded as a discovered alias along the way. It
// throttles itself through the geocoder's per-request delay and runs only
// from the scheduler, never inside a search. Returns the number of records
// updated.
func Backfill(store *corpus.Store, resolver Resolver, aliases AliasObserver, batchSize int, logger *logrus.Logger) (int, error) {
	properties, err := store.MissingCoordinates(batchSize)
	if err != nil {
		return 0, err
	}
	if len(properties) == 0 {
		return 0, nil
	}

	updated := 0
	for i := range properties {
		p := &properties[i]

		result, err := resolver.Resolve(p.Street, p.Urbanization, p.City, p.Province)
		if err != nil {
			// Geocoder trouble degrades matching to name-only; the search
			// path is unaffected, so just log and move on.
			logger.WithError(err).WithField("property_id", p.ID).
				Warn("Geocoding failed during backfill")
			continue
		}
		if result == nil {
			continue
		}

		if err := store.UpdateCoordinates(p.ID, result.Lat, result.Lng, result.Confidence); err != nil {
			logger.WithError(err).WithField("property_id", p.ID).
				Error("Failed to store backfilled coordinates")
			continue
		}
		updated++

		if aliases != nil && result.ResolvedName != "" && p.Urbanization != "" {
			loc := location.MicroLocation{
				Tier: location.TierUrbanization,
				Name: location.Normalize(p.Urbanization),
			}
			if err := aliases.Observe(loc, result.ResolvedName, ""); err != nil {
				logger.WithError(err).WithField("urbanization", loc.Name).
					Warn("Failed to record discovered alias")
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"candidates": len(properties),
		"updated":    updated,
	}).Info("Coordinate backfill pass completed")
	return updated, nil
}
