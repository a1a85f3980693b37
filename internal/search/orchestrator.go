package search

import (
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"valumatch/server/config"
	"valumatch/server/internal/cache"
	"valumatch/server/internal/corpus"
	"valumatch/server/internal/identity"
	"valumatch/server/internal/location"
	"valumatch/server/internal/models"
	"valumatch/server/internal/queue"
	"valumatch/server/internal/relationship"
	"valumatch/server/internal/scoring"
)

// NearbyProvider is the narrow slice of the relationship store the
// orchestrator depends on. The store's unavailability degrades tier 4 to the
// static table; it never fails a search.
type NearbyProvider interface {
	Nearby(loc location.MicroLocation, floor float64) ([]relationship.Neighbor, error)
}

// Orchestrator runs the tiered comparable search. It reads one corpus
// snapshot per request, so concurrent searches and index rebuilds never
// interfere.
type Orchestrator struct {
	corpus   *corpus.Corpus
	selector *corpus.Selector
	scorer   *scoring.Scorer
	nearby   NearbyProvider
	signals  *queue.SignalQueue
	results  *cache.ResultCache
	cfg      *config.Config
	logger   *logrus.Logger
	ladder   []RelaxationStep
}

// NewOrchestrator wires the search core. nearby, signals and results may be
// nil: tier 4 then relies on the static table, reinforcement is skipped, and
// memoization is off.
func NewOrchestrator(c *corpus.Corpus, nearby NearbyProvider, signals *queue.SignalQueue, results *cache.ResultCache, cfg *config.Config, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Orchestrator{
		corpus:   c,
		selector: corpus.NewSelector(cfg.Search.CandidateCap, logger),
		scorer:   scoring.NewScorer(scoring.WeightsFromConfig(cfg)),
		nearby:   nearby,
		signals:  signals,
		results:  results,
		cfg:      cfg,
		logger:   logger,
		ladder:   DefaultRelaxationLadder,
	}
}

// FindComparables returns the ranked comparables for a subject property.
func (o *Orchestrator) FindComparables(subject *models.Property, opts Options) (*Result, error) {
	criteria, err := o.buildCriteria(subject, opts)
	if err != nil {
		return nil, err
	}

	// An override changes the computation for the same criteria, so an
	// overridden search neither reads nor primes the shared cache slot.
	memoize := o.results != nil && opts.ClassificationOverride == nil
	key := cache.Key(criteria)
	if memoize {
		if cached, ok := o.results.Get(key); ok {
			if res, ok := cached.(*Result); ok {
				return res, nil
			}
		}
	}

	classification := Classify(criteria, o.cfg)
	if opts.ClassificationOverride != nil {
		classification = *opts.ClassificationOverride
	}

	var strategy Strategy = adaptiveRadius{}
	if classification.Kind == ClassEdgeCase {
		strategy = progressiveRelaxation{ladder: o.ladder}
	}

	started := time.Now()
	result := o.run(criteria, strategy, classification)
	result.SearchID = uuid.NewString()
	result.Classification = classification
	result.Strategy = strategy.Name()

	o.logger.WithFields(logrus.Fields{
		"search_id":      result.SearchID,
		"classification": classification.Kind,
		"strategy":       result.Strategy,
		"matches":        len(result.Matches),
		"tiers_used":     result.TiersUsed,
		"degraded":       result.Degraded,
		"duration_ms":    time.Since(started).Milliseconds(),
	}).Info("Comparable search completed")

	o.emitReinforcement(criteria, result)

	if memoize {
		o.results.Set(key, result)
	}
	return result, nil
}

// buildCriteria validates the subject and assembles the per-request
// criteria, deriving the exclusion identity on the spot when absent.
func (o *Orchestrator) buildCriteria(subject *models.Property, opts Options) (*models.SearchCriteria, error) {
	if subject == nil || subject.City == "" || subject.Province == "" {
		return nil, ErrMissingLocation
	}
	area, hasArea := subject.Area()
	if subject.Price <= 0 && !hasArea {
		return nil, ErrMissingMetrics
	}

	excludeID := identity.Ensure(subject)
	if excludeID == "" {
		// Derivation always yields a key; this guards the invariant anyway,
		// because silently comparing a property to itself is a correctness
		// bug, not a quality issue.
		return nil, ErrNoExclusionIdentity
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = o.cfg.Search.DefaultMaxResults
	}
	transaction := opts.Transaction
	if transaction == "" {
		transaction = subject.Transaction
	}

	return &models.SearchCriteria{
		Street:       subject.Street,
		Urbanization: subject.Urbanization,
		Suburb:       subject.Suburb,
		City:         subject.City,
		Province:     subject.Province,
		Latitude:     subject.Latitude,
		Longitude:    subject.Longitude,
		Category:     subject.Category,
		Transaction:  transaction,
		Bedrooms:     subject.Bedrooms,
		Bathrooms:    subject.Bathrooms,
		Price:        subject.Price,
		BuildArea:    area,
		ExcludeID:    excludeID,
		MaxResults:   maxResults,
	}, nil
}

// run executes the tier ladder. A tier in progress completes fully before
// the cap check, so results never depend on intra-tier candidate order.
func (o *Orchestrator) run(criteria *models.SearchCriteria, strategy Strategy, classification Classification) *Result {
	snap := o.corpus.Snapshot()
	subject := location.ResolveCriteria(criteria)
	cap := criteria.MaxResults

	var collected []Match
	seen := map[string]bool{criteria.ExcludeID: true}
	relaxDegraded := false

	// Tiers 1-3: exact named-tier matches.
	exactTiers := []struct {
		id   TierID
		tier location.Tier
	}{
		{TierExactStreet, location.TierStreet},
		{TierExactUrbanization, location.TierUrbanization},
		{TierExactSuburb, location.TierSuburb},
	}

	for _, t := range exactTiers {
		loc, ok := subject.At(t.tier)
		if !ok {
			continue
		}
		opts := o.standardOptions(criteria)
		opts.Tier = t.tier
		opts.Names = []string{loc.Name}

		ids := o.selector.Select(snap, criteria, opts)
		collected = append(collected, o.score(snap, criteria, ids, t.id, true, seen)...)
		if len(collected) >= cap {
			return o.assemble(criteria, collected, relaxDegraded)
		}
	}

	// Tier 4: learned or known nearby urbanizations.
	if names := o.nearbyNames(subject); len(names) > 0 {
		opts := o.standardOptions(criteria)
		opts.Tier = location.TierUrbanization
		opts.Names = names

		ids := o.selector.Select(snap, criteria, opts)
		collected = append(collected, o.score(snap, criteria, ids, TierNearbyUrbanizations, false, seen)...)
		if len(collected) >= cap {
			return o.assemble(criteria, collected, relaxDegraded)
		}
	}

	// Tier 5: exact city, strategy-driven.
	ids, degraded := strategy.CollectCity(o, snap, criteria, cap-len(collected))
	relaxDegraded = relaxDegraded || degraded
	collected = append(collected, o.score(snap, criteria, ids, TierExactCity, false, seen)...)

	// Tier 6: broad fallback, only when everything above came up empty.
	if len(collected) == 0 {
		opts := corpus.SelectOptions{
			BedroomSlack: -1,
			PriceWindow:  priceWindow(criteria.Price, 1.0),
		}
		ids := o.selector.Select(snap, criteria, opts)
		collected = append(collected, o.score(snap, criteria, ids, TierBroadFallback, false, seen)...)
	}

	return o.assemble(criteria, collected, relaxDegraded)
}

// standardOptions are the un-relaxed acceptance windows used by tiers 1-5
// for standard subjects.
func (o *Orchestrator) standardOptions(criteria *models.SearchCriteria) corpus.SelectOptions {
	return corpus.SelectOptions{
		BedroomSlack: o.cfg.Search.BedroomSlack,
		PriceWindow:  priceWindow(criteria.Price, o.cfg.Search.PriceTolerancePct),
		AreaWindow:   o.toleranceWindow(criteria, 1.0),
	}
}

// toleranceWindow looks up the dynamic area window for the subject and
// widens it by scale. Zero scale disables the filter.
func (o *Orchestrator) toleranceWindow(criteria *models.SearchCriteria, scale float64) *corpus.Window {
	if criteria.BuildArea <= 0 || scale <= 0 {
		return nil
	}
	min, max := config.ToleranceFor(criteria.Category, criteria.BuildArea)
	if scale != 1.0 {
		min /= scale
		max *= scale
	}
	return &corpus.Window{Min: min, Max: max}
}

// nearbyNames resolves tier-4 expansion targets: learned edges above the
// confidence floor, or the static table when the store is cold or down.
func (o *Orchestrator) nearbyNames(subject location.Hierarchy) []string {
	loc, ok := subject.At(location.TierUrbanization)
	if !ok {
		return nil
	}

	if o.nearby != nil {
		neighbors, err := o.nearby.Nearby(loc, o.cfg.Search.NearbyConfidenceFloor)
		if err != nil {
			o.logger.WithError(err).Warn("Relationship store unavailable, using static nearby table")
		} else if len(neighbors) > 0 {
			names := make([]string, 0, len(neighbors))
			for _, n := range neighbors {
				names = append(names, n.Location.Name)
			}
			return names
		}
	}

	return config.GetStaticNearby(loc.Name)
}

// score turns candidate ids into matches, skipping anything already matched
// at an earlier tier and the subject itself.
func (o *Orchestrator) score(snap *corpus.Snapshot, criteria *models.SearchCriteria, ids []string, tier TierID, exactLocation bool, seen map[string]bool) []Match {
	var matches []Match
	for _, id := range ids {
		if seen[id] {
			continue
		}
		p, ok := snap.Get(id)
		if !ok {
			continue
		}
		seen[id] = true
		matches = append(matches, Match{
			Property: p,
			Score:    o.scorer.Score(criteria, p, exactLocation),
			Tier:     tier,
		})
	}
	return matches
}

// assemble orders matches by (tier, score), truncates to the cap, and
// re-applies self-exclusion as defense in depth.
func (o *Orchestrator) assemble(criteria *models.SearchCriteria, collected []Match, relaxDegraded bool) *Result {
	sort.SliceStable(collected, func(i, j int) bool {
		if collected[i].Tier != collected[j].Tier {
			return collected[i].Tier < collected[j].Tier
		}
		return collected[i].Score < collected[j].Score
	})

	var matches []Match
	for _, m := range collected {
		if m.Property.ComparableID == criteria.ExcludeID {
			continue
		}
		matches = append(matches, m)
		if len(matches) >= criteria.MaxResults {
			break
		}
	}

	tiersUsed := []TierID{}
	lastTier := TierID(0)
	onlyFallback := len(matches) > 0
	for _, m := range matches {
		if m.Tier != lastTier {
			tiersUsed = append(tiersUsed, m.Tier)
			lastTier = m.Tier
		}
		if m.Tier != TierBroadFallback {
			onlyFallback = false
		}
	}

	return &Result{
		Matches:   matches,
		TiersUsed: tiersUsed,
		Degraded:  onlyFallback || relaxDegraded,
	}
}

// emitReinforcement feeds accepted comparables back to the learning store.
// Best effort: a full queue or missing wiring only costs future quality.
func (o *Orchestrator) emitReinforcement(criteria *models.SearchCriteria, result *Result) {
	if o.signals == nil || len(result.Matches) == 0 {
		return
	}
	subject := location.ResolveCriteria(criteria)
	loc, ok := subject.At(location.TierUrbanization)
	if !ok {
		return
	}

	var comparables []location.MicroLocation
	var streets []string
	seen := map[string]bool{}
	for _, m := range result.Matches {
		h := location.Resolve(m.Property)
		if comp, ok := h.At(location.TierUrbanization); ok && !seen[comp.Name] {
			seen[comp.Name] = true
			comparables = append(comparables, comp)
		}
		if h.Urbanization == loc.Name && h.Street != "" {
			streets = append(streets, h.Street)
		}
	}
	if len(comparables) == 0 {
		return
	}

	err := o.signals.Push(queue.Signal{Subject: loc, Comparables: comparables, Streets: streets})
	if err != nil {
		o.logger.WithError(err).Debug("Reinforcement signal not queued")
	}
}
