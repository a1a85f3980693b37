package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valumatch/server/config"
	"valumatch/server/internal/cache"
	"valumatch/server/internal/corpus"
	"valumatch/server/internal/identity"
	"valumatch/server/internal/location"
	"valumatch/server/internal/models"
	"valumatch/server/internal/queue"
	"valumatch/server/internal/relationship"
)

func ptr(v float64) *float64 { return &v }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

type fixtureBuilder struct {
	props []models.Property
	n     int
}

func (f *fixtureBuilder) add(mutate func(p *models.Property)) {
	f.n++
	area := 150.0
	p := models.Property{
		FeedRef:     fmt.Sprintf("fx-%d", f.n),
		Transaction: models.TransactionSale,
		Category:    models.CategoryApartment,
		City:        "Marbella",
		Province:    "Malaga",
		Bedrooms:    3,
		Bathrooms:   2,
		Price:       500000,
		BuildArea:   &area,
	}
	if mutate != nil {
		mutate(&p)
	}
	f.props = append(f.props, p)
}

func newOrchestrator(t *testing.T, props []models.Property, signals *queue.SignalQueue, nearby NearbyProvider) *Orchestrator {
	t.Helper()
	cfg := testConfig(t)
	c := corpus.NewCorpus(nil, logrus.New())
	c.Swap(corpus.BuildSnapshot(props))
	return NewOrchestrator(c, nearby, signals, nil, cfg, logrus.New())
}

func subjectProperty(mutate func(p *models.Property)) *models.Property {
	area := 150.0
	p := &models.Property{
		FeedRef:     "subject",
		Transaction: models.TransactionSale,
		Category:    models.CategoryApartment,
		City:        "Marbella",
		Province:    "Malaga",
		Bedrooms:    3,
		Bathrooms:   2,
		Price:       500000,
		BuildArea:   &area,
	}
	if mutate != nil {
		mutate(p)
	}
	return p
}

func TestFindComparables_InputErrors(t *testing.T) {
	o := newOrchestrator(t, nil, nil, nil)

	_, err := o.FindComparables(&models.Property{Province: "Malaga"}, Options{})
	assert.ErrorIs(t, err, ErrMissingLocation)

	_, err = o.FindComparables(&models.Property{City: "Marbella", Province: "Malaga"}, Options{})
	assert.ErrorIs(t, err, ErrMissingMetrics)
}

func TestFindComparables_NeverReturnsSubject(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 8; i++ {
		f.add(nil)
	}
	// The subject itself is present in the corpus.
	subject := subjectProperty(nil)
	f.props = append(f.props, *subject)

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 20})
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)

	subjectID := identity.Derive(subject)
	for _, m := range result.Matches {
		assert.NotEqual(t, subjectID, m.Property.ComparableID)
	}
}

func TestFindComparables_EmptyCorpusIsSoftOutcome(t *testing.T) {
	o := newOrchestrator(t, nil, nil, nil)

	result, err := o.FindComparables(subjectProperty(nil), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Empty(t, result.TiersUsed)
	assert.False(t, result.Degraded)
}

func TestFindComparables_UrbanizationScenario(t *testing.T) {
	// Subject {city X, urbanization Y, villa, 4 beds, 1.2M, 300 m2} with 5
	// corpus properties sharing urbanization Y: all 5 at tier 2, ascending
	// by score.
	var f fixtureBuilder
	for i := 0; i < 5; i++ {
		offset := float64(i)
		f.add(func(p *models.Property) {
			p.Category = models.CategoryVilla
			p.Urbanization = "La Cerquilla"
			p.Bedrooms = 4
			p.Price = 1200000 + offset*50000
			area := 300.0 + offset*10
			p.BuildArea = &area
		})
	}
	// Noise in the same city.
	f.add(func(p *models.Property) {
		p.Category = models.CategoryVilla
		p.Bedrooms = 4
		p.Price = 1250000
		area := 320.0
		p.BuildArea = &area
	})

	subject := subjectProperty(func(p *models.Property) {
		p.Category = models.CategoryVilla
		p.Urbanization = "La Cerquilla"
		p.Bedrooms = 4
		p.Price = 1200000
		area := 300.0
		p.BuildArea = &area
	})

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 5})
	require.NoError(t, err)

	require.Len(t, result.Matches, 5)
	for i, m := range result.Matches {
		assert.Equal(t, TierExactUrbanization, m.Tier)
		assert.Equal(t, "la cerquilla", location.Resolve(m.Property).Urbanization)
		if i > 0 {
			assert.GreaterOrEqual(t, m.Score, result.Matches[i-1].Score)
		}
	}
	assert.Equal(t, []TierID{TierExactUrbanization}, result.TiersUsed)
	assert.False(t, result.Degraded)
}

func TestFindComparables_EarlierTierBeatsLaterScore(t *testing.T) {
	var f fixtureBuilder
	// Street match with deliberately worse numbers.
	f.add(func(p *models.Property) {
		p.Street = "Calle Mayor"
		p.Price = 620000
		p.Bedrooms = 4
	})
	// City-tier candidates that would outscore it.
	for i := 0; i < 6; i++ {
		f.add(nil)
	}

	subject := subjectProperty(func(p *models.Property) {
		p.Street = "Calle Mayor"
	})

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 3})
	require.NoError(t, err)

	require.NotEmpty(t, result.Matches)
	assert.Equal(t, TierExactStreet, result.Matches[0].Tier)
}

func TestFindComparables_StreetCapExcludesLaterTiers(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 4; i++ {
		f.add(func(p *models.Property) { p.Street = "Calle Mayor" })
	}
	for i := 0; i < 10; i++ {
		f.add(func(p *models.Property) { p.Suburb = "Golden Mile" })
	}

	subject := subjectProperty(func(p *models.Property) {
		p.Street = "Calle Mayor"
		p.Suburb = "Golden Mile"
	})

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 4})
	require.NoError(t, err)

	require.Len(t, result.Matches, 4)
	for _, m := range result.Matches {
		assert.Equal(t, TierExactStreet, m.Tier)
	}
}

func TestFindComparables_CityOnlySubjectUsesTierFive(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 5; i++ {
		f.add(nil)
	}

	subject := subjectProperty(nil) // no street/urbanization/suburb, no coords

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 5})
	require.NoError(t, err)

	require.NotEmpty(t, result.Matches)
	assert.Equal(t, []TierID{TierExactCity}, result.TiersUsed)
}

func TestFindComparables_RadiusMonotonicity(t *testing.T) {
	cfg := testConfig(t)

	// Ring of candidates at growing distances from the subject.
	var f fixtureBuilder
	coords := []struct{ lat, lng float64 }{
		{36.510, -4.885}, // ~2 km
		{36.51, -4.86},   // ~4 km
		{36.56, -4.82},   // ~9 km
		{36.60, -4.78},   // ~14 km
	}
	for _, c := range coords {
		c := c
		f.add(func(p *models.Property) {
			p.Latitude, p.Longitude = ptr(c.lat), ptr(c.lng)
		})
	}

	c := corpus.NewCorpus(nil, logrus.New())
	snap := corpus.BuildSnapshot(f.props)
	c.Swap(snap)
	o := NewOrchestrator(c, nil, nil, nil, cfg, logrus.New())

	subject := subjectProperty(func(p *models.Property) {
		p.Latitude, p.Longitude = ptr(36.50), ptr(-4.90)
	})
	criteria, err := o.buildCriteria(subject, Options{MaxResults: 50})
	require.NoError(t, err)

	prev := -1
	for _, radius := range cfg.Search.RadiusLadderKm {
		opts := o.standardOptions(criteria)
		opts.RadiusKm = radius
		ids := o.selector.Select(snap, criteria, opts)
		assert.GreaterOrEqual(t, len(ids), prev, "radius %v", radius)
		prev = len(ids)
	}
}

func TestFindComparables_DynamicToleranceScenario(t *testing.T) {
	// Compact villa (83 m2) in a corpus of 200-600 m2 villas: the dynamic
	// window finds comparables where a fixed +-30% window finds none.
	var f fixtureBuilder
	for _, size := range []float64{200, 220, 250, 280, 400, 600} {
		size := size
		f.add(func(p *models.Property) {
			p.Category = models.CategoryVilla
			p.BuildArea = &size
			p.Price = 900000
			p.Bedrooms = 3
		})
	}

	subject := subjectProperty(func(p *models.Property) {
		p.Category = models.CategoryVilla
		area := 83.0
		p.BuildArea = &area
		p.Price = 850000
	})

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 10})
	require.NoError(t, err)

	// 200-290 m2 sits inside the widened band for small villas.
	assert.GreaterOrEqual(t, len(result.Matches), 4)

	// The fixed window control: +-30% of 83 admits nothing in this corpus.
	config.SetToleranceTable(&config.ToleranceTable{
		Default: config.ToleranceBand{MinFactor: 0.7, MaxFactor: 1.3},
	})
	defer config.SetToleranceTable(nil)

	fixed, err := o.FindComparables(subject, Options{MaxResults: 10})
	require.NoError(t, err)

	strict := 0
	for _, m := range fixed.Matches {
		if m.Tier == TierExactCity {
			strict++
		}
	}
	assert.LessOrEqual(t, strict, 1)
}

func TestFindComparables_EdgeCaseUsesRelaxation(t *testing.T) {
	var f fixtureBuilder
	// Sparse luxury corpus: prices well outside the standard window.
	for i := 0; i < 3; i++ {
		offset := float64(i)
		f.add(func(p *models.Property) {
			p.Category = models.CategoryVilla
			p.Bedrooms = 7
			p.Price = 6000000 + offset*1000000
			area := 750.0
			p.BuildArea = &area
		})
	}

	subject := subjectProperty(func(p *models.Property) {
		p.Category = models.CategoryVilla
		p.Bedrooms = 9
		p.Price = 12000000
		area := 1100.0
		p.BuildArea = &area
	})

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 5})
	require.NoError(t, err)

	assert.Equal(t, "progressive_relaxation", result.Strategy)
	assert.Equal(t, ClassEdgeCase, result.Classification.Kind)
	assert.NotEmpty(t, result.Matches)
	assert.True(t, result.Degraded)
}

func TestFindComparables_ClassificationOverride(t *testing.T) {
	var f fixtureBuilder
	f.add(nil)

	o := newOrchestrator(t, f.props, nil, nil)
	override := &Classification{Kind: ClassEdgeCase, Reason: "forced"}
	result, err := o.FindComparables(subjectProperty(nil), Options{ClassificationOverride: override})
	require.NoError(t, err)

	assert.Equal(t, "progressive_relaxation", result.Strategy)
	assert.Equal(t, "forced", result.Classification.Reason)
}

func TestFindComparables_BroadFallbackIsDegraded(t *testing.T) {
	var f fixtureBuilder
	// Same city but far outside every standard window.
	f.add(func(p *models.Property) {
		p.Price = 950000
		p.Bedrooms = 6
		area := 400.0
		p.BuildArea = &area
	})

	subject := subjectProperty(func(p *models.Property) {
		p.Price = 500000
		p.Bedrooms = 1
		area := 45.0
		p.BuildArea = &area
	})

	o := newOrchestrator(t, f.props, nil, nil)
	result, err := o.FindComparables(subject, Options{MaxResults: 5})
	require.NoError(t, err)

	require.NotEmpty(t, result.Matches)
	assert.Equal(t, []TierID{TierBroadFallback}, result.TiersUsed)
	assert.True(t, result.Degraded)
}

type staticNearby struct {
	neighbors []relationship.Neighbor
	err       error
}

func (s staticNearby) Nearby(location.MicroLocation, float64) ([]relationship.Neighbor, error) {
	return s.neighbors, s.err
}

func TestFindComparables_LearnedNearbyTier(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 3; i++ {
		f.add(func(p *models.Property) { p.Urbanization = "Aloha" })
	}

	subject := subjectProperty(func(p *models.Property) {
		p.Urbanization = "Las Brisas"
	})

	nearby := staticNearby{neighbors: []relationship.Neighbor{
		{Location: location.MicroLocation{Tier: location.TierUrbanization, Name: "aloha"}, Confidence: 0.8},
	}}

	o := newOrchestrator(t, f.props, nil, nearby)
	result, err := o.FindComparables(subject, Options{MaxResults: 5})
	require.NoError(t, err)

	require.Len(t, result.Matches, 3)
	for _, m := range result.Matches {
		assert.Equal(t, TierNearbyUrbanizations, m.Tier)
	}
}

func TestFindComparables_NearbyStoreFailureDegradesToStatic(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 2; i++ {
		f.add(func(p *models.Property) { p.Urbanization = "Atalaya" })
	}

	subject := subjectProperty(func(p *models.Property) {
		// "el paraiso" has atalaya in the static table.
		p.Urbanization = "El Paraíso"
	})

	o := newOrchestrator(t, f.props, nil, staticNearby{err: fmt.Errorf("store down")})
	result, err := o.FindComparables(subject, Options{MaxResults: 5})
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.Equal(t, TierNearbyUrbanizations, result.Matches[0].Tier)
}

func TestFindComparables_EmitsReinforcementSignal(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 3; i++ {
		f.add(func(p *models.Property) { p.Urbanization = "La Cerquilla" })
	}

	subject := subjectProperty(func(p *models.Property) {
		p.Urbanization = "La Cerquilla"
	})

	signals := queue.NewSignalQueue(8, logrus.New())
	o := newOrchestrator(t, f.props, signals, nil)

	_, err := o.FindComparables(subject, Options{MaxResults: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, signals.Len())
}

func TestFindComparables_OverrideDoesNotPrimeCache(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 4; i++ {
		f.add(nil)
	}

	cfg := testConfig(t)
	c := corpus.NewCorpus(nil, logrus.New())
	c.Swap(corpus.BuildSnapshot(f.props))
	results := cache.NewResultCache(time.Minute)
	o := NewOrchestrator(c, nil, nil, results, cfg, logrus.New())

	override := &Classification{Kind: ClassEdgeCase, Reason: "forced"}
	forced, err := o.FindComparables(subjectProperty(nil), Options{MaxResults: 3, ClassificationOverride: override})
	require.NoError(t, err)
	assert.Equal(t, "progressive_relaxation", forced.Strategy)

	// Same criteria without the override must be a fresh computation, not the
	// overridden result.
	plain, err := o.FindComparables(subjectProperty(nil), Options{MaxResults: 3})
	require.NoError(t, err)
	assert.Equal(t, "adaptive_radius", plain.Strategy)
	assert.Equal(t, ClassStandard, plain.Classification.Kind)

	// And the plain result is what later identical requests get back.
	again, err := o.FindComparables(subjectProperty(nil), Options{MaxResults: 3})
	require.NoError(t, err)
	assert.Equal(t, plain.SearchID, again.SearchID)

	// The read side holds too: an overridden request never takes the cached
	// plain result.
	forced2, err := o.FindComparables(subjectProperty(nil), Options{MaxResults: 3, ClassificationOverride: override})
	require.NoError(t, err)
	assert.Equal(t, "progressive_relaxation", forced2.Strategy)
}

func TestFindComparables_CacheHitIsResultIdentical(t *testing.T) {
	var f fixtureBuilder
	for i := 0; i < 4; i++ {
		f.add(nil)
	}

	cfg := testConfig(t)
	c := corpus.NewCorpus(nil, logrus.New())
	c.Swap(corpus.BuildSnapshot(f.props))
	results := cache.NewResultCache(time.Minute)
	o := NewOrchestrator(c, nil, nil, results, cfg, logrus.New())

	first, err := o.FindComparables(subjectProperty(nil), Options{MaxResults: 3})
	require.NoError(t, err)

	second, err := o.FindComparables(subjectProperty(nil), Options{MaxResults: 3})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.SearchID, second.SearchID) // the cached object itself
}
