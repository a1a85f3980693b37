package geocoding

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"valumatch/server/internal/corpus"
	"valumatch/server/internal/location"
	"valumatch/server/internal/models"
)

type stubResolver struct {
	results map[string]*Result
	err     error
}

func (s *stubResolver) Resolve(street, urbanization, city, province string) (*Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results[urbanization], nil
}

type recordingObserver struct {
	locs    []location.MicroLocation
	aliases []string
}

func (r *recordingObserver) Observe(loc location.MicroLocation, alias, street string) error {
	r.locs = append(r.locs, loc)
	r.aliases = append(r.aliases, alias)
	return nil
}

func backfillStore(t *testing.T, props []*models.Property) *corpus.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := corpus.NewStore(dbPath, logrus.New())
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { store.Close() })

	err = store.DB().Transaction(func(tx *gorm.DB) error {
		return corpus.UpsertProperties(tx, props)
	})
	require.NoError(t, err)
	return store
}

func ungeocoded(n int, urbanization string) *models.Property {
	area := 150.0
	return &models.Property{
		FeedRef:      fmt.Sprintf("bf-%d", n),
		Transaction:  models.TransactionSale,
		Category:     models.CategoryApartment,
		Urbanization: urbanization,
		City:         "Marbella",
		Province:     "Malaga",
		Bedrooms:     3,
		Price:        500000,
		BuildArea:    &area,
	}
}

func TestBackfill_WritesCoordinatesAndAliases(t *testing.T) {
	store := backfillStore(t, []*models.Property{ungeocoded(1, "Nueva Andalucía")})

	resolver := &stubResolver{results: map[string]*Result{
		"Nueva Andalucía": {
			Lat:          36.5,
			Lng:          -4.9,
			Confidence:   0.8,
			ResolvedName: "Nueva Andalucía, Marbella, Málaga, Andalucía, España",
		},
	}}
	observer := &recordingObserver{}

	updated, err := Backfill(store, resolver, observer, 10, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	// Coordinates landed, so the record is no longer a backfill candidate.
	remaining, err := store.MissingCoordinates(10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// The resolver's display name was recorded against the normalized area.
	require.Len(t, observer.locs, 1)
	assert.Equal(t, location.TierUrbanization, observer.locs[0].Tier)
	assert.Equal(t, "nueva andalucia", observer.locs[0].Name)
	assert.Equal(t, "Nueva Andalucía, Marbella, Málaga, Andalucía, España", observer.aliases[0])
}

func TestBackfill_UnresolvedStaysPending(t *testing.T) {
	store := backfillStore(t, []*models.Property{ungeocoded(1, "Unknown Place")})

	observer := &recordingObserver{}
	updated, err := Backfill(store, &stubResolver{}, observer, 10, logrus.New())
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Empty(t, observer.locs)

	remaining, err := store.MissingCoordinates(10)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestBackfill_NilObserverSkipsAliases(t *testing.T) {
	store := backfillStore(t, []*models.Property{ungeocoded(1, "Aloha")})

	resolver := &stubResolver{results: map[string]*Result{
		"Aloha": {Lat: 36.5, Lng: -4.9, Confidence: 0.7, ResolvedName: "Aloha Golf"},
	}}

	updated, err := Backfill(store, resolver, nil, 10, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
}

func TestBackfill_ResolverErrorLogsAndContinues(t *testing.T) {
	store := backfillStore(t, []*models.Property{
		ungeocoded(1, "Aloha"),
		ungeocoded(2, "Las Brisas"),
	})

	updated, err := Backfill(store, &stubResolver{err: fmt.Errorf("nominatim down")}, nil, 10, logrus.New())
	require.NoError(t, err)
	assert.Zero(t, updated)
}
