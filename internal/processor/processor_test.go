package processor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valumatch/server/config"
	"valumatch/server/internal/corpus"
	"valumatch/server/internal/models"
)

func ptr(v float64) *float64 { return &v }

func testSetup(t *testing.T) (*corpus.Store, *corpus.Corpus, *config.Config) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := corpus.NewStore(dbPath, logrus.New())
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { store.Close() })

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	return store, corpus.NewCorpus(store, logrus.New()), cfg
}

func batch(n int) []*models.Property {
	var out []*models.Property
	for i := 0; i < n; i++ {
		out = append(out, &models.Property{
			FeedRef:     "feed-" + string(rune('a'+i)),
			Transaction: models.TransactionSale,
			Category:    models.CategoryApartment,
			City:        "Marbella",
			Province:    "Malaga",
			Bedrooms:    2 + i,
			Price:       400000,
			BuildArea:   ptr(120),
		})
	}
	return out
}

func TestIngestProcessor_UpsertAndRebuild(t *testing.T) {
	store, c, cfg := testSetup(t)

	p := NewIngestProcessor(store, c, nil, cfg, logrus.New())
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Enqueue(batch(3)))

	// Wait for the async pipeline to publish a snapshot.
	deadline := time.After(2 * time.Second)
	for c.Snapshot().Size() != 3 {
		select {
		case <-deadline:
			t.Fatalf("index never reached 3 records, got %d", c.Snapshot().Size())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestIngestProcessor_UpsertIsIdempotent(t *testing.T) {
	store, c, cfg := testSetup(t)

	p := NewIngestProcessor(store, c, nil, cfg, logrus.New())

	b := batch(2)
	require.NoError(t, p.processBatch(b))
	require.NoError(t, p.processBatch(b)) // same identities, update path
	p.publish()

	assert.Equal(t, 2, c.Snapshot().Size())
}

func TestIngestProcessor_EnqueueAfterStop(t *testing.T) {
	store, c, cfg := testSetup(t)

	p := NewIngestProcessor(store, c, nil, cfg, logrus.New())
	p.Start()
	p.Stop()

	assert.ErrorIs(t, p.Enqueue(batch(1)), ErrProcessorStopped)
}

func TestIngestProcessor_UnsearchableRecordsStayOutOfIndex(t *testing.T) {
	store, c, cfg := testSetup(t)

	p := NewIngestProcessor(store, c, nil, cfg, logrus.New())

	b := batch(1)
	b = append(b, &models.Property{FeedRef: "broken", City: "Marbella"}) // no province/price/area
	require.NoError(t, p.processBatch(b))
	p.publish()

	assert.Equal(t, 1, c.Snapshot().Size())
}
