package corpus

import (
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"valumatch/server/internal/identity"
	"valumatch/server/internal/location"
	"valumatch/server/internal/models"
)

// Snapshot is an immutable search index over the searchable corpus. It is
// built whole and swapped whole; no method mutates it after construction, so
// concurrent searches read it without locks.
type Snapshot struct {
	byID          map[string]*models.Property
	byCity        map[string][]string
	byCategory    map[models.Category][]string
	byTransaction map[models.TransactionType][]string
	postings      map[string][]string
	hierarchies   map[string]location.Hierarchy
}

// BuildSnapshot indexes the given records. Records failing the searchable
// invariant are skipped; records without a comparable identity get one
// derived during indexing.
func BuildSnapshot(properties []models.Property) *Snapshot {
	snap := &Snapshot{
		byID:          make(map[string]*models.Property, len(properties)),
		byCity:        make(map[string][]string),
		byCategory:    make(map[models.Category][]string),
		byTransaction: make(map[models.TransactionType][]string),
		postings:      make(map[string][]string),
		hierarchies:   make(map[string]location.Hierarchy, len(properties)),
	}

	for i := range properties {
		p := &properties[i]
		if !p.Searchable() {
			continue
		}
		id := identity.Ensure(p)
		if _, dup := snap.byID[id]; dup {
			continue
		}

		h := location.Resolve(p)
		snap.byID[id] = p
		snap.hierarchies[id] = h
		snap.byCity[h.City] = append(snap.byCity[h.City], id)
		snap.byCategory[p.Category] = append(snap.byCategory[p.Category], id)
		snap.byTransaction[p.Transaction] = append(snap.byTransaction[p.Transaction], id)

		for _, tier := range location.Tiers {
			if loc, ok := h.At(tier); ok {
				key := loc.Key()
				snap.postings[key] = append(snap.postings[key], id)
			}
		}
	}

	return snap
}

// Get returns the indexed property for a comparable identity.
func (s *Snapshot) Get(id string) (*models.Property, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Hierarchy returns the resolved location hierarchy for an indexed property.
func (s *Snapshot) Hierarchy(id string) (location.Hierarchy, bool) {
	h, ok := s.hierarchies[id]
	return h, ok
}

// Size returns the number of indexed properties.
func (s *Snapshot) Size() int {
	return len(s.byID)
}

// Corpus couples the durable store with the active index snapshot. Rebuild
// constructs a fresh snapshot off to the side and publishes it atomically, so
// readers never observe a half-built index.
type Corpus struct {
	store  *Store
	logger *logrus.Logger
	snap   atomic.Pointer[Snapshot]
}

func NewCorpus(store *Store, logger *logrus.Logger) *Corpus {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	c := &Corpus{store: store, logger: logger}
	c.snap.Store(BuildSnapshot(nil))
	return c
}

// Rebuild loads the searchable corpus and swaps in a fresh snapshot.
func (c *Corpus) Rebuild() error {
	properties, err := c.store.LoadSearchable()
	if err != nil {
		return err
	}

	snap := BuildSnapshot(properties)
	c.snap.Store(snap)

	c.logger.WithFields(logrus.Fields{
		"indexed": snap.Size(),
		"loaded":  len(properties),
	}).Info("Rebuilt corpus index")
	return nil
}

// Snapshot returns the current index. Callers hold it for the duration of a
// search so one request always sees one consistent corpus.
func (c *Corpus) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Swap replaces the active snapshot directly. Used by tests and bulk loads
// that already hold the records in memory.
func (c *Corpus) Swap(snap *Snapshot) {
	c.snap.Store(snap)
}
