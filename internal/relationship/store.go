package relationship

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/sirupsen/logrus"

	"valumatch/server/internal/location"
)

// ErrCrossTier is returned when a write would connect micro-locations at
// different tiers. Cross-tier edges are a correctness bug, never stored.
var ErrCrossTier = errors.New("relationship edge endpoints must share a tier")

const lockStripes = 64

// Edge is one directed co-occurrence relationship between two same-tier
// micro-locations. Confidence is derived at read time from frequency and
// age, never stored.
type Edge struct {
	Tier      location.Tier `json:"tier"`
	Source    string        `json:"source"`
	Target    string        `json:"target"`
	Frequency int           `json:"frequency"`
	LastSeen  time.Time     `json:"last_seen"`
}

// Neighbor is a nearby micro-location with its effective confidence.
type Neighbor struct {
	Location   location.MicroLocation `json:"location"`
	Confidence float64                `json:"confidence"`
}

// Metadata accumulates what searches have revealed about a micro-location.
// It only ever feeds reporting and tier-4 expansion seeds, never the exact
// match tiers.
type Metadata struct {
	Name          string    `json:"name"`
	Aliases       []string  `json:"aliases,omitempty"`
	CommonStreets []string  `json:"common_streets,omitempty"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// Options configure the learning store.
type Options struct {
	Path            string
	InMemory        bool
	HalfLifeDays    float64
	MaxEdgesPerTier int
}

// Store is the persisted, confidence-scored graph of "area X co-occurs with
// area Y" relationships, partitioned by tier. Concurrent reinforcement of
// the same edge is serialized by striped per-edge locks; reads never take
// those locks, so slightly stale nearby data is possible and acceptable.
type Store struct {
	db     *badger.DB
	logger *logrus.Logger
	opts   Options
	locks  [lockStripes]sync.Mutex
}

// badgerLoggerAdapter adapts logrus to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *logrus.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...interface{}) {
	bl.logger.Errorf(msg, items...)
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...interface{}) {
	bl.logger.Warnf(msg, items...)
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...interface{}) {
	bl.logger.Debugf(msg, items...)
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...interface{}) {
	bl.logger.Debugf(msg, items...)
}

// OpenStore opens the badger-backed relationship store. InMemory mode is
// used by tests and by deployments that accept losing learned relationships
// on restart.
func OpenStore(opts Options, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.HalfLifeDays <= 0 {
		opts.HalfLifeDays = 90
	}
	if opts.MaxEdgesPerTier <= 0 {
		opts.MaxEdgesPerTier = 5000
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			return nil, err
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts.Logger = &badgerLoggerAdapter{logger: logger}
	badgerOpts.Compression = options.None

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open relationship store: %w", err)
	}

	return &Store{db: db, logger: logger, opts: opts}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Reinforce strengthens the relationship between the subject micro-location
// and each accepted comparable's micro-location. All endpoints must share
// the subject's tier; a mixed batch is rejected whole before any write.
func (s *Store) Reinforce(subject location.MicroLocation, comparables []location.MicroLocation) error {
	for _, comp := range comparables {
		if comp.Tier != subject.Tier {
			return ErrCrossTier
		}
	}

	now := time.Now()
	for _, comp := range comparables {
		if comp.Name == subject.Name || comp.Name == "" {
			continue
		}
		// Co-occurrence is symmetric; keep both directions so Nearby works
		// from either end.
		if err := s.bumpEdge(subject.Tier, subject.Name, comp.Name, now); err != nil {
			return err
		}
		if err := s.bumpEdge(subject.Tier, comp.Name, subject.Name, now); err != nil {
			return err
		}
	}
	return nil
}

// bumpEdge serializes the read-modify-write for one edge behind its stripe
// lock so concurrent reinforcement never loses an increment.
func (s *Store) bumpEdge(tier location.Tier, source, target string, now time.Time) error {
	key := makeEdgeKey(tier, source, target)

	stripe := &s.locks[stripeFor(key)]
	stripe.Lock()
	defer stripe.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		edge := Edge{Tier: tier, Source: source, Target: target}

		item, err := txn.Get(key)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &edge)
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first sighting
		default:
			return err
		}

		edge.Frequency++
		edge.LastSeen = now

		data, err := json.Marshal(edge)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Nearby returns the micro-locations related to loc at or above the given
// confidence floor, strongest first. Lock-free read path.
func (s *Store) Nearby(loc location.MicroLocation, floor float64) ([]Neighbor, error) {
	now := time.Now()
	var neighbors []Neighbor

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeEdgeSourcePrefix(loc.Tier, loc.Name)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var edge Edge
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &edge)
			}); err != nil {
				return err
			}

			conf := s.confidenceAt(edge, now)
			if conf < floor {
				continue
			}
			neighbors = append(neighbors, Neighbor{
				Location:   location.MicroLocation{Tier: edge.Tier, Name: edge.Target},
				Confidence: conf,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Confidence > neighbors[j].Confidence
	})
	return neighbors, nil
}

// ConfidenceAt computes an edge's effective confidence at the given instant.
// Grows with repetition, decays exponentially with time since the last
// reinforcement, capped at 1.0.
func (s *Store) confidenceAt(edge Edge, now time.Time) float64 {
	base := 1 - math.Exp(-float64(edge.Frequency)/3)
	if base > 1 {
		base = 1
	}

	ageDays := now.Sub(edge.LastSeen).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Exp(-ageDays / s.opts.HalfLifeDays * math.Ln2)

	return base * decay
}

// ConfidenceAt is the exported hook used by tests and the sweep.
func (s *Store) ConfidenceAt(edge Edge, now time.Time) float64 {
	return s.confidenceAt(edge, now)
}

// Sweep bounds each tier partition: when a tier holds more edges than the
// configured cap, the lowest effective-confidence edges are evicted first.
// Returns the number of edges removed.
func (s *Store) Sweep() (int, error) {
	now := time.Now()
	removed := 0

	for _, tier := range location.Tiers {
		type scored struct {
			key  []byte
			conf float64
		}
		var edges []scored

		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = makeEdgeTierPrefix(tier)
			iter := txn.NewIterator(opts)
			defer iter.Close()

			for iter.Rewind(); iter.Valid(); iter.Next() {
				item := iter.Item()
				var edge Edge
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &edge)
				}); err != nil {
					return err
				}
				edges = append(edges, scored{
					key:  item.KeyCopy(nil),
					conf: s.confidenceAt(edge, now),
				})
			}
			return nil
		})
		if err != nil {
			return removed, err
		}

		if len(edges) <= s.opts.MaxEdgesPerTier {
			continue
		}

		sort.Slice(edges, func(i, j int) bool {
			return edges[i].conf < edges[j].conf
		})
		excess := edges[:len(edges)-s.opts.MaxEdgesPerTier]

		err = s.db.Update(func(txn *badger.Txn) error {
			for _, e := range excess {
				if err := txn.Delete(e.key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += len(excess)
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Evicted low-confidence relationship edges")
	}
	return removed, nil
}

// Observe records discovered metadata about a micro-location: aliases from
// the feed and streets seen inside it. Metadata never feeds the exact-match
// tiers.
func (s *Store) Observe(loc location.MicroLocation, alias, street string) error {
	if loc.Name == "" {
		return nil
	}
	key := makeMicroKey(loc)
	now := time.Now()

	stripe := &s.locks[stripeFor(key)]
	stripe.Lock()
	defer stripe.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		meta := Metadata{Name: loc.Name, FirstSeen: now}

		item, err := txn.Get(key)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		meta.LastSeen = now
		if alias != "" && alias != loc.Name {
			meta.Aliases = appendUnique(meta.Aliases, alias)
		}
		if street != "" {
			meta.CommonStreets = appendUnique(meta.CommonStreets, street)
		}

		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// MetadataFor lists the discovered metadata for one tier, for reporting.
func (s *Store) MetadataFor(tier location.Tier) ([]Metadata, error) {
	var out []Metadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeMicroTierPrefix(tier)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var meta Metadata
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	return out, err
}

// EdgeCount returns the number of edges in one tier partition.
func (s *Store) EdgeCount(tier location.Tier) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeEdgeTierPrefix(tier)
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func stripeFor(key []byte) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % lockStripes)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
