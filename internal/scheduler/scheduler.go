package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"valumatch/server/config"
	"valumatch/server/internal/corpus"
	"valumatch/server/internal/geocoding"
	"valumatch/server/internal/relationship"
)

// JobType represents the maintenance jobs the scheduler owns.
type JobType int

const (
	JobTypeSweep JobType = iota
	JobTypeBackfill
)

// String returns the string representation of a JobType.
func (j JobType) String() string {
	switch j {
	case JobTypeSweep:
		return "relationship_sweep"
	case JobTypeBackfill:
		return "coordinate_backfill"
	default:
		return "unknown"
	}
}

// Scheduler manages periodic maintenance: relationship-store decay sweeps
// and throttled coordinate backfill. Both run independently of search
// concurrency and never on a search path.
type Scheduler struct {
	store        *corpus.Store
	corpus       *corpus.Corpus
	rel          *relationship.Store
	geocoder     *geocoding.Geocoder
	cfg          *config.Config
	logger       *logrus.Logger
	stopChan     chan struct{}
	wg           sync.WaitGroup
	jobMutex     sync.Mutex // Ensures sequential job execution
	lastSweep    time.Time
	lastBackfill time.Time
}

// NewScheduler creates a new scheduler.
func NewScheduler(store *corpus.Store, c *corpus.Corpus, rel *relationship.Store, geocoder *geocoding.Geocoder, cfg *config.Config, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		store:    store,
		corpus:   c,
		rel:      rel,
		geocoder: geocoder,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduled tasks.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// Stop halts scheduling and waits for a job in flight.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	// Startup pass: backfill coordinates the previous run never resolved.
	go func() {
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.logger.Info("Running startup coordinate backfill")
		s.runBackfill()
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

func (s *Scheduler) executeScheduledJobs(t time.Time) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	sweepEvery := time.Duration(s.cfg.Relationship.SweepIntervalMin) * time.Minute
	if t.Sub(s.lastSweep) >= sweepEvery {
		s.lastSweep = t
		s.runSweep()
	}

	// Backfill hourly; the geocoder throttles each request on its own.
	if t.Sub(s.lastBackfill) >= time.Hour {
		s.lastBackfill = t
		s.runBackfill()
	}
}

func (s *Scheduler) runSweep() {
	if s.rel == nil {
		return
	}
	s.logger.WithField("job", JobTypeSweep.String()).Info("Starting scheduled job")

	removed, err := s.rel.Sweep()
	if err != nil {
		s.logger.WithError(err).Error("Relationship sweep failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"job":     JobTypeSweep.String(),
		"removed": removed,
	}).Info("Scheduled job completed")
}

func (s *Scheduler) runBackfill() {
	if s.geocoder == nil || s.store == nil {
		return
	}
	s.logger.WithField("job", JobTypeBackfill.String()).Info("Starting scheduled job")

	var aliases geocoding.AliasObserver
	if s.rel != nil {
		aliases = s.rel
	}
	updated, err := geocoding.Backfill(s.store, s.geocoder, aliases, s.cfg.Geocoding.BackfillBatchSize, s.logger)
	if err != nil {
		s.logger.WithError(err).Error("Coordinate backfill failed")
		return
	}
	if updated > 0 {
		// New coordinates change radius selection; refresh the index.
		if err := s.corpus.Rebuild(); err != nil {
			s.logger.WithError(err).Error("Index rebuild after backfill failed")
		}
	}
}
