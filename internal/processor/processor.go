package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"valumatch/server/config"
	"valumatch/server/internal/cache"
	"valumatch/server/internal/corpus"
	"valumatch/server/internal/models"
)

var ErrProcessorStopped = errors.New("ingest processor is stopped")

// IngestProcessor consumes property batches from the feed provider, upserts
// them transactionally and triggers an atomic index rebuild, so searches
// flip from the old corpus to the new one in a single pointer swap.
type IngestProcessor struct {
	store     *corpus.Store
	corpus    *corpus.Corpus
	results   *cache.ResultCache
	logger    *logrus.Logger
	config    *config.Config
	batches   chan []*models.Property
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewIngestProcessor creates a new ingest processor instance. results may be
// nil when search memoization is disabled.
func NewIngestProcessor(store *corpus.Store, c *corpus.Corpus, results *cache.ResultCache, cfg *config.Config, logger *logrus.Logger) *IngestProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &IngestProcessor{
		store:   store,
		corpus:  c,
		results: results,
		logger:  logger,
		config:  cfg,
		batches: make(chan []*models.Property, cfg.BatchProcessing.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue hands a batch to the processors. Non-blocking; a full buffer is
// reported to the feed provider for its own retry handling.
func (p *IngestProcessor) Enqueue(batch []*models.Property) error {
	select {
	case <-p.ctx.Done():
		return ErrProcessorStopped
	case p.batches <- batch:
		return nil
	default:
		return fmt.Errorf("ingest buffer full, batch of %d rejected", len(batch))
	}
}

// Start begins processing batches.
func (p *IngestProcessor) Start() {
	for i := 0; i < p.config.BatchProcessing.ProcessorCount; i++ {
		p.waitGroup.Add(1)
		go p.processLoop()
	}
}

// Stop gracefully shuts down the processor.
func (p *IngestProcessor) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

func (p *IngestProcessor) processLoop() {
	defer p.waitGroup.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case batch := <-p.batches:
			if err := p.processBatch(batch); err != nil {
				p.logger.WithError(err).Error("Batch ingest failed permanently")
				continue
			}
			p.publish()
		}
	}
}

// processBatch upserts one batch with transaction and retry logic.
func (p *IngestProcessor) processBatch(batch []*models.Property) error {
	var err error
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch ingest, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			time.Sleep(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second)
		}

		err = p.store.DB().Transaction(func(tx *gorm.DB) error {
			if err := corpus.UpsertProperties(tx, batch); err != nil {
				return fmt.Errorf("failed to upsert properties batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.logger.Infof("Successfully ingested batch of %d properties", len(batch))
			return nil
		}

		p.logger.Errorf("Batch ingest failed: %v", err)
	}

	return fmt.Errorf("failed to ingest batch after %d attempts: %w", p.config.BatchProcessing.MaxRetries, err)
}

// publish rebuilds the search index and drops memoized results that may now
// differ from a fresh computation.
func (p *IngestProcessor) publish() {
	if err := p.corpus.Rebuild(); err != nil {
		p.logger.WithError(err).Error("Failed to rebuild corpus index after ingest")
		return
	}
	if p.results != nil {
		p.results.Purge()
	}
}
