package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"valumatch/server/internal/corpus"
	"valumatch/server/internal/location"
	"valumatch/server/internal/models"
	"valumatch/server/internal/queue"
	"valumatch/server/internal/relationship"
	"valumatch/server/internal/search"
)

// Handler exposes the comparables core over HTTP. The orchestration layer
// above (sessions, reports, narrative) lives in another service; this
// surface is deliberately small.
type Handler struct {
	orchestrator *search.Orchestrator
	store        *corpus.Store
	rel          *relationship.Store
	signals      *queue.SignalQueue
	logger       *logrus.Logger
}

// ComparablesRequest is the findComparables payload.
type ComparablesRequest struct {
	Subject models.Property `json:"subject" binding:"required"`
	Options struct {
		MaxResults             int                    `json:"max_results"`
		Transaction            models.TransactionType `json:"transaction_type"`
		ClassificationOverride *search.Classification `json:"classification_override"`
	} `json:"options"`
}

// ReinforceRequest is the fire-and-forget learning payload.
type ReinforceRequest struct {
	Subject  models.Property   `json:"subject" binding:"required"`
	Accepted []models.Property `json:"accepted" binding:"required"`
}

func NewHandler(orchestrator *search.Orchestrator, store *corpus.Store, rel *relationship.Store, signals *queue.SignalQueue, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		rel:          rel,
		signals:      signals,
		logger:       logger,
	}
}

// FindComparables handles POST /api/comparables.
func (h *Handler) FindComparables(c *gin.Context) {
	var req ComparablesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.orchestrator.FindComparables(&req.Subject, search.Options{
		MaxResults:             req.Options.MaxResults,
		Transaction:            req.Options.Transaction,
		ClassificationOverride: req.Options.ClassificationOverride,
	})
	if err != nil {
		if isInputError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Comparable search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Reinforce handles POST /api/reinforce. Skipping or losing the signal never
// breaks correctness, so the endpoint acknowledges before any learning runs.
func (h *Handler) Reinforce(c *gin.Context) {
	var req ReinforceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	subject := location.Resolve(&req.Subject)
	loc, ok := subject.At(location.TierUrbanization)
	if !ok {
		c.JSON(http.StatusAccepted, gin.H{"queued": false})
		return
	}

	var comparables []location.MicroLocation
	for i := range req.Accepted {
		hierarchy := location.Resolve(&req.Accepted[i])
		if comp, ok := hierarchy.At(location.TierUrbanization); ok {
			comparables = append(comparables, comp)
		}
	}

	queued := false
	if h.signals != nil && len(comparables) > 0 {
		if err := h.signals.Push(queue.Signal{Subject: loc, Comparables: comparables}); err != nil {
			h.logger.WithError(err).Debug("Reinforcement signal not queued")
		} else {
			queued = true
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": queued})
}

// GetCityStats handles GET /api/stats.
func (h *Handler) GetCityStats(c *gin.Context) {
	stats, err := h.store.GetCityStats()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get city stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetDiscoveredMetadata handles GET /api/metadata/:tier.
func (h *Handler) GetDiscoveredMetadata(c *gin.Context) {
	var tier location.Tier
	switch c.Param("tier") {
	case "street":
		tier = location.TierStreet
	case "urbanization":
		tier = location.TierUrbanization
	case "suburb":
		tier = location.TierSuburb
	case "city":
		tier = location.TierCity
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
		return
	}

	if h.rel == nil {
		c.JSON(http.StatusOK, []relationship.Metadata{})
		return
	}

	metas, err := h.rel.MetadataFor(tier)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read discovered metadata")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read metadata"})
		return
	}
	c.JSON(http.StatusOK, metas)
}

// Health handles GET /api/health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isInputError(err error) bool {
	return errors.Is(err, search.ErrMissingLocation) ||
		errors.Is(err, search.ErrMissingMetrics) ||
		errors.Is(err, search.ErrNoExclusionIdentity)
}
