package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"valumatch/server/config"
	"valumatch/server/internal/api"
	"valumatch/server/internal/cache"
	"valumatch/server/internal/corpus"
	"valumatch/server/internal/geocoding"
	"valumatch/server/internal/processor"
	"valumatch/server/internal/queue"
	"valumatch/server/internal/reinforce"
	"valumatch/server/internal/relationship"
	"valumatch/server/internal/scheduler"
	"valumatch/server/internal/search"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := config.LoadToleranceConfig(); err != nil {
		logger.WithError(err).Fatal("Failed to load tolerance configuration")
	}

	currentDir, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Fatal("Failed to get current directory")
	}

	// Initialize the property store
	dbPath := filepath.Join(currentDir, "database", "valumatch.db")
	logger.Infof("Using database at: %s", dbPath)

	store, err := corpus.NewStore(dbPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize property store")
	}
	defer store.Close()

	logger.Info("Running database migrations...")
	if err := store.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// Build the first in-memory index snapshot before serving
	c := corpus.NewCorpus(store, logger)
	if err := c.Rebuild(); err != nil {
		logger.WithError(err).Fatal("Failed to build corpus index")
	}

	// Open the relationship store (learned area adjacency)
	rel, err := relationship.OpenStore(relationship.Options{
		Path:            filepath.Join(currentDir, "database", "relationships"),
		HalfLifeDays:    cfg.Relationship.DecayHalfLifeDays,
		MaxEdgesPerTier: cfg.Relationship.MaxEdgesPerTier,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open relationship store")
	}
	defer rel.Close()

	// Reinforcement pipeline: queue plus worker pool
	signals := queue.NewSignalQueue(cfg.Relationship.ReinforceQueueSize, logger)
	worker, err := reinforce.NewWorker(rel, signals, cfg.Relationship.ReinforceWorkerPool, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start reinforcement worker")
	}
	worker.Start()
	defer worker.Stop()
	defer signals.Close()

	// Geocoder with persistent file cache, used only by the backfill job
	cacheDir := filepath.Join(os.TempDir(), "valumatch", "geocode_cache")
	geocoder := geocoding.NewGeocoder(logger, cacheDir, cfg.Geocoding.MinConfidence,
		time.Duration(cfg.Geocoding.BackfillDelayMs)*time.Millisecond)

	results := cache.NewResultCache(time.Duration(cfg.Cache.TTLSeconds) * time.Second)

	orchestrator := search.NewOrchestrator(c, rel, signals, results, cfg, logger)

	// Feed ingest pipeline
	ingest := processor.NewIngestProcessor(store, c, results, cfg, logger)
	ingest.Start()
	defer ingest.Stop()

	// Background maintenance: decay sweeps and coordinate backfill
	sched := scheduler.NewScheduler(store, c, rel, geocoder, cfg, logger)
	sched.Start()
	defer sched.Stop()

	router := gin.Default()
	api.SetupRoutes(router, orchestrator, store, rel, signals, logger)

	const port = "5260"
	logger.Infof("Starting server on port %s", port)

	go func() {
		if err := router.Run(":" + port); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")
}
