package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Search configuration
	Search struct {
		// Hard cap on candidates materialized before scoring
		CandidateCap int `env:"SEARCH_CANDIDATE_CAP" envDefault:"200"`

		// Default number of comparables returned when the caller sets none
		DefaultMaxResults int `env:"SEARCH_DEFAULT_MAX_RESULTS" envDefault:"10"`

		// Adaptive radius ladder in km for standard subjects with coordinates
		RadiusLadderKm []float64 `env:"SEARCH_RADIUS_LADDER_KM" envDefault:"3,5,10,15" envSeparator:","`

		// Confidence floor for learned nearby-area expansion (tier 4)
		NearbyConfidenceFloor float64 `env:"SEARCH_NEARBY_CONFIDENCE_FLOOR" envDefault:"0.3"`

		// Standard price acceptance window as a fraction of the subject price
		PriceTolerancePct float64 `env:"SEARCH_PRICE_TOLERANCE_PCT" envDefault:"0.30"`

		// Standard permitted bedroom difference
		BedroomSlack int `env:"SEARCH_BEDROOM_SLACK" envDefault:"2"`
	}

	// Composite score weights. Observed operating constants, not calibrated;
	// keep the sum at 1.0 when overriding.
	Weights struct {
		Distance float64 `env:"WEIGHT_DISTANCE" envDefault:"0.30"`
		Price    float64 `env:"WEIGHT_PRICE" envDefault:"0.30"`
		Size     float64 `env:"WEIGHT_SIZE" envDefault:"0.20"`
		Bedrooms float64 `env:"WEIGHT_BEDROOMS" envDefault:"0.15"`
		Type     float64 `env:"WEIGHT_TYPE" envDefault:"0.05"`

		// Distance cost charged when either side lacks coordinates (km)
		MissingCoordinatePenaltyKm float64 `env:"WEIGHT_MISSING_COORD_KM" envDefault:"20"`

		// Distance substituted on an exact micro-location match (km)
		ExactLocationDistanceKm float64 `env:"WEIGHT_EXACT_LOCATION_KM" envDefault:"0.05"`
	}

	// Edge-case classifier thresholds
	Classifier struct {
		MaxStandardBedrooms  int     `env:"CLASSIFIER_MAX_BEDROOMS" envDefault:"6"`
		LuxuryPriceThreshold float64 `env:"CLASSIFIER_LUXURY_PRICE" envDefault:"3000000"`
		BuildAreaCeiling     float64 `env:"CLASSIFIER_AREA_CEILING" envDefault:"600"`
		LuxurySizeThreshold  float64 `env:"CLASSIFIER_LUXURY_SIZE" envDefault:"400"`
	}

	// Relationship store (learning engine)
	Relationship struct {
		DecayHalfLifeDays   float64 `env:"RELATIONSHIP_HALF_LIFE_DAYS" envDefault:"90"`
		MaxEdgesPerTier     int     `env:"RELATIONSHIP_MAX_EDGES_PER_TIER" envDefault:"5000"`
		SweepIntervalMin    int     `env:"RELATIONSHIP_SWEEP_INTERVAL_MIN" envDefault:"60"`
		ReinforceQueueSize  int     `env:"RELATIONSHIP_QUEUE_SIZE" envDefault:"256"`
		ReinforceWorkerPool int     `env:"RELATIONSHIP_WORKER_POOL" envDefault:"4"`
	}

	// Geocoding consumption and backfill
	Geocoding struct {
		// Coordinates resolved below this confidence are treated as absent
		MinConfidence float64 `env:"GEOCODE_MIN_CONFIDENCE" envDefault:"0.5"`

		// Delay between backfill requests in milliseconds
		BackfillDelayMs int `env:"GEOCODE_BACKFILL_DELAY_MS" envDefault:"1000"`

		// Maximum properties geocoded per backfill run
		BackfillBatchSize int `env:"GEOCODE_BACKFILL_BATCH" envDefault:"100"`
	}

	// Search result cache
	Cache struct {
		TTLSeconds int `env:"CACHE_TTL_SECONDS" envDefault:"300"`
	}

	// BatchProcessing configuration for corpus ingest
	BatchProcessing struct {
		// Maximum number of properties to accumulate before processing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`

		// Queue buffer size in batches
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"32"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
