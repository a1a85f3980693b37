package geocoding

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Result is a resolved coordinate pair with the resolver's confidence.
// The search core only ever consumes this struct; it never issues a geocode
// request of its own.
type Result struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Confidence   float64 `json:"confidence"`
	ResolvedName string  `json:"resolved_name"`
}

// Geocoder resolves addresses through Nominatim with a persistent file
// cache. Results under the confidence floor are reported as absent, so
// low-quality geocodes never masquerade as trusted coordinates.
type Geocoder struct {
	logger        *logrus.Logger
	cacheDir      string
	cache         map[string]Result
	cacheLock     sync.RWMutex
	client        *http.Client
	minConfidence float64
	delay         time.Duration
}

func NewGeocoder(logger *logrus.Logger, cacheDir string, minConfidence float64, delay time.Duration) *Geocoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	os.MkdirAll(cacheDir, 0755)

	if delay <= 0 {
		delay = time.Second
	}

	g := &Geocoder{
		logger:        logger,
		cacheDir:      cacheDir,
		cache:         make(map[string]Result),
		client:        &http.Client{Timeout: 10 * time.Second},
		minConfidence: minConfidence,
		delay:         delay,
	}

	g.loadCache()
	return g
}

func (g *Geocoder) loadCache() {
	cacheFile := filepath.Join(g.cacheDir, "geocode_cache.json")
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		g.logger.Warnf("Could not load geocode cache: %v", err)
		return
	}

	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}

	g.logger.Infof("Loaded %d cached addresses", len(g.cache))
}

func (g *Geocoder) saveCache() {
	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.Errorf("Failed to marshal geocode cache: %v", err)
		return
	}

	cacheFile := filepath.Join(g.cacheDir, "geocode_cache.json")
	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
	}
}

type nominatimResponse []struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

// Resolve geocodes a free-form address. A nil result with nil error means
// the resolver had nothing trustworthy: the caller proceeds with name-only
// matching.
func (g *Geocoder) Resolve(street, urbanization, city, province string) (*Result, error) {
	cacheKey := fmt.Sprintf("%s|%s|%s|%s", street, urbanization, city, province)
	fullAddress := buildAddress(street, urbanization, city, province)

	g.cacheLock.RLock()
	cached, ok := g.cache[cacheKey]
	g.cacheLock.RUnlock()
	if ok {
		if cached.Confidence < g.minConfidence {
			return nil, nil
		}
		return &cached, nil
	}

	g.logger.WithField("address", fullAddress).Info("Geocoding address with Nominatim")

	// Respect Nominatim's usage policy
	time.Sleep(g.delay)

	params := url.Values{
		"q":            []string{fullAddress},
		"format":       []string{"json"},
		"limit":        []string{"1"},
		"countrycodes": []string{"es"},
	}

	req, err := http.NewRequest("GET", "https://nominatim.openstreetmap.org/search", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "ValuMatch Comparables/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).WithField("address", fullAddress).Error("Geocoding request failed")
		return nil, fmt.Errorf("geocoding request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	var parsed nominatimResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	if len(parsed) == 0 {
		g.logger.WithField("address", fullAddress).Warn("No geocoding results found")
		// Cache the miss so the next backfill run skips it.
		g.storeCache(cacheKey, Result{})
		return nil, nil
	}

	lat, err := strconv.ParseFloat(parsed[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in response: %v", err)
	}
	lng, err := strconv.ParseFloat(parsed[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in response: %v", err)
	}

	result := Result{
		Lat:          lat,
		Lng:          lng,
		Confidence:   parsed[0].Importance,
		ResolvedName: parsed[0].DisplayName,
	}
	g.storeCache(cacheKey, result)

	if result.Confidence < g.minConfidence {
		g.logger.WithFields(logrus.Fields{
			"address":    fullAddress,
			"confidence": result.Confidence,
		}).Warn("Geocode below confidence floor, treating as absent")
		return nil, nil
	}

	return &result, nil
}

func (g *Geocoder) storeCache(key string, result Result) {
	g.cacheLock.Lock()
	g.cache[key] = result
	g.cacheLock.Unlock()

	go g.saveCache()
}

func buildAddress(street, urbanization, city, province string) string {
	address := ""
	for _, part := range []string{street, urbanization, city, province} {
		if part == "" {
			continue
		}
		if address != "" {
			address += ", "
		}
		address += part
	}
	return address + ", Spain"
}
