package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"valumatch/server/internal/models"
)

// ToleranceBand maps an upper size bound to the multiplicative window applied
// when comparing areas. Bands are checked in order; the first band whose
// MaxSize covers the subject wins.
type ToleranceBand struct {
	MaxSize   float64 `json:"max_size"`
	MinFactor float64 `json:"min_factor"`
	MaxFactor float64 `json:"max_factor"`
}

// ToleranceTable holds per-category size-tolerance bands.
type ToleranceTable struct {
	Categories map[string][]ToleranceBand `json:"categories"`
	Default    ToleranceBand              `json:"default"`
}

var (
	toleranceTable *ToleranceTable
	toleranceLock  sync.RWMutex
	tolerancePath  = "config/tolerance_bands.json"
)

// defaultToleranceTable covers the categories where a fixed percentage window
// starves atypical subjects. A compact villa in a corpus of 300-600 m2 villas
// needs a much wider window than the default 30% or it finds nothing.
func defaultToleranceTable() *ToleranceTable {
	return &ToleranceTable{
		Categories: map[string][]ToleranceBand{
			string(models.CategoryVilla): {
				{MaxSize: 120, MinFactor: 0.50, MaxFactor: 3.50},
				{MaxSize: 200, MinFactor: 0.60, MaxFactor: 2.00},
				{MaxSize: 0, MinFactor: 0.70, MaxFactor: 1.30},
			},
			string(models.CategoryCountryHouse): {
				{MaxSize: 150, MinFactor: 0.50, MaxFactor: 3.00},
				{MaxSize: 0, MinFactor: 0.70, MaxFactor: 1.40},
			},
			string(models.CategoryPenthouse): {
				{MaxSize: 80, MinFactor: 0.60, MaxFactor: 2.50},
				{MaxSize: 0, MinFactor: 0.70, MaxFactor: 1.30},
			},
			string(models.CategoryPlot): {
				{MaxSize: 0, MinFactor: 0.50, MaxFactor: 2.00},
			},
		},
		Default: ToleranceBand{MinFactor: 0.70, MaxFactor: 1.30},
	}
}

// LoadToleranceConfig replaces the built-in bands with the JSON table on
// disk. Missing file is not an error; the defaults stay active.
func LoadToleranceConfig() error {
	absPath, err := filepath.Abs(tolerancePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tolerance config: %v", err)
	}

	var table ToleranceTable
	if err := json.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("failed to parse tolerance config: %v", err)
	}

	toleranceLock.Lock()
	toleranceTable = &table
	toleranceLock.Unlock()
	return nil
}

// ToleranceFor returns the absolute [min, max] area window for a subject of
// the given category and size. Data lookup, not branching: new categories or
// thresholds are a config change.
func ToleranceFor(category models.Category, size float64) (float64, float64) {
	toleranceLock.RLock()
	table := toleranceTable
	toleranceLock.RUnlock()

	if table == nil {
		table = defaultToleranceTable()
	}

	band := table.Default
	if bands, ok := table.Categories[string(category)]; ok {
		for _, b := range bands {
			// MaxSize 0 is the open-ended catch-all band.
			if b.MaxSize == 0 || size <= b.MaxSize {
				band = b
				break
			}
		}
	}

	return size * band.MinFactor, size * band.MaxFactor
}

// SetToleranceTable swaps the active table. Used by tests.
func SetToleranceTable(table *ToleranceTable) {
	toleranceLock.Lock()
	toleranceTable = table
	toleranceLock.Unlock()
}
