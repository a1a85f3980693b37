package models

import "time"

// TransactionType distinguishes the market a listing is on. A property may
// appear once per transaction type but never carries two prices at once.
type TransactionType string

const (
	TransactionSale      TransactionType = "sale"
	TransactionLongTerm  TransactionType = "long_term_rental"
	TransactionShortTerm TransactionType = "short_term_rental"
)

// Category is the property category as delivered by the feed.
type Category string

const (
	CategoryApartment    Category = "apartment"
	CategoryVilla        Category = "villa"
	CategoryPenthouse    Category = "penthouse"
	CategoryTownhouse    Category = "townhouse"
	CategoryCountryHouse Category = "country_house"
	CategoryPlot         Category = "plot"
	CategoryCommercial   Category = "commercial"
)

// LuxuryCategories marks the categories that, above a size threshold, push a
// subject into edge-case search-strategy selection.
var LuxuryCategories = map[Category]bool{
	CategoryVilla:        true,
	CategoryCountryHouse: true,
	CategoryPenthouse:    true,
}

// FeatureTags is an unordered set of feed feature flags ("pool", "sea_view").
type FeatureTags []string

// Property is a single corpus record. Optional fields are pointers so that
// "unknown" survives the round trip through storage: absent, not zero.
type Property struct {
	ID            int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	ComparableID  string          `json:"comparable_id" gorm:"column:comparable_id;uniqueIndex"`
	FeedRef       string          `json:"feed_ref" gorm:"column:feed_ref"`
	Transaction   TransactionType `json:"transaction_type" gorm:"column:transaction_type"`
	Category      Category        `json:"category"`
	Street        string          `json:"street"`
	Urbanization  string          `json:"urbanization"`
	Suburb        string          `json:"suburb"`
	City          string          `json:"city"`
	Province      string          `json:"province"`
	Latitude      *float64        `json:"latitude"`
	Longitude     *float64        `json:"longitude"`
	GeoConfidence float64         `json:"geo_confidence" gorm:"column:geo_confidence"`
	BuildArea     *float64        `json:"build_area" gorm:"column:build_area"`
	PlotArea      *float64        `json:"plot_area" gorm:"column:plot_area"`
	TerraceArea   *float64        `json:"terrace_area" gorm:"column:terrace_area"`
	Bedrooms      int             `json:"bedrooms"`
	Bathrooms     int             `json:"bathrooms"`
	Price         float64         `json:"price"`
	Features      FeatureTags     `json:"features" gorm:"serializer:json"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Property) TableName() string {
	return "properties"
}

// HasCoordinates reports whether the record carries usable coordinates. The
// geocoding layer drops anything below its confidence floor, so a non-nil
// pair here is already trusted.
func (p *Property) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Area returns the metric used for size comparison: build area when present,
// otherwise plot area (plots and rural listings often have no build size).
func (p *Property) Area() (float64, bool) {
	if p.BuildArea != nil && *p.BuildArea > 0 {
		return *p.BuildArea, true
	}
	if p.PlotArea != nil && *p.PlotArea > 0 {
		return *p.PlotArea, true
	}
	return 0, false
}

// Searchable reports whether the record qualifies for the search index:
// city and province present, a price, and an area. Records that fail stay in
// storage but are never offered as comparables.
func (p *Property) Searchable() bool {
	if p.City == "" || p.Province == "" {
		return false
	}
	if p.Price <= 0 {
		return false
	}
	_, ok := p.Area()
	return ok
}

// SearchCriteria is built per request from the subject property and the
// caller's options. It is never persisted.
type SearchCriteria struct {
	Street       string          `json:"street"`
	Urbanization string          `json:"urbanization"`
	Suburb       string          `json:"suburb"`
	City         string          `json:"city"`
	Province     string          `json:"province"`
	Latitude     *float64        `json:"latitude"`
	Longitude    *float64        `json:"longitude"`
	Category     Category        `json:"category"`
	Transaction  TransactionType `json:"transaction_type"`
	Bedrooms     int             `json:"bedrooms"`
	Bathrooms    int             `json:"bathrooms"`
	Price        float64         `json:"price"`
	BuildArea    float64         `json:"build_area"`
	ExcludeID    string          `json:"exclude_id"`
	MaxResults   int             `json:"max_results"`
}

func (c *SearchCriteria) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}
