package corpus

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"valumatch/server/internal/identity"
	"valumatch/server/internal/models"
)

// Store is the durable property corpus. Writes go through gorm (transactional
// upserts from the ingest processor); bulk reads for index rebuilds use raw
// SQL so the hot path stays allocation-light.
type Store struct {
	gormDB *gorm.DB
	db     *sql.DB
	logger *logrus.Logger
}

func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	gormDB, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	return &Store{gormDB: gormDB, db: db, logger: logger}, nil
}

// RunMigrations creates or evolves the properties schema.
func (s *Store) RunMigrations() error {
	return s.gormDB.AutoMigrate(&models.Property{})
}

// DB exposes the gorm handle for transactional batch writes.
func (s *Store) DB() *gorm.DB {
	return s.gormDB
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertProperties writes a batch inside the given transaction, keyed on the
// stable comparable identity. Records without one get it derived here so
// nothing enters storage unidentifiable.
func UpsertProperties(tx *gorm.DB, batch []*models.Property) error {
	now := time.Now()
	for _, p := range batch {
		identity.Ensure(p)
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "comparable_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"transaction_type", "category", "street", "urbanization", "suburb",
			"city", "province", "latitude", "longitude", "geo_confidence",
			"build_area", "plot_area", "terrace_area", "bedrooms", "bathrooms",
			"price", "features", "updated_at",
		}),
	}).Create(batch).Error
}

// LoadSearchable returns every record satisfying the index invariant
// (city+province, price, area). Unsearchable records stay in storage and out
// of the result.
func (s *Store) LoadSearchable() ([]models.Property, error) {
	query := `
        SELECT
            id,
            comparable_id,
            feed_ref,
            transaction_type,
            category,
            street,
            urbanization,
            suburb,
            city,
            province,
            latitude,
            longitude,
            COALESCE(geo_confidence, 0) as geo_confidence,
            build_area,
            plot_area,
            terrace_area,
            COALESCE(bedrooms, 0) as bedrooms,
            COALESCE(bathrooms, 0) as bathrooms,
            COALESCE(price, 0) as price,
            COALESCE(created_at, CURRENT_TIMESTAMP) as created_at,
            COALESCE(updated_at, CURRENT_TIMESTAMP) as updated_at
        FROM properties
        WHERE city IS NOT NULL AND city != ''
          AND province IS NOT NULL AND province != ''
          AND price > 0
          AND (COALESCE(build_area, 0) > 0 OR COALESCE(plot_area, 0) > 0)
    `

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var properties []models.Property
	for rows.Next() {
		var p models.Property
		var comparableID, feedRef, transaction, category sql.NullString
		var street, urbanization, suburb, city, province sql.NullString
		var latitude, longitude, buildArea, plotArea, terraceArea sql.NullFloat64
		var createdAt, updatedAt sql.NullString

		err := rows.Scan(
			&p.ID,
			&comparableID,
			&feedRef,
			&transaction,
			&category,
			&street,
			&urbanization,
			&suburb,
			&city,
			&province,
			&latitude,
			&longitude,
			&p.GeoConfidence,
			&buildArea,
			&plotArea,
			&terraceArea,
			&p.Bedrooms,
			&p.Bathrooms,
			&p.Price,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, err
		}

		if comparableID.Valid {
			p.ComparableID = comparableID.String
		}
		if feedRef.Valid {
			p.FeedRef = feedRef.String
		}
		if transaction.Valid {
			p.Transaction = models.TransactionType(transaction.String)
		}
		if category.Valid {
			p.Category = models.Category(category.String)
		}
		if street.Valid {
			p.Street = street.String
		}
		if urbanization.Valid {
			p.Urbanization = urbanization.String
		}
		if suburb.Valid {
			p.Suburb = suburb.String
		}
		if city.Valid {
			p.City = city.String
		}
		if province.Valid {
			p.Province = province.String
		}

		if latitude.Valid && longitude.Valid {
			lat := latitude.Float64
			lng := longitude.Float64
			p.Latitude = &lat
			p.Longitude = &lng
		}
		if buildArea.Valid {
			ba := buildArea.Float64
			p.BuildArea = &ba
		}
		if plotArea.Valid {
			pa := plotArea.Float64
			p.PlotArea = &pa
		}
		if terraceArea.Valid {
			ta := terraceArea.Float64
			p.TerraceArea = &ta
		}

		if createdAt.Valid && createdAt.String != "" {
			if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				p.CreatedAt = t
			}
		}
		if updatedAt.Valid && updatedAt.String != "" {
			if t, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
				p.UpdatedAt = t
			}
		}

		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// MissingCoordinates returns searchable records without trusted coordinates,
// for the throttled backfill job.
func (s *Store) MissingCoordinates(limit int) ([]models.Property, error) {
	var properties []models.Property
	err := s.gormDB.
		Where("latitude IS NULL OR longitude IS NULL").
		Where("city IS NOT NULL AND city != ''").
		Limit(limit).
		Find(&properties).Error
	return properties, err
}

// UpdateCoordinates stores a geocoding result against a record.
func (s *Store) UpdateCoordinates(id int64, lat, lng, confidence float64) error {
	return s.gormDB.Model(&models.Property{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"latitude":       lat,
			"longitude":      lng,
			"geo_confidence": confidence,
		}).Error
}

// CityStats is a corpus summary row for reporting.
type CityStats struct {
	City         string  `json:"city"`
	Count        int     `json:"count"`
	AveragePrice float64 `json:"average_price"`
}

// GetCityStats aggregates listing counts and average prices per city.
func (s *Store) GetCityStats() ([]CityStats, error) {
	query := `
        SELECT city, COUNT(*) as count, AVG(price) as average_price
        FROM properties
        WHERE city IS NOT NULL AND city != '' AND price > 0
        GROUP BY city
        ORDER BY count DESC
    `

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CityStats
	for rows.Next() {
		var st CityStats
		if err := rows.Scan(&st.City, &st.Count, &st.AveragePrice); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
