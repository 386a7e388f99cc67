// Package store persists raw readings and computed AQI results. Access is
// append-only: historical rows are never updated in place.
package store

import (
	"context"
	"errors"
	"time"

	"aqi-pipeline/internal/models"
)

// ErrNotFound is returned when no data exists for the requested city.
var ErrNotFound = errors.New("no data for city")

// Store is the contract shared by the Postgres implementation and the
// in-memory one used for tests and no-database mode. The pipeline is the
// only writer; the API reads only.
type Store interface {
	// InsertReadings appends readings, silently skipping rows whose
	// (city, observed_at) already exists. Returns the number actually
	// inserted.
	InsertReadings(ctx context.Context, readings []models.Reading) (int, error)

	// RecentReadings returns a city's readings observed at or after
	// since, oldest first.
	RecentReadings(ctx context.Context, city string, since time.Time) ([]models.Reading, error)

	// LatestReading returns a city's newest reading.
	LatestReading(ctx context.Context, city string) (models.Reading, error)

	// CitiesWithRecentData lists cities having readings since the cutoff.
	CitiesWithRecentData(ctx context.Context, since time.Time) ([]string, error)

	// InsertResult appends one computed result row.
	InsertResult(ctx context.Context, result models.Result) error

	// LatestResult returns a city's newest result row.
	LatestResult(ctx context.Context, city string) (models.Result, error)

	// ResultHistory returns a city's result rows between from and to
	// inclusive, oldest first.
	ResultHistory(ctx context.Context, city string, from, to time.Time) ([]models.Result, error)

	// RecentResultAQI returns up to limit of the city's most recent
	// valid AQI values, oldest first. Used to rebuild anomaly baselines.
	RecentResultAQI(ctx context.Context, city string, limit int) ([]float64, error)

	// Health checks connectivity.
	Health(ctx context.Context) error
}
