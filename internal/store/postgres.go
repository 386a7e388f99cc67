package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aqi-pipeline/internal/models"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// RunMigrations executes every .sql file in dir in lexical order.
func (s *Postgres) RunMigrations(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("postgres: reading migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("postgres: reading migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("postgres: executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Postgres) InsertReadings(ctx context.Context, readings []models.Reading) (int, error) {
	query := `
		INSERT INTO air_quality_readings (
			city, observed_at, pm2_5, pm10, ozone, nitrogen_dioxide,
			sulphur_dioxide, carbon_monoxide, temperature, humidity,
			dew_point, pressure_msl, surface_pressure, cloud_cover,
			wind_speed, wind_direction
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (city, observed_at) DO NOTHING
	`

	inserted := 0
	for _, r := range readings {
		tag, err := s.pool.Exec(ctx, query,
			r.City, r.ObservedAt.UTC(), r.PM25, r.PM10, r.O3, r.NO2,
			r.SO2, r.CO, r.Temperature, r.Humidity,
			r.DewPoint, r.PressureMSL, r.SurfacePressure, r.CloudCover,
			r.WindSpeed, r.WindDirection,
		)
		if err != nil {
			return inserted, fmt.Errorf("postgres: failed to insert reading: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const readingColumns = `
	city, observed_at, pm2_5, pm10, ozone, nitrogen_dioxide,
	sulphur_dioxide, carbon_monoxide, temperature, humidity,
	dew_point, pressure_msl, surface_pressure, cloud_cover,
	wind_speed, wind_direction
`

func scanReading(row pgx.Row) (models.Reading, error) {
	var r models.Reading
	err := row.Scan(
		&r.City, &r.ObservedAt, &r.PM25, &r.PM10, &r.O3, &r.NO2,
		&r.SO2, &r.CO, &r.Temperature, &r.Humidity,
		&r.DewPoint, &r.PressureMSL, &r.SurfacePressure, &r.CloudCover,
		&r.WindSpeed, &r.WindDirection,
	)
	return r, err
}

func (s *Postgres) RecentReadings(ctx context.Context, city string, since time.Time) ([]models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM air_quality_readings
		WHERE city = $1 AND observed_at >= $2
		ORDER BY observed_at ASC
	`

	rows, err := s.pool.Query(ctx, query, city, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *Postgres) LatestReading(ctx context.Context, city string) (models.Reading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM air_quality_readings
		WHERE city = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`

	r, err := scanReading(s.pool.QueryRow(ctx, query, city))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Reading{}, ErrNotFound
	}
	if err != nil {
		return models.Reading{}, fmt.Errorf("postgres: failed to query latest reading: %w", err)
	}
	return r, nil
}

func (s *Postgres) CitiesWithRecentData(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT city
		FROM air_quality_readings
		WHERE observed_at >= $1
		ORDER BY city
	`

	rows, err := s.pool.Query(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query cities: %w", err)
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan city: %w", err)
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

func (s *Postgres) InsertResult(ctx context.Context, result models.Result) error {
	query := `
		INSERT INTO aqi_results (
			city, observed_at,
			pm2_5_index, pm10_index, ozone_index, nitrogen_dioxide_index,
			sulphur_dioxide_index, carbon_monoxide_index,
			aqi, aqi_category, dominant_pollutant,
			aqi_1h_pred, aqi_1h_pred_category,
			aqi_2h_pred, aqi_2h_pred_category,
			aqi_3h_pred, aqi_3h_pred_category,
			model_version, anomaly, deviation_score, inserted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (city, observed_at) DO NOTHING
	`

	preds := predictionColumns(result.Forecasts)

	var category, dominant *string
	if result.Category != "" {
		c := string(result.Category)
		category = &c
	}
	if result.DominantPollutant != "" {
		dominant = &result.DominantPollutant
	}
	var version *string
	if result.ModelVersion != "" {
		version = &result.ModelVersion
	}

	_, err := s.pool.Exec(ctx, query,
		result.City, result.ObservedAt.UTC(),
		result.SubIndices.PM25, result.SubIndices.PM10, result.SubIndices.O3,
		result.SubIndices.NO2, result.SubIndices.SO2, result.SubIndices.CO,
		result.AQI, category, dominant,
		preds[0].value, preds[0].category,
		preds[1].value, preds[1].category,
		preds[2].value, preds[2].category,
		version, result.Anomaly, result.DeviationScore, result.InsertedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert result: %w", err)
	}
	return nil
}

const resultColumns = `
	city, observed_at,
	pm2_5_index, pm10_index, ozone_index, nitrogen_dioxide_index,
	sulphur_dioxide_index, carbon_monoxide_index,
	aqi, aqi_category, dominant_pollutant,
	aqi_1h_pred, aqi_1h_pred_category,
	aqi_2h_pred, aqi_2h_pred_category,
	aqi_3h_pred, aqi_3h_pred_category,
	model_version, anomaly, deviation_score, inserted_at
`

func scanResult(row pgx.Row) (models.Result, error) {
	var (
		r        models.Result
		category *string
		dominant *string
		version  *string
		preds    [3]prediction
	)

	err := row.Scan(
		&r.City, &r.ObservedAt,
		&r.SubIndices.PM25, &r.SubIndices.PM10, &r.SubIndices.O3,
		&r.SubIndices.NO2, &r.SubIndices.SO2, &r.SubIndices.CO,
		&r.AQI, &category, &dominant,
		&preds[0].value, &preds[0].category,
		&preds[1].value, &preds[1].category,
		&preds[2].value, &preds[2].category,
		&version, &r.Anomaly, &r.DeviationScore, &r.InsertedAt,
	)
	if err != nil {
		return models.Result{}, err
	}

	if category != nil {
		r.Category = models.Category(*category)
	}
	if dominant != nil {
		r.DominantPollutant = *dominant
	}
	if version != nil {
		r.ModelVersion = *version
	}
	for i, p := range preds {
		if p.value == nil {
			continue
		}
		forecast := models.HorizonForecast{
			Horizon:      i + 1,
			PredictedAQI: *p.value,
		}
		if p.category != nil {
			forecast.Category = models.Category(*p.category)
		}
		r.Forecasts = append(r.Forecasts, forecast)
	}
	return r, nil
}

func (s *Postgres) LatestResult(ctx context.Context, city string) (models.Result, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM aqi_results
		WHERE city = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`

	r, err := scanResult(s.pool.QueryRow(ctx, query, city))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Result{}, ErrNotFound
	}
	if err != nil {
		return models.Result{}, fmt.Errorf("postgres: failed to query latest result: %w", err)
	}
	return r, nil
}

func (s *Postgres) ResultHistory(ctx context.Context, city string, from, to time.Time) ([]models.Result, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM aqi_results
		WHERE city = $1 AND observed_at BETWEEN $2 AND $3
		ORDER BY observed_at ASC
	`

	rows, err := s.pool.Query(ctx, query, city, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query result history: %w", err)
	}
	defer rows.Close()

	var results []models.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Postgres) RecentResultAQI(ctx context.Context, city string, limit int) ([]float64, error) {
	query := `
		SELECT aqi
		FROM (
			SELECT aqi, observed_at
			FROM aqi_results
			WHERE city = $1 AND aqi IS NOT NULL
			ORDER BY observed_at DESC
			LIMIT $2
		) recent
		ORDER BY observed_at ASC
	`

	rows, err := s.pool.Query(ctx, query, city, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query recent AQI: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan AQI: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Postgres) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

// prediction pairs the nullable value/category columns for one horizon.
type prediction struct {
	value    *float64
	category *string
}

func predictionColumns(forecasts []models.HorizonForecast) [3]prediction {
	var preds [3]prediction
	for _, f := range forecasts {
		if f.Horizon < 1 || f.Horizon > 3 {
			continue
		}
		v := f.PredictedAQI
		c := string(f.Category)
		preds[f.Horizon-1] = prediction{value: &v, category: &c}
	}
	return preds
}
