// Package collector pulls hourly weather and pollutant series per city,
// merges them on their common timestamps and appends new rows to the store.
package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aqi-pipeline/internal/models"
	"aqi-pipeline/internal/store"
	"aqi-pipeline/pkg/client"

	"go.uber.org/zap"
)

// Open-Meteo hourly timestamps, minute resolution, implicit UTC.
const timeLayout = "2006-01-02T15:04"

// MeteoClient is the slice of the Open-Meteo client the collector needs.
type MeteoClient interface {
	FetchWeather(ctx context.Context, lat, lon float64) (client.WeatherSeries, error)
	FetchPollutants(ctx context.Context, lat, lon float64) (client.PollutantSeries, error)
}

type Collector struct {
	client MeteoClient
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

func New(meteo MeteoClient, st store.Store, logger *zap.Logger) *Collector {
	return &Collector{
		client: meteo,
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// Collect fetches and stores readings for every city. A city whose fetch
// or parse fails is logged and skipped; the batch continues. Only storage
// failures are returned, since losing fetched data is not acceptable.
func (c *Collector) Collect(ctx context.Context, cities []models.City) error {
	var storeErr error
	for _, city := range cities {
		inserted, err := c.collectCity(ctx, city)
		if err != nil {
			if inserted < 0 {
				// Fetch or parse problem; the next run retries naturally.
				c.logger.Warn("skipping city for this cycle",
					zap.String("city", city.Name),
					zap.Error(err))
				continue
			}
			c.logger.Error("storing readings failed",
				zap.String("city", city.Name),
				zap.Error(err))
			storeErr = err
			continue
		}
		c.logger.Info("readings collected",
			zap.String("city", city.Name),
			zap.Int("inserted", inserted))
	}
	return storeErr
}

// collectCity returns (-1, err) on fetch/parse failure and (n>=0, err) once
// the storage phase has been reached.
func (c *Collector) collectCity(ctx context.Context, city models.City) (int, error) {
	weather, err := c.client.FetchWeather(ctx, city.Lat, city.Lon)
	if err != nil {
		return -1, err
	}
	pollutants, err := c.client.FetchPollutants(ctx, city.Lat, city.Lon)
	if err != nil {
		return -1, err
	}

	readings, err := Merge(city.Name, weather, pollutants, c.now().UTC())
	if err != nil {
		return -1, err
	}
	if len(readings) == 0 {
		return 0, nil
	}

	inserted, err := c.store.InsertReadings(ctx, readings)
	if err != nil {
		return inserted, err
	}
	return inserted, nil
}

// Merge joins the two hourly series on timestamps present in both and not
// in the future, and normalizes units (CO arrives in µg/m³, the CPCB CO
// scale is mg/m³). Result is oldest first.
func Merge(city string, weather client.WeatherSeries, pollutants client.PollutantSeries, now time.Time) ([]models.Reading, error) {
	if err := checkParallel(len(weather.Time), len(weather.Temperature), len(weather.Humidity),
		len(weather.DewPoint), len(weather.PressureMSL), len(weather.SurfacePressure),
		len(weather.CloudCover), len(weather.WindSpeed), len(weather.WindDirection)); err != nil {
		return nil, fmt.Errorf("malformed weather series: %w", err)
	}
	if err := checkParallel(len(pollutants.Time), len(pollutants.PM10), len(pollutants.PM25),
		len(pollutants.CO), len(pollutants.NO2), len(pollutants.SO2), len(pollutants.O3)); err != nil {
		return nil, fmt.Errorf("malformed pollutant series: %w", err)
	}

	pollutantIdx := make(map[string]int, len(pollutants.Time))
	for i, ts := range pollutants.Time {
		pollutantIdx[ts] = i
	}

	var readings []models.Reading
	for wi, ts := range weather.Time {
		pi, ok := pollutantIdx[ts]
		if !ok {
			continue
		}

		observedAt, err := time.ParseInLocation(timeLayout, ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		if observedAt.After(now) {
			continue
		}

		readings = append(readings, models.Reading{
			City:            city,
			ObservedAt:      observedAt,
			PM25:            pollutants.PM25[pi],
			PM10:            pollutants.PM10[pi],
			O3:              pollutants.O3[pi],
			NO2:             pollutants.NO2[pi],
			SO2:             pollutants.SO2[pi],
			CO:              pollutants.CO[pi] / 1000.0,
			Temperature:     weather.Temperature[wi],
			Humidity:        weather.Humidity[wi],
			DewPoint:        weather.DewPoint[wi],
			PressureMSL:     weather.PressureMSL[wi],
			SurfacePressure: weather.SurfacePressure[wi],
			CloudCover:      weather.CloudCover[wi],
			WindSpeed:       weather.WindSpeed[wi],
			WindDirection:   weather.WindDirection[wi],
		})
	}

	sort.Slice(readings, func(i, j int) bool {
		return readings[i].ObservedAt.Before(readings[j].ObservedAt)
	})
	return readings, nil
}

func checkParallel(timeLen int, lens ...int) error {
	for _, l := range lens {
		if l != timeLen {
			return fmt.Errorf("field length %d does not match %d timestamps", l, timeLen)
		}
	}
	return nil
}
