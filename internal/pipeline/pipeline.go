// Package pipeline runs one full ingestion cycle: collect readings,
// compute AQI, forecast, detect anomalies and write result rows. Each run
// is stateless and idempotent with respect to already-stored timestamps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"aqi-pipeline/internal/anomaly"
	"aqi-pipeline/internal/aqi"
	"aqi-pipeline/internal/collector"
	"aqi-pipeline/internal/forecast"
	"aqi-pipeline/internal/models"
	"aqi-pipeline/internal/store"

	"go.uber.org/zap"
)

// Config holds the per-run tunables.
type Config struct {
	// Cities to collect each cycle. Cities already present in the store
	// keep being processed even if removed from this list.
	Cities []models.City

	// Lookback bounds how much raw history a run reads back.
	Lookback time.Duration

	// BaselinePoints is how many prior AQI values back the anomaly
	// baseline.
	BaselinePoints int
}

type Pipeline struct {
	cfg       Config
	collector *collector.Collector
	store     store.Store
	forecast  *forecast.Adapter
	detector  *anomaly.Detector
	logger    *zap.Logger
	now       func() time.Time
}

func New(cfg Config, col *collector.Collector, st store.Store, fc *forecast.Adapter, det *anomaly.Detector, logger *zap.Logger) *Pipeline {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.BaselinePoints <= 0 {
		cfg.BaselinePoints = 8
	}
	return &Pipeline{
		cfg:       cfg,
		collector: col,
		store:     st,
		forecast:  fc,
		detector:  det,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one cycle. Fetch and model problems are logged and the
// affected city is skipped or deferred; only result-write failures make
// the run itself fail, so the external scheduler sees lost data loudly.
func (p *Pipeline) Run(ctx context.Context) error {
	start := p.now()
	p.logger.Info("Starting pipeline run")

	var runErr error
	if err := p.collector.Collect(ctx, p.cfg.Cities); err != nil {
		runErr = fmt.Errorf("collect: %w", err)
	}

	since := p.now().UTC().Add(-p.cfg.Lookback)

	cities, err := p.discoverCities(ctx, since)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("discovering cities: %w", err))
	}

	processed := 0
	for _, city := range cities {
		if err := p.processCity(ctx, city, since); err != nil {
			if errors.Is(err, errNoRecentData) {
				p.logger.Info("city skipped this cycle",
					zap.String("city", city),
					zap.Error(err))
				continue
			}
			p.logger.Error("city cycle failed",
				zap.String("city", city),
				zap.Error(err))
			runErr = errors.Join(runErr, fmt.Errorf("%s: %w", city, err))
			continue
		}
		processed++
	}

	p.logger.Info("Pipeline run completed",
		zap.Int("cities", len(cities)),
		zap.Int("processed", processed),
		zap.Duration("duration", p.now().Sub(start)))
	return runErr
}

var errNoRecentData = errors.New("no recent readings")

// discoverCities unions the configured list with every city that has
// recent rows, so stored history keeps flowing even when the config
// shrinks mid-stream.
func (p *Pipeline) discoverCities(ctx context.Context, since time.Time) ([]string, error) {
	stored, err := p.store.CitiesWithRecentData(ctx, since)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(stored))
	for _, c := range stored {
		seen[c] = struct{}{}
	}
	for _, c := range p.cfg.Cities {
		seen[c.Name] = struct{}{}
	}

	cities := make([]string, 0, len(seen))
	for c := range seen {
		cities = append(cities, c)
	}
	sort.Strings(cities)
	return cities, nil
}

func (p *Pipeline) processCity(ctx context.Context, city string, since time.Time) error {
	readings, err := p.store.RecentReadings(ctx, city, since)
	if err != nil {
		return fmt.Errorf("loading readings: %w", err)
	}
	if len(readings) == 0 {
		return errNoRecentData
	}

	// AQI series over the whole lookback feeds the forecast features;
	// the newest reading yields the stored result.
	var aqiSeries []float64
	for _, r := range readings {
		if comp := aqi.Compute(r); comp.Valid {
			aqiSeries = append(aqiSeries, float64(*comp.AQI))
		}
	}

	latest := readings[len(readings)-1]
	comp := aqi.Compute(latest)
	if !comp.Valid {
		p.logger.Warn("reading outside breakpoint domain, storing invalid marker",
			zap.String("city", city),
			zap.Time("observed_at", latest.ObservedAt))
	}

	result := models.Result{
		City:              city,
		ObservedAt:        latest.ObservedAt,
		SubIndices:        comp.SubIndices,
		AQI:               comp.AQI,
		Category:          comp.Category,
		DominantPollutant: comp.DominantPollutant,
		InsertedAt:        p.now().UTC(),
	}

	forecasts, version, err := p.forecast.Forecast(city, readings, aqiSeries)
	switch {
	case err == nil:
		result.Forecasts = forecasts
		result.ModelVersion = version
	case errors.Is(err, forecast.ErrInsufficientHistory), errors.Is(err, forecast.ErrNoModel):
		p.logger.Info("forecast skipped",
			zap.String("city", city),
			zap.Error(err))
	default:
		p.logger.Warn("forecast failed",
			zap.String("city", city),
			zap.Error(err))
	}

	if comp.Valid {
		baseline, err := p.store.RecentResultAQI(ctx, city, p.cfg.BaselinePoints)
		if err != nil {
			return fmt.Errorf("loading anomaly baseline: %w", err)
		}
		verdict := p.detector.Evaluate(baseline, float64(*comp.AQI))
		result.Anomaly = verdict.Flagged
		result.DeviationScore = verdict.Deviation
		if verdict.Flagged != nil && *verdict.Flagged {
			p.logger.Warn("anomalous AQI detected",
				zap.String("city", city),
				zap.Int("aqi", *comp.AQI),
				zap.Float64p("deviation", verdict.Deviation),
				zap.String("detector_state", string(verdict.State)))
		}
	}

	if err := p.store.InsertResult(ctx, result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	p.logger.Info("result stored",
		zap.String("city", city),
		zap.Time("observed_at", result.ObservedAt),
		zap.Int("forecast_horizons", len(result.Forecasts)))
	return nil
}
