package forecast

import (
	"errors"
	"fmt"
	"sync"

	"aqi-pipeline/internal/aqi"
	"aqi-pipeline/internal/models"

	"go.uber.org/zap"
)

// ErrInsufficientHistory means the city's history is shorter than the
// adapter requires. Forecasting is deferred to a later cycle, not failed.
var ErrInsufficientHistory = errors.New("forecast: insufficient history for window")

// ErrNoModel means no artifact produced a prediction for any horizon.
var ErrNoModel = errors.New("forecast: no usable model artifact")

// Horizons are the fixed future offsets forecast each cycle, in hours.
var Horizons = []int{1, 2, 3}

// Config holds the adapter tunables.
type Config struct {
	ModelsDir string
	// MinRows is the minimum history length required before the adapter
	// will score at all.
	MinRows int
	// Window is how many trailing rows feed the window-mean features.
	Window int
}

// Adapter turns a city's reading history into one predicted AQI per
// horizon. Loaded artifacts are cached for the adapter's lifetime; a swap
// on disk takes effect on the next process start.
type Adapter struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]Scorer
}

func NewAdapter(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.MinRows <= 0 {
		cfg.MinRows = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 6
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]Scorer),
	}
}

// Forecast scores every configured horizon for the city. History shorter
// than MinRows returns ErrInsufficientHistory; horizons whose artifact is
// missing or fails to score are skipped with a log line, and ErrNoModel is
// returned only when no horizon produced a prediction. History is oldest
// first; the trailing Window rows feed the window-mean features while the
// full history backs the rolling means.
func (a *Adapter) Forecast(city string, history []models.Reading, aqiSeries []float64) ([]models.HorizonForecast, string, error) {
	if len(history) < a.cfg.MinRows {
		return nil, "", fmt.Errorf("%w: have %d rows, need %d", ErrInsufficientHistory, len(history), a.cfg.MinRows)
	}

	window := history
	if len(window) > a.cfg.Window {
		window = window[len(window)-a.cfg.Window:]
	}
	features := BuildFeatures(city, history, window, aqiSeries)

	var (
		forecasts []models.HorizonForecast
		version   string
	)
	for _, horizon := range Horizons {
		model, err := a.model(city, horizon)
		if err != nil {
			a.logger.Info("no forecast model for horizon",
				zap.String("city", city),
				zap.Int("horizon_hours", horizon),
				zap.Error(err))
			continue
		}

		value, err := model.Score(features)
		if err != nil {
			a.logger.Warn("model scoring failed",
				zap.String("city", city),
				zap.Int("horizon_hours", horizon),
				zap.Error(err))
			continue
		}
		if value < 0 {
			value = 0
		}

		forecasts = append(forecasts, models.HorizonForecast{
			Horizon:      horizon,
			PredictedAQI: value,
			Category:     aqi.Categorize(value),
		})
		version = model.Version()
	}

	if len(forecasts) == 0 {
		return nil, "", ErrNoModel
	}
	return forecasts, version, nil
}

func (a *Adapter) model(city string, horizon int) (Scorer, error) {
	key := fmt.Sprintf("%s/h%d", city, horizon)

	a.mu.Lock()
	defer a.mu.Unlock()

	if m, ok := a.cache[key]; ok {
		return m, nil
	}
	m, err := LoadModel(a.cfg.ModelsDir, city, horizon)
	if err != nil {
		return nil, err
	}
	a.logger.Info("model artifact loaded",
		zap.String("city", city),
		zap.Int("horizon_hours", horizon),
		zap.String("version", m.Version()),
		zap.Strings("features", m.Features()))
	a.cache[key] = m
	return m, nil
}
