package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aqi-pipeline/internal/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeModel(t *testing.T, dir, name string, m map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshaling model: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("writing model: %v", err)
	}
}

func testWindow(n int) []models.Reading {
	base := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	window := make([]models.Reading, n)
	for i := range window {
		window[i] = models.Reading{
			City:       "Delhi",
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
			PM25:       80,
			PM10:       120,
			O3:         30,
			NO2:        40,
			SO2:        10,
			CO:         1.2,
		}
	}
	return window
}

func TestBuildFeaturesRollingMeans(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	history := make([]models.Reading, 30)
	for i := range history {
		history[i] = models.Reading{
			City:       "Delhi",
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
			PM25:       float64(i),
			PM10:       float64(2 * i),
		}
	}
	window := history[len(history)-6:]

	features := BuildFeatures("Delhi", history, window, []float64{100})

	// Rolling means cover the last 24 rows (indices 6..29), not the
	// 6-row window.
	if got := features["rolling_mean_pm2_5_24h"]; got != 17.5 {
		t.Errorf("rolling_mean_pm2_5_24h: expected 17.5, got %v", got)
	}
	if got := features["rolling_mean_pm10_24h"]; got != 35 {
		t.Errorf("rolling_mean_pm10_24h: expected 35, got %v", got)
	}
	if got := features["pm2_5"]; got != 26.5 {
		t.Errorf("pm2_5 window mean: expected 26.5, got %v", got)
	}
}

func TestBuildFeaturesRollingMeansShortHistory(t *testing.T) {
	history := testWindow(3)
	features := BuildFeatures("Delhi", history, history, nil)

	// Fewer than 24 rows average over what is there.
	if got := features["rolling_mean_pm2_5_24h"]; got != 80 {
		t.Errorf("rolling_mean_pm2_5_24h: expected 80, got %v", got)
	}
	if got := features["rolling_mean_pm10_24h"]; got != 120 {
		t.Errorf("rolling_mean_pm10_24h: expected 120, got %v", got)
	}
}

func TestLoadModelPrefersCitySpecific(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "aqi_pred_h1.json", map[string]interface{}{
		"version": "generic-v1", "horizon_hours": 1, "bias": 0.0,
		"weights": map[string]float64{"latest_aqi": 1},
	})
	writeModel(t, dir, "delhi_h1.json", map[string]interface{}{
		"version": "delhi-v2", "horizon_hours": 1, "bias": 0.0,
		"weights": map[string]float64{"latest_aqi": 1},
	})

	m, err := LoadModel(dir, "Delhi", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Version() != "delhi-v2" {
		t.Fatalf("expected city-specific model, got %s", m.Version())
	}

	m, err = LoadModel(dir, "Mumbai", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Version() != "generic-v1" {
		t.Fatalf("expected generic fallback, got %s", m.Version())
	}
}

func TestLoadModelRequiresVersion(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "aqi_pred_h1.json", map[string]interface{}{
		"horizon_hours": 1, "bias": 0.0,
		"weights": map[string]float64{"latest_aqi": 1},
	})

	if _, err := LoadModel(dir, "Delhi", 1); err == nil {
		t.Fatal("expected an error for a versionless artifact")
	}
}

func TestForecastInsufficientHistory(t *testing.T) {
	a := NewAdapter(Config{ModelsDir: t.TempDir(), MinRows: 3}, zap.NewNop())

	_, _, err := a.Forecast("Delhi", testWindow(2), []float64{100, 105})
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestForecastNoModels(t *testing.T) {
	a := NewAdapter(Config{ModelsDir: t.TempDir(), MinRows: 3}, zap.NewNop())

	_, _, err := a.Forecast("Delhi", testWindow(6), []float64{100, 105, 110})
	if !errors.Is(err, ErrNoModel) {
		t.Fatalf("expected ErrNoModel, got %v", err)
	}
}

func TestForecastScoresEveryHorizon(t *testing.T) {
	dir := t.TempDir()
	for _, h := range Horizons {
		writeModel(t, dir, fmt.Sprintf("aqi_pred_h%d.json", h), map[string]interface{}{
			"version":       "v1.0.0",
			"horizon_hours": h,
			"bias":          float64(h),
			"weights":       map[string]float64{"latest_aqi": 1},
		})
	}

	a := NewAdapter(Config{ModelsDir: dir, MinRows: 3}, zap.NewNop())
	forecasts, version, err := a.Forecast("Delhi", testWindow(6), []float64{100, 102, 104})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != "v1.0.0" {
		t.Fatalf("expected version v1.0.0, got %s", version)
	}
	if len(forecasts) != len(Horizons) {
		t.Fatalf("expected %d forecasts, got %d", len(Horizons), len(forecasts))
	}

	// latest_aqi is 104, so each horizon predicts 104 + bias.
	for i, f := range forecasts {
		want := 104 + float64(Horizons[i])
		if f.Horizon != Horizons[i] {
			t.Errorf("forecast %d: expected horizon %d, got %d", i, Horizons[i], f.Horizon)
		}
		if f.PredictedAQI != want {
			t.Errorf("horizon %d: expected %v, got %v", f.Horizon, want, f.PredictedAQI)
		}
	}
}

func TestModelLoadLogsFeatureList(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "aqi_pred_h1.json", map[string]interface{}{
		"version":       "v1.0.0",
		"horizon_hours": 1,
		"bias":          0.0,
		"weights":       map[string]float64{"latest_aqi": 1, "pm2_5": 0.5},
	})

	core, logs := observer.New(zap.InfoLevel)
	a := NewAdapter(Config{ModelsDir: dir, MinRows: 3}, zap.New(core))

	if _, _, err := a.Forecast("Delhi", testWindow(4), []float64{40, 42, 44}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := logs.FilterMessage("model artifact loaded").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 load log entry, got %d", len(entries))
	}
	features, ok := entries[0].ContextMap()["features"].([]interface{})
	if !ok || len(features) != 2 {
		t.Fatalf("expected the artifact's 2 feature names in the log, got %v",
			entries[0].ContextMap()["features"])
	}
}

func TestForecastClampsNegativePredictions(t *testing.T) {
	dir := t.TempDir()
	writeModel(t, dir, "aqi_pred_h1.json", map[string]interface{}{
		"version":       "v1.0.0",
		"horizon_hours": 1,
		"bias":          -500.0,
		"weights":       map[string]float64{"latest_aqi": 1},
	})

	a := NewAdapter(Config{ModelsDir: dir, MinRows: 3}, zap.NewNop())
	forecasts, _, err := a.Forecast("Delhi", testWindow(4), []float64{40, 42, 44})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forecasts) != 1 {
		t.Fatalf("expected 1 forecast, got %d", len(forecasts))
	}
	if forecasts[0].PredictedAQI != 0 {
		t.Fatalf("expected negative prediction clamped to 0, got %v", forecasts[0].PredictedAQI)
	}
	if forecasts[0].Category != models.CategoryGood {
		t.Fatalf("expected category Good, got %s", forecasts[0].Category)
	}
}
