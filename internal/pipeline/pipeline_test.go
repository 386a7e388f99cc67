package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aqi-pipeline/internal/anomaly"
	"aqi-pipeline/internal/collector"
	"aqi-pipeline/internal/forecast"
	"aqi-pipeline/internal/models"
	"aqi-pipeline/internal/store"
	"aqi-pipeline/pkg/client"

	"go.uber.org/zap"
)

const hourlyLayout = "2006-01-02T15:04"

type fakeMeteo struct {
	weather    client.WeatherSeries
	pollutants client.PollutantSeries
}

func (f *fakeMeteo) FetchWeather(context.Context, float64, float64) (client.WeatherSeries, error) {
	return f.weather, nil
}

func (f *fakeMeteo) FetchPollutants(context.Context, float64, float64) (client.PollutantSeries, error) {
	return f.pollutants, nil
}

// hourlySeries builds n hourly rows ending one hour before now.
func hourlySeries(n int) (client.WeatherSeries, client.PollutantSeries) {
	end := time.Now().UTC().Truncate(time.Hour)
	times := make([]string, n)
	for i := range times {
		times[i] = end.Add(time.Duration(i-n) * time.Hour).Format(hourlyLayout)
	}

	fill := func(v float64) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = v
		}
		return s
	}

	weather := client.WeatherSeries{
		Time:            times,
		Temperature:     fill(25),
		Humidity:        fill(60),
		DewPoint:        fill(15),
		PressureMSL:     fill(1010),
		SurfacePressure: fill(1005),
		CloudCover:      fill(40),
		WindSpeed:       fill(10),
		WindDirection:   fill(180),
	}
	pollutants := client.PollutantSeries{
		Time: times,
		PM10: fill(90),
		PM25: fill(55),
		CO:   fill(800),
		NO2:  fill(30),
		SO2:  fill(12),
		O3:   fill(45),
	}
	return weather, pollutants
}

func writeGenericModels(t *testing.T, dir string) {
	t.Helper()
	for _, h := range forecast.Horizons {
		artifact := map[string]interface{}{
			"version":       "test-v1",
			"horizon_hours": h,
			"bias":          float64(h),
			"weights":       map[string]float64{"latest_aqi": 1},
		}
		data, err := json.Marshal(artifact)
		if err != nil {
			t.Fatalf("marshaling artifact: %v", err)
		}
		name := filepath.Join(dir, "aqi_pred_h"+string(rune('0'+h))+".json")
		if err := os.WriteFile(name, data, 0o644); err != nil {
			t.Fatalf("writing artifact: %v", err)
		}
	}
}

func newTestPipeline(t *testing.T, st store.Store, rows int) *Pipeline {
	t.Helper()

	weather, pollutants := hourlySeries(rows)
	meteo := &fakeMeteo{weather: weather, pollutants: pollutants}

	modelsDir := t.TempDir()
	writeGenericModels(t, modelsDir)

	logger := zap.NewNop()
	return New(
		Config{
			Cities: []models.City{{Name: "Delhi", Lat: 28.6139, Lon: 77.2090}},
		},
		collector.New(meteo, st, logger),
		st,
		forecast.NewAdapter(forecast.Config{ModelsDir: modelsDir, MinRows: 3}, logger),
		anomaly.New(anomaly.Config{}, logger),
		logger,
	)
}

func TestRunProducesResult(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(t, st, 6)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := st.LatestResult(context.Background(), "Delhi")
	if err != nil {
		t.Fatalf("expected a stored result: %v", err)
	}
	if result.AQI == nil {
		t.Fatal("expected a computed AQI")
	}
	if result.DominantPollutant == "" {
		t.Fatal("expected a dominant pollutant")
	}
	if len(result.Forecasts) != len(forecast.Horizons) {
		t.Fatalf("expected %d forecasts, got %d", len(forecast.Horizons), len(result.Forecasts))
	}
	if result.ModelVersion != "test-v1" {
		t.Fatalf("expected model version test-v1, got %s", result.ModelVersion)
	}
	// First ever result, so the anomaly baseline is empty.
	if result.Anomaly != nil {
		t.Fatalf("expected no anomaly verdict on the first result, got %v", *result.Anomaly)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(t, st, 6)

	for i := 0; i < 3; i++ {
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}

	from := time.Now().UTC().Add(-48 * time.Hour)
	results, err := st.ResultHistory(context.Background(), "Delhi", from, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected a single result after re-runs, got %d", len(results))
	}

	readings, err := st.RecentReadings(context.Background(), "Delhi", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 6 {
		t.Fatalf("expected 6 readings after re-runs, got %d", len(readings))
	}
}

func TestRunProcessesStoredCitiesWithoutConfig(t *testing.T) {
	st := store.NewMemory()
	p := newTestPipeline(t, st, 6)

	// Seed history for a city no longer configured.
	now := time.Now().UTC().Truncate(time.Hour)
	var readings []models.Reading
	for i := 0; i < 4; i++ {
		readings = append(readings, models.Reading{
			City:       "Chennai",
			ObservedAt: now.Add(time.Duration(i-5) * time.Hour),
			PM25:       40, PM10: 70, O3: 30, NO2: 20, SO2: 8, CO: 0.6,
		})
	}
	if _, err := st.InsertReadings(context.Background(), readings); err != nil {
		t.Fatalf("seeding readings: %v", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := st.LatestResult(context.Background(), "Chennai"); err != nil {
		t.Fatalf("expected a result for the stored city: %v", err)
	}
}
