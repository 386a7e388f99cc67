package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"aqi-pipeline/internal/models"
	"aqi-pipeline/internal/store"
	"aqi-pipeline/pkg/client"

	"go.uber.org/zap"
)

func weatherSeries(times []string) client.WeatherSeries {
	n := len(times)
	fill := func(v float64) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = v
		}
		return s
	}
	return client.WeatherSeries{
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
}

func pollutantSeries(times []string) client.PollutantSeries {
	n := len(times)
	fill := func(v float64) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = v
		}
		return s
	}
	return client.PollutantSeries{
		Time: times,
		PM10: fill(90),
		PM25: fill(55),
		CO:   fill(800), // µg/m³ on the wire
		NO2:  fill(30),
		SO2:  fill(12),
		O3:   fill(45),
	}
}

func TestMergeJoinsOnCommonTimestamps(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	weather := weatherSeries([]string{"2025-03-10T09:00", "2025-03-10T10:00", "2025-03-10T11:00"})
	pollutants := pollutantSeries([]string{"2025-03-10T10:00", "2025-03-10T11:00", "2025-03-10T12:00"})

	readings, err := Merge("Delhi", weather, pollutants, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 merged readings, got %d", len(readings))
	}

	want := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	if !readings[0].ObservedAt.Equal(want) {
		t.Fatalf("expected first reading at %v, got %v", want, readings[0].ObservedAt)
	}
	if !readings[1].ObservedAt.After(readings[0].ObservedAt) {
		t.Fatal("expected readings ordered oldest first")
	}
}

func TestMergeSkipsFutureRows(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)
	times := []string{"2025-03-10T10:00", "2025-03-10T11:00", "2025-03-10T12:00"}

	readings, err := Merge("Delhi", weatherSeries(times), pollutantSeries(times), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("expected only the past reading, got %d", len(readings))
	}
}

func TestMergeConvertsCOToMilligrams(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	times := []string{"2025-03-10T10:00"}

	readings, err := Merge("Delhi", weatherSeries(times), pollutantSeries(times), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if readings[0].CO != 0.8 {
		t.Fatalf("expected CO 0.8 mg/m³, got %v", readings[0].CO)
	}
}

func TestMergeRejectsRaggedSeries(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	times := []string{"2025-03-10T10:00", "2025-03-10T11:00"}

	weather := weatherSeries(times)
	weather.Temperature = weather.Temperature[:1]

	if _, err := Merge("Delhi", weather, pollutantSeries(times), now); err == nil {
		t.Fatal("expected an error for ragged weather series")
	}
}

type fakeMeteo struct {
	weather    map[string]client.WeatherSeries
	pollutants map[string]client.PollutantSeries
	failFor    map[string]error
}

func coordKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

func (f *fakeMeteo) FetchWeather(_ context.Context, lat, lon float64) (client.WeatherSeries, error) {
	if err := f.failFor[coordKey(lat, lon)]; err != nil {
		return client.WeatherSeries{}, err
	}
	return f.weather[coordKey(lat, lon)], nil
}

func (f *fakeMeteo) FetchPollutants(_ context.Context, lat, lon float64) (client.PollutantSeries, error) {
	return f.pollutants[coordKey(lat, lon)], nil
}

func TestCollectSkipsFailingCity(t *testing.T) {
	delhi := models.City{Name: "Delhi", Lat: 28.6139, Lon: 77.2090}
	mumbai := models.City{Name: "Mumbai", Lat: 19.0760, Lon: 72.8777}
	times := []string{"2025-03-10T10:00", "2025-03-10T11:00"}

	meteo := &fakeMeteo{
		weather:    map[string]client.WeatherSeries{coordKey(mumbai.Lat, mumbai.Lon): weatherSeries(times)},
		pollutants: map[string]client.PollutantSeries{coordKey(mumbai.Lat, mumbai.Lon): pollutantSeries(times)},
		failFor:    map[string]error{coordKey(delhi.Lat, delhi.Lon): errors.New("upstream 503")},
	}

	st := store.NewMemory()
	c := New(meteo, st, zap.NewNop())

	if err := c.Collect(context.Background(), []models.City{delhi, mumbai}); err != nil {
		t.Fatalf("fetch failures must not fail the batch: %v", err)
	}

	since := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	readings, err := st.RecentReadings(context.Background(), "Mumbai", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected Mumbai's readings stored, got %d", len(readings))
	}

	readings, _ = st.RecentReadings(context.Background(), "Delhi", since)
	if len(readings) != 0 {
		t.Fatalf("expected no Delhi readings, got %d", len(readings))
	}
}

func TestCollectIsIdempotent(t *testing.T) {
	delhi := models.City{Name: "Delhi", Lat: 28.6139, Lon: 77.2090}
	times := []string{"2025-03-10T10:00", "2025-03-10T11:00"}

	meteo := &fakeMeteo{
		weather:    map[string]client.WeatherSeries{coordKey(delhi.Lat, delhi.Lon): weatherSeries(times)},
		pollutants: map[string]client.PollutantSeries{coordKey(delhi.Lat, delhi.Lon): pollutantSeries(times)},
	}

	st := store.NewMemory()
	c := New(meteo, st, zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := c.Collect(context.Background(), []models.City{delhi}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	since := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	readings, err := st.RecentReadings(context.Background(), "Delhi", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("expected 2 readings after a re-run, got %d", len(readings))
	}
}
