package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultWeatherURL   = "https://api.open-meteo.com/v1/forecast"
	defaultPollutantURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
)

var weatherHourlyFields = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"dew_point_2m",
	"pressure_msl",
	"surface_pressure",
	"cloudcover",
	"windspeed_10m",
	"winddirection_10m",
}

var pollutantHourlyFields = []string{
	"pm10",
	"pm2_5",
	"carbon_monoxide",
	"nitrogen_dioxide",
	"sulphur_dioxide",
	"ozone",
}

// WeatherSeries holds the hourly weather arrays returned by Open-Meteo.
// All slices are parallel to Time.
type WeatherSeries struct {
	Time            []string  `json:"time"`
	Temperature     []float64 `json:"temperature_2m"`
	Humidity        []float64 `json:"relative_humidity_2m"`
	DewPoint        []float64 `json:"dew_point_2m"`
	PressureMSL     []float64 `json:"pressure_msl"`
	SurfacePressure []float64 `json:"surface_pressure"`
	CloudCover      []float64 `json:"cloudcover"`
	WindSpeed       []float64 `json:"windspeed_10m"`
	WindDirection   []float64 `json:"winddirection_10m"`
}

// PollutantSeries holds the hourly pollutant arrays, parallel to Time.
// Concentrations are µg/m³ as delivered by the API.
type PollutantSeries struct {
	Time []string  `json:"time"`
	PM10 []float64 `json:"pm10"`
	PM25 []float64 `json:"pm2_5"`
	CO   []float64 `json:"carbon_monoxide"`
	NO2  []float64 `json:"nitrogen_dioxide"`
	SO2  []float64 `json:"sulphur_dioxide"`
	O3   []float64 `json:"ozone"`
}

// OpenMeteoClient fetches hourly weather and air-quality series. Open-Meteo
// requires no API key; the two products live on separate hosts.
type OpenMeteoClient struct {
	*BaseClient
	weatherURL   string
	pollutantURL string
}

func NewOpenMeteoClient(config ClientConfig, logger *zap.Logger) *OpenMeteoClient {
	return &OpenMeteoClient{
		BaseClient:   NewBaseClient("openmeteo", config, logger),
		weatherURL:   defaultWeatherURL,
		pollutantURL: defaultPollutantURL,
	}
}

// NewOpenMeteoClientWithURLs exists for tests that point the client at a
// local httptest server.
func NewOpenMeteoClientWithURLs(weatherURL, pollutantURL string, config ClientConfig, logger *zap.Logger) *OpenMeteoClient {
	c := NewOpenMeteoClient(config, logger)
	c.weatherURL = weatherURL
	c.pollutantURL = pollutantURL
	return c
}

// FetchWeather returns the trailing-day hourly weather series for the
// coordinates.
func (c *OpenMeteoClient) FetchWeather(ctx context.Context, lat, lon float64) (WeatherSeries, error) {
	u := c.buildURL(c.weatherURL, lat, lon, weatherHourlyFields)

	data, err := c.GetWithRetry(ctx, u)
	if err != nil {
		return WeatherSeries{}, fmt.Errorf("failed to fetch weather: %w", err)
	}

	var response struct {
		Hourly WeatherSeries `json:"hourly"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return WeatherSeries{}, fmt.Errorf("failed to parse weather response: %w", err)
	}
	return response.Hourly, nil
}

// FetchPollutants returns the trailing-day hourly pollutant series for the
// coordinates.
func (c *OpenMeteoClient) FetchPollutants(ctx context.Context, lat, lon float64) (PollutantSeries, error) {
	u := c.buildURL(c.pollutantURL, lat, lon, pollutantHourlyFields)

	data, err := c.GetWithRetry(ctx, u)
	if err != nil {
		return PollutantSeries{}, fmt.Errorf("failed to fetch pollutants: %w", err)
	}

	var response struct {
		Hourly PollutantSeries `json:"hourly"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return PollutantSeries{}, fmt.Errorf("failed to parse pollutant response: %w", err)
	}
	return response.Hourly, nil
}

func (c *OpenMeteoClient) buildURL(base string, lat, lon float64, fields []string) string {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%.4f", lat))
	values.Set("longitude", fmt.Sprintf("%.4f", lon))
	values.Set("hourly", strings.Join(fields, ","))
	values.Set("past_days", "1")
	values.Set("forecast_days", "1")
	values.Set("timezone", "UTC")
	return base + "?" + values.Encode()
}
