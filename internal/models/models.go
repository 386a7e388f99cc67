package models

import (
	"time"
)

// City identifies a monitored location. Open-Meteo is queried by
// coordinates, so every city carries its own.
type City struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Reading is one hourly observation merged from the weather and
// air-quality feeds. Immutable once stored; (City, ObservedAt) is unique.
type Reading struct {
	City       string    `json:"city"`
	ObservedAt time.Time `json:"observed_at"` // always UTC

	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	O3   float64 `json:"ozone"`
	NO2  float64 `json:"nitrogen_dioxide"`
	SO2  float64 `json:"sulphur_dioxide"`
	CO   float64 `json:"carbon_monoxide"` // mg/m³

	Temperature     float64 `json:"temperature"`
	Humidity        float64 `json:"humidity"`
	DewPoint        float64 `json:"dew_point"`
	PressureMSL     float64 `json:"pressure_msl"`
	SurfacePressure float64 `json:"surface_pressure"`
	CloudCover      float64 `json:"cloud_cover"`
	WindSpeed       float64 `json:"wind_speed"`
	WindDirection   float64 `json:"wind_direction"`
}

// Category is the CPCB AQI category ladder, ordered from best to worst.
type Category string

const (
	CategoryGood         Category = "Good"
	CategorySatisfactory Category = "Satisfactory"
	CategoryModerate     Category = "Moderate"
	CategoryPoor         Category = "Poor"
	CategoryVeryPoor     Category = "Very Poor"
	CategorySevere       Category = "Severe"
)

// SubIndices holds per-pollutant AQI sub-index values. A nil entry means
// the concentration was outside the breakpoint domain (invalid, not zero).
type SubIndices struct {
	PM25 *float64 `json:"pm2_5_index"`
	PM10 *float64 `json:"pm10_index"`
	O3   *float64 `json:"ozone_index"`
	NO2  *float64 `json:"nitrogen_dioxide_index"`
	SO2  *float64 `json:"sulphur_dioxide_index"`
	CO   *float64 `json:"carbon_monoxide_index"`
}

// HorizonForecast is one point forecast for a fixed future offset.
type HorizonForecast struct {
	Horizon      int      `json:"horizon_hours"` // 1, 2 or 3
	PredictedAQI float64  `json:"predicted_aqi"`
	Category     Category `json:"category"`
}

// Result is the computed row written to aqi_results once per city per
// cycle. AQI is nil when every pollutant was out of domain.
type Result struct {
	City       string    `json:"city"`
	ObservedAt time.Time `json:"observed_at"`

	SubIndices        SubIndices `json:"sub_indices"`
	AQI               *int       `json:"aqi"`
	Category          Category   `json:"aqi_category,omitempty"`
	DominantPollutant string     `json:"dominant_pollutant,omitempty"`

	Forecasts    []HorizonForecast `json:"forecasts,omitempty"`
	ModelVersion string            `json:"model_version,omitempty"`

	// Anomaly is nil while the detector lacks history for a verdict;
	// DeviationScore is nil whenever no z-score was computed.
	Anomaly        *bool    `json:"anomaly"`
	DeviationScore *float64 `json:"deviation_score"`

	InsertedAt time.Time `json:"inserted_at"`
}
