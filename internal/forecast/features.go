package forecast

import (
	"aqi-pipeline/internal/models"
)

// rollingWindow caps the rolling-mean features at 24 hourly rows, the
// window the artifacts were trained with. Shorter history still yields a
// partial-window mean.
const rollingWindow = 24

// BuildFeatures aggregates a city's reading history into the feature
// vector the models were trained on. Window means cover the trailing
// window slice; rolling means cover up to rollingWindow rows of the full
// history; calendar features come from the newest reading.
func BuildFeatures(city string, history, window []models.Reading, aqiSeries []float64) map[string]float64 {
	features := map[string]float64{}
	if len(window) == 0 {
		return features
	}

	n := float64(len(window))
	for _, r := range window {
		features["pm2_5"] += r.PM25 / n
		features["pm10"] += r.PM10 / n
		features["ozone"] += r.O3 / n
		features["nitrogen_dioxide"] += r.NO2 / n
		features["sulphur_dioxide"] += r.SO2 / n
		features["carbon_monoxide"] += r.CO / n
		features["temperature_2m"] += r.Temperature / n
		features["relative_humidity_2m"] += r.Humidity / n
		features["dew_point_2m"] += r.DewPoint / n
		features["pressure_msl"] += r.PressureMSL / n
		features["surface_pressure"] += r.SurfacePressure / n
		features["cloudcover"] += r.CloudCover / n
		features["windspeed_10m"] += r.WindSpeed / n

		features["pressure_diff"] += (r.PressureMSL - r.SurfacePressure) / n
		features["sum_gases"] += (r.CO + r.NO2 + r.SO2 + r.O3) / n

		tempRange := r.Temperature - r.DewPoint
		features["temp_range"] += tempRange / n
		features["humidity_temp_interaction"] += r.Humidity * tempRange / n

		if r.PM10 != 0 {
			features["pollutant_ratio_pm2_5_pm10"] += (r.PM25 / r.PM10) / n
		}
	}

	recent := history
	if len(recent) > rollingWindow {
		recent = recent[len(recent)-rollingWindow:]
	}
	if len(recent) > 0 {
		m := float64(len(recent))
		for _, r := range recent {
			features["rolling_mean_pm2_5_24h"] += r.PM25 / m
			features["rolling_mean_pm10_24h"] += r.PM10 / m
		}
	}

	if len(aqiSeries) > 0 {
		var sum float64
		for _, v := range aqiSeries {
			sum += v
		}
		features["rolling_mean_aqi"] = sum / float64(len(aqiSeries))
		features["latest_aqi"] = aqiSeries[len(aqiSeries)-1]
	}

	latest := window[len(window)-1].ObservedAt.UTC()
	features["hour"] = float64(latest.Hour())
	features["day_of_week"] = float64(latest.Weekday())
	features["month"] = float64(latest.Month())

	// City one-hot, matching the training column style.
	features["city_"+city] = 1

	return features
}
