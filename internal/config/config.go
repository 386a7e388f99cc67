package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"aqi-pipeline/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	Database struct {
		URL           string
		MigrationsDir string
	}

	OpenMeteo struct {
		WeatherURL   string
		PollutantURL string
	}

	Scheduler struct {
		CronSpec string
		Cities   []models.City
	}

	Pipeline struct {
		Lookback       time.Duration
		BaselinePoints int
	}

	Forecast struct {
		ModelsDir string
		MinRows   int
		Window    int
	}

	Anomaly struct {
		Threshold     float64
		MinPoints     int
		AbsoluteLimit float64
	}

	Cache struct {
		Duration time.Duration
	}

	CircuitBreaker struct {
		Timeout time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Database configuration
	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.MigrationsDir = getEnv("MIGRATIONS_DIR", "migrations")

	// Open-Meteo endpoints, overridable for tests
	cfg.OpenMeteo.WeatherURL = getEnv("OPENMETEO_WEATHER_URL", "https://api.open-meteo.com/v1/forecast")
	cfg.OpenMeteo.PollutantURL = getEnv("OPENMETEO_AIR_QUALITY_URL", "https://air-quality-api.open-meteo.com/v1/air-quality")

	// Scheduler configuration
	cfg.Scheduler.CronSpec = getEnv("PIPELINE_CRON", "0 */2 * * *")
	cities, err := parseCities(getEnv("CITIES", "Delhi:28.6139:77.2090,Mumbai:19.0760:72.8777,Hyderabad:17.3850:78.4867"))
	if err != nil {
		return nil, fmt.Errorf("parsing CITIES: %w", err)
	}
	cfg.Scheduler.Cities = cities

	// Pipeline configuration
	cfg.Pipeline.Lookback = parseDuration(getEnv("PIPELINE_LOOKBACK", "24h"))
	cfg.Pipeline.BaselinePoints = parseInt(getEnv("ANOMALY_BASELINE_POINTS", "8"))

	// Forecast configuration
	cfg.Forecast.ModelsDir = getEnv("MODELS_DIR", "models")
	cfg.Forecast.MinRows = parseInt(getEnv("FORECAST_MIN_ROWS", "3"))
	cfg.Forecast.Window = parseInt(getEnv("FEATURE_WINDOW", "6"))

	// Anomaly detector configuration
	cfg.Anomaly.Threshold = parseFloat(getEnv("ANOMALY_THRESHOLD", "2.5"))
	cfg.Anomaly.MinPoints = parseInt(getEnv("ANOMALY_MIN_POINTS", "8"))
	cfg.Anomaly.AbsoluteLimit = parseFloat(getEnv("ANOMALY_ABSOLUTE_LIMIT", "300"))

	// Cache configuration
	cfg.Cache.Duration = parseDuration(getEnv("CACHE_DURATION", "5m"))

	// Circuit breaker configuration
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Retry configuration
	cfg.Retry.MaxRetries = parseInt(getEnv("MAX_RETRIES", "3"))
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"))
	cfg.Retry.Multiplier = parseFloat(getEnv("RETRY_MULTIPLIER", "2"))

	return cfg, nil
}

// parseCities reads "Name:lat:lon,Name:lat:lon" entries.
func parseCities(value string) ([]models.City, error) {
	var cities []models.City
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("expected Name:lat:lon, got %q", entry)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("latitude of %q: %w", parts[0], err)
		}
		lon, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("longitude of %q: %w", parts[0], err)
		}
		cities = append(cities, models.City{Name: parts[0], Lat: lat, Lon: lon})
	}
	if len(cities) == 0 {
		return nil, fmt.Errorf("no cities configured")
	}
	return cities, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}
