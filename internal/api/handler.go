package api

import (
	"errors"
	"time"

	"aqi-pipeline/internal/aqi"
	"aqi-pipeline/internal/models"
	"aqi-pipeline/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler struct {
	store    store.Store
	cache    *ResultCache
	cities   []models.City
	logger   *zap.Logger
	validate *validator.Validate
}

func NewHandler(st store.Store, cache *ResultCache, cities []models.City, logger *zap.Logger) *Handler {
	return &Handler{
		store:    st,
		cache:    cache,
		cities:   cities,
		logger:   logger,
		validate: validator.New(),
	}
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	status := "healthy"
	dbStatus := "up"
	if err := h.store.Health(c.Context()); err != nil {
		h.logger.Error("Health check failed", zap.Error(err))
		status = "degraded"
		dbStatus = "down"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).String(),
	})
}

// GetCities handles GET /api/v1/cities
func (h *Handler) GetCities(c *fiber.Ctx) error {
	since := time.Now().UTC().Add(-24 * time.Hour)
	active, err := h.store.CitiesWithRecentData(c.Context(), since)
	if err != nil {
		h.logger.Error("Failed to list cities", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list cities",
		})
	}

	activeSet := make(map[string]bool, len(active))
	for _, name := range active {
		activeSet[name] = true
	}

	type cityStatus struct {
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	out := make([]cityStatus, 0, len(h.cities))
	seen := make(map[string]bool, len(h.cities))
	for _, city := range h.cities {
		out = append(out, cityStatus{Name: city.Name, Active: activeSet[city.Name]})
		seen[city.Name] = true
	}
	for _, name := range active {
		if !seen[name] {
			out = append(out, cityStatus{Name: name, Active: true})
		}
	}

	return c.JSON(fiber.Map{
		"cities": out,
		"count":  len(out),
	})
}

// GetLatest handles GET /api/v1/aqi/:city
func (h *Handler) GetLatest(c *fiber.Ctx) error {
	city := c.Params("city")

	if result, ok := h.cache.Get(city); ok {
		return c.JSON(result)
	}

	result, err := h.store.LatestResult(c.Context(), city)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No AQI data for city",
				"city":  city,
			})
		}
		h.logger.Error("Failed to load latest result",
			zap.String("city", city),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load AQI data",
		})
	}

	h.cache.Set(city, result)
	return c.JSON(result)
}

type historyQuery struct {
	Hours int `query:"hours" validate:"min=1,max=168"`
}

// GetHistory handles GET /api/v1/aqi/:city/history
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	city := c.Params("city")

	q := historyQuery{Hours: 24}
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid query parameters",
		})
	}
	if err := h.validate.Struct(q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Hours parameter must be between 1 and 168",
		})
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(q.Hours) * time.Hour)

	results, err := h.store.ResultHistory(c.Context(), city, from, to)
	if err != nil {
		h.logger.Error("Failed to load history",
			zap.String("city", city),
			zap.Int("hours", q.Hours),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load AQI history",
		})
	}

	return c.JSON(fiber.Map{
		"city":    city,
		"hours":   q.Hours,
		"count":   len(results),
		"results": results,
	})
}

// GetPollutants handles GET /api/v1/aqi/:city/pollutants
func (h *Handler) GetPollutants(c *fiber.Ctx) error {
	city := c.Params("city")

	reading, err := h.store.LatestReading(c.Context(), city)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No readings for city",
				"city":  city,
			})
		}
		h.logger.Error("Failed to load latest reading",
			zap.String("city", city),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load pollutant data",
		})
	}

	comp := aqi.Compute(reading)
	return c.JSON(fiber.Map{
		"city":        city,
		"observed_at": reading.ObservedAt,
		"pollutants": fiber.Map{
			"pm2_5":            reading.PM25,
			"pm10":             reading.PM10,
			"ozone":            reading.O3,
			"nitrogen_dioxide": reading.NO2,
			"sulphur_dioxide":  reading.SO2,
			"carbon_monoxide":  reading.CO,
		},
		"sub_indices": comp.SubIndices,
	})
}

var startTime = time.Now()
