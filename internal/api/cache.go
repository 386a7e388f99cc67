package api

import (
	"sync"
	"time"

	"aqi-pipeline/internal/models"

	"go.uber.org/zap"
)

type cacheItem struct {
	result    models.Result
	expiresAt time.Time
}

// ResultCache keeps the latest result per city for the hot
// GET /aqi/:city path. The pipeline only writes once per cycle, so a
// short TTL is safe.
type ResultCache struct {
	mu       sync.RWMutex
	items    map[string]cacheItem
	duration time.Duration
	logger   *zap.Logger
}

func NewResultCache(duration time.Duration, logger *zap.Logger) *ResultCache {
	return &ResultCache{
		items:    make(map[string]cacheItem),
		duration: duration,
		logger:   logger,
	}
}

func (c *ResultCache) Get(city string) (models.Result, bool) {
	c.mu.RLock()
	item, exists := c.items[city]
	c.mu.RUnlock()

	if !exists {
		return models.Result{}, false
	}
	if time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, city)
		c.mu.Unlock()
		return models.Result{}, false
	}
	return item.result, true
}

func (c *ResultCache) Set(city string, result models.Result) {
	c.mu.Lock()
	c.items[city] = cacheItem{
		result:    result,
		expiresAt: time.Now().Add(c.duration),
	}
	c.mu.Unlock()

	c.logger.Debug("Latest result cached", zap.String("city", city))
}
