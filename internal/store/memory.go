package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"aqi-pipeline/internal/models"
)

// Memory is a concurrency-safe in-memory Store. It backs tests and lets
// the server run without a database configured.
type Memory struct {
	mu       sync.RWMutex
	readings map[string][]models.Reading // city -> readings, oldest first
	results  map[string][]models.Result  // city -> results, oldest first
	seen     map[string]map[time.Time]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		readings: make(map[string][]models.Reading),
		results:  make(map[string][]models.Result),
		seen:     make(map[string]map[time.Time]struct{}),
	}
}

func (s *Memory) InsertReadings(_ context.Context, readings []models.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range readings {
		ts := r.ObservedAt.UTC()
		if _, ok := s.seen[r.City]; !ok {
			s.seen[r.City] = make(map[time.Time]struct{})
		}
		if _, dup := s.seen[r.City][ts]; dup {
			continue
		}
		s.seen[r.City][ts] = struct{}{}
		r.ObservedAt = ts
		s.readings[r.City] = append(s.readings[r.City], r)
		inserted++
	}

	for city := range s.readings {
		sort.Slice(s.readings[city], func(i, j int) bool {
			return s.readings[city][i].ObservedAt.Before(s.readings[city][j].ObservedAt)
		})
	}
	return inserted, nil
}

func (s *Memory) RecentReadings(_ context.Context, city string, since time.Time) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Reading
	for _, r := range s.readings[city] {
		if !r.ObservedAt.Before(since.UTC()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memory) LatestReading(_ context.Context, city string) (models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs := s.readings[city]
	if len(rs) == 0 {
		return models.Reading{}, ErrNotFound
	}
	return rs[len(rs)-1], nil
}

func (s *Memory) CitiesWithRecentData(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cities []string
	for city, rs := range s.readings {
		for _, r := range rs {
			if !r.ObservedAt.Before(since.UTC()) {
				cities = append(cities, city)
				break
			}
		}
	}
	sort.Strings(cities)
	return cities, nil
}

func (s *Memory) InsertResult(_ context.Context, result models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.results[result.City] {
		if existing.ObservedAt.Equal(result.ObservedAt) {
			return nil
		}
	}
	s.results[result.City] = append(s.results[result.City], result)
	sort.Slice(s.results[result.City], func(i, j int) bool {
		return s.results[result.City][i].ObservedAt.Before(s.results[result.City][j].ObservedAt)
	})
	return nil
}

func (s *Memory) LatestResult(_ context.Context, city string) (models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs := s.results[city]
	if len(rs) == 0 {
		return models.Result{}, ErrNotFound
	}
	return rs[len(rs)-1], nil
}

func (s *Memory) ResultHistory(_ context.Context, city string, from, to time.Time) ([]models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Result
	for _, r := range s.results[city] {
		if !r.ObservedAt.Before(from) && !r.ObservedAt.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memory) RecentResultAQI(_ context.Context, city string, limit int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var values []float64
	for _, r := range s.results[city] {
		if r.AQI != nil {
			values = append(values, float64(*r.AQI))
		}
	}
	if len(values) > limit {
		values = values[len(values)-limit:]
	}
	return values, nil
}

func (s *Memory) Health(_ context.Context) error {
	return nil
}
