package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/models"
)

// ErrUnavailable is returned when the weather provider cannot be reached
// within the configured timeout and no cached reading exists. Callers must
// treat it as a policy decision, never as a transport failure.
var ErrUnavailable = errors.New("weather provider unavailable")

// Fetcher is the upstream the service wraps. Satisfied by *Client.
type Fetcher interface {
	FetchCurrent(ctx context.Context, latitude, longitude float64) (models.WeatherCondition, error)
}

// Service is the cached weather oracle: a TTL cache keyed by location in
// front of the provider, with concurrent lookups for one location coalesced
// into a single upstream request.
type Service struct {
	fetcher Fetcher
	cache   *bigcache.BigCache
	group   singleflight.Group
}

// NewService creates a weather service with the given cache TTL.
func NewService(fetcher Fetcher, cacheTTL time.Duration) (*Service, error) {
	cacheConfig := bigcache.DefaultConfig(cacheTTL)
	cacheConfig.Shards = 16
	cacheConfig.CleanWindow = time.Minute
	cacheConfig.Verbose = false

	cache, err := bigcache.New(context.Background(), cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather cache: %w", err)
	}

	return &Service{
		fetcher: fetcher,
		cache:   cache,
	}, nil
}

// Close releases the cache.
func (s *Service) Close() error {
	return s.cache.Close()
}

// GetCurrentCondition returns the current condition for a location, from
// cache when fresh. Provider failures surface as ErrUnavailable.
func (s *Service) GetCurrentCondition(ctx context.Context, latitude, longitude float64) (models.WeatherCondition, error) {
	key := cacheKey(latitude, longitude)

	if data, err := s.cache.Get(key); err == nil {
		var cond models.WeatherCondition
		if err := json.Unmarshal(data, &cond); err == nil {
			return cond, nil
		}
		// Corrupt entry: fall through to a fresh fetch.
		_ = s.cache.Delete(key)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		cond, err := s.fetcher.FetchCurrent(ctx, latitude, longitude)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(cond); err == nil {
			if err := s.cache.Set(key, data); err != nil {
				logger.Warn("Failed to cache weather reading for %s: %v", key, err)
			}
		}
		return cond, nil
	})
	if err != nil {
		logger.Warn("Weather lookup failed for %s: %v", key, err)
		return models.WeatherCondition{}, ErrUnavailable
	}

	return v.(models.WeatherCondition), nil
}

func cacheKey(latitude, longitude float64) string {
	return fmt.Sprintf("%.2f,%.2f", latitude, longitude)
}
