package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GTDGit/pts_listener/internal/models"
)

// StationSet is the cached station list of one system.
type StationSet struct {
	System   uint8     `json:"system"`
	Names    []string  `json:"names"`
	CachedAt time.Time `json:"cachedAt"`
}

// StationCache publishes station directories so dashboards can label events
// without querying the station table.
type StationCache struct {
	redis *RedisClient
}

// NewStationCache creates a new StationCache.
func NewStationCache(redis *RedisClient) *StationCache {
	return &StationCache{redis: redis}
}

func (c *StationCache) key(system uint8) string {
	return fmt.Sprintf("stations:sys:%d", system)
}

// SetStations stores the station list of system, replacing any previous one.
func (c *StationCache) SetStations(ctx context.Context, system uint8, names [models.StationsPerSystem]string) error {
	set := StationSet{
		System:   system,
		Names:    append([]string(nil), names[:]...),
		CachedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal stations: %w", err)
	}
	return c.redis.Set(ctx, c.key(system), string(data), 0)
}

// GetStations returns the cached station list of system, or nil if absent.
func (c *StationCache) GetStations(ctx context.Context, system uint8) (*StationSet, error) {
	data, err := c.redis.Get(ctx, c.key(system))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var set StationSet
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return nil, fmt.Errorf("unmarshal stations: %w", err)
	}
	return &set, nil
}
