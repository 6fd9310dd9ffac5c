// Package cache provides an optional Redis hot cache for the latest reading
// and status snapshot. It is a read-path optimization only: every method is
// a safe no-op when disabled, and the orchestrator ignores cache errors.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/savegress/aquasense/pkg/models"
)

const keyPrefix = "aquasense"

// Cache wraps a Redis client behind an enabled flag.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// New connects to Redis when a URL is supplied; otherwise returns a disabled
// cache. The TTL should match the orchestrator's freshness window so cached
// data is never staler than a live fetch would allow.
func New(url string, ttl time.Duration) (*Cache, error) {
	if url == "" {
		return &Cache{enabled: false}, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Cache{client: client, ttl: ttl, enabled: true}, nil
}

// Disabled returns a cache that never stores anything.
func Disabled() *Cache {
	return &Cache{enabled: false}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsEnabled returns whether caching is enabled.
func (c *Cache) IsEnabled() bool {
	return c.enabled
}

func (c *Cache) key(parts ...string) string {
	key := keyPrefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// GetLatestReading retrieves the cached latest reading, (nil, nil) on miss.
func (c *Cache) GetLatestReading(ctx context.Context) (*models.Reading, error) {
	if !c.enabled {
		return nil, nil
	}

	data, err := c.client.Get(ctx, c.key("reading", "latest")).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var r models.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetLatestReading caches the latest reading for one freshness window.
func (c *Cache) SetLatestReading(ctx context.Context, r *models.Reading) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key("reading", "latest"), data, c.ttl).Err()
}

// GetSystemStatus retrieves the cached status snapshot, (nil, nil) on miss.
func (c *Cache) GetSystemStatus(ctx context.Context) (*models.SystemStatus, error) {
	if !c.enabled {
		return nil, nil
	}

	data, err := c.client.Get(ctx, c.key("status")).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var s models.SystemStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSystemStatus caches the status snapshot for one freshness window.
func (c *Cache) SetSystemStatus(ctx context.Context, s *models.SystemStatus) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key("status"), data, c.ttl).Err()
}

// Invalidate drops all cached entries.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, c.key("reading", "latest"), c.key("status")).Err()
}
