package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caliperdev/campaignmanager/internal/models"
)

// RedisMonitorCache implements MonitorCache on Redis. Each dataset
// pair maps to one JSON blob, written with a single SET so readers
// never observe a half-replaced result.
type RedisMonitorCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMonitorCache creates a cache. ttl is housekeeping only
// (entries expire eventually even if never refreshed); staleness is
// judged by the caller from ComputedAt.
func NewRedisMonitorCache(client *redis.Client, ttl time.Duration) *RedisMonitorCache {
	return &RedisMonitorCache{client: client, ttl: ttl}
}

func cacheKey(campaignDatasetID, sourceDatasetID string) string {
	return fmt.Sprintf("monitor:%s:%s", campaignDatasetID, sourceDatasetID)
}

func (c *RedisMonitorCache) Get(ctx context.Context, campaignDatasetID, sourceDatasetID string) (*CachedMonitor, error) {
	raw, err := c.client.Get(ctx, cacheKey(campaignDatasetID, sourceDatasetID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read monitor cache: %w", err)
	}
	var entry CachedMonitor
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode monitor cache: %w", err)
	}
	return &entry, nil
}

func (c *RedisMonitorCache) Put(ctx context.Context, campaignDatasetID, sourceDatasetID string, rows []models.MonitorRow) error {
	entry := CachedMonitor{Rows: rows, ComputedAt: time.Now().UTC()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode monitor cache: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(campaignDatasetID, sourceDatasetID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write monitor cache: %w", err)
	}
	return nil
}
