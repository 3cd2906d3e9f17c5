package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/caliperdev/campaignmanager/internal/models"
)

func newTestRedisCache(t *testing.T) (*RedisMonitorCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisMonitorCache(client, time.Hour), mr
}

func TestRedisMonitorCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestRedisCache(t)

	entry, err := cache.Get(ctx, "camp", "src")
	require.NoError(t, err)
	require.Nil(t, entry)

	rows := []models.MonitorRow{
		{Bucket: "2025-01", SumImpressions: 100, MediaCost: 1.25, ActiveCampaignCount: 1},
		{Bucket: "2025-02", SumImpressions: 200, BookedRevenue: 4.50, ActiveCampaignCount: 1},
	}
	require.NoError(t, cache.Put(ctx, "camp", "src", rows))

	entry, err = cache.Get(ctx, "camp", "src")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, rows, entry.Rows)
	require.WithinDuration(t, time.Now().UTC(), entry.ComputedAt, time.Minute)
}

func TestRedisMonitorCachePairKeys(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestRedisCache(t)

	require.NoError(t, cache.Put(ctx, "camp", "a", []models.MonitorRow{{Bucket: "2025-01"}}))
	require.NoError(t, cache.Put(ctx, "camp", "b", []models.MonitorRow{{Bucket: "2025-02"}}))

	a, err := cache.Get(ctx, "camp", "a")
	require.NoError(t, err)
	require.Equal(t, "2025-01", a.Rows[0].Bucket)

	b, err := cache.Get(ctx, "camp", "b")
	require.NoError(t, err)
	require.Equal(t, "2025-02", b.Rows[0].Bucket)
}

func TestRedisMonitorCacheReplace(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestRedisCache(t)

	require.NoError(t, cache.Put(ctx, "camp", "src", []models.MonitorRow{{Bucket: "2025-01"}}))
	require.NoError(t, cache.Put(ctx, "camp", "src", []models.MonitorRow{{Bucket: "2025-03"}}))

	entry, err := cache.Get(ctx, "camp", "src")
	require.NoError(t, err)
	require.Len(t, entry.Rows, 1)
	require.Equal(t, "2025-03", entry.Rows[0].Bucket)
}

func TestRedisMonitorCacheTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)

	require.NoError(t, cache.Put(ctx, "camp", "src", []models.MonitorRow{{Bucket: "2025-01"}}))

	mr.FastForward(2 * time.Hour)

	entry, err := cache.Get(ctx, "camp", "src")
	require.NoError(t, err)
	require.Nil(t, entry)
}
