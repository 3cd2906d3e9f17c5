package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/caliperdev/campaignmanager/internal/models"
	"github.com/caliperdev/campaignmanager/internal/storage"
)

type serviceFixture struct {
	svc       *Service
	campaigns *storage.InMemoryCampaignRepo
	sources   *storage.InMemorySourceRowStore
	cache     *storage.InMemoryMonitorCache
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		campaigns: storage.NewInMemoryCampaignRepo(),
		sources:   storage.NewInMemorySourceRowStore(),
		cache:     storage.NewInMemoryMonitorCache(),
	}
	f.svc = NewService(f.campaigns, f.sources, f.cache, zap.NewNop(), nil, 15*time.Minute, 2)
	return f
}

func (f *serviceFixture) seedCampaign(t *testing.T, id int64, key string, goal int64, extra map[string]string) {
	t.Helper()
	data := map[string]string{"Insertion Order ID": key}
	for k, v := range extra {
		data[k] = v
	}
	err := f.campaigns.UpsertCampaign(context.Background(), &models.Campaign{
		ID:              id,
		DatasetID:       "camp",
		Name:            "c",
		StartDate:       models.NewDate(2025, time.January, 1),
		EndDate:         models.NewDate(2025, time.January, 31),
		ImpressionsGoal: goal,
		CSVData:         data,
	})
	require.NoError(t, err)
}

func TestMonitorComputesAndCaches(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedCampaign(t, 1, "IO-1", 3100, nil)

	rows, err := f.svc.Monitor(ctx, "camp", "src", false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(3100), rows[0].SumImpressions)

	cached, err := f.cache.Get(ctx, "camp", "src")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, rows, cached.Rows)
}

func TestMonitorServesFreshCacheEntry(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedCampaign(t, 1, "IO-1", 100, nil)

	// a fresh cache entry wins over recomputation
	stale := []models.MonitorRow{{Bucket: "1999-01", SumImpressions: 42}}
	require.NoError(t, f.cache.Put(ctx, "camp", "src", stale))

	rows, err := f.svc.Monitor(ctx, "camp", "src", false)
	require.NoError(t, err)
	require.Equal(t, stale, rows)
}

func TestMonitorForceBypassesCache(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedCampaign(t, 1, "IO-1", 100, nil)

	require.NoError(t, f.cache.Put(ctx, "camp", "src", []models.MonitorRow{{Bucket: "1999-01"}}))

	rows, err := f.svc.Monitor(ctx, "camp", "src", true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "2025-01", rows[0].Bucket)

	// the forced result replaced the cache entry
	cached, err := f.cache.Get(ctx, "camp", "src")
	require.NoError(t, err)
	require.Equal(t, "2025-01", cached.Rows[0].Bucket)
}

func TestRollupGranularity(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedCampaign(t, 1, "IO-1", 100, nil)

	rows, err := f.svc.Rollup(ctx, "camp", "src", GranularityYear, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "2025", rows[0].Bucket)
}

func TestDimensionBreakdown(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedCampaign(t, 1, "IO-1", 100, map[string]string{"Advertiser": "Acme"})
	f.seedCampaign(t, 2, "IO-2", 300, map[string]string{"Advertiser": "Acme"})
	f.seedCampaign(t, 3, "IO-3", 50, nil)

	rows, err := f.svc.DimensionBreakdown(ctx, "camp", "Advertiser")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Acme", rows[0].Value)
	require.Equal(t, int64(400), rows[0].SumImpressions)
	require.Equal(t, int64(2), rows[0].ActiveCampaignCount)
	require.Equal(t, BlankDimension, rows[1].Value)

	_, err = f.svc.DimensionBreakdown(ctx, "camp", "")
	require.Error(t, err)
}

func collectEvents(t *testing.T, ch <-chan ProgressEvent) []ProgressEvent {
	t.Helper()
	var events []ProgressEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("timed out waiting for refresh events")
		}
	}
}

func TestRefreshTargeted(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.seedCampaign(t, 1, "IO-1", 3100, nil)
	require.NoError(t, f.sources.AppendRows(ctx, "src", []models.SourceRow{
		{Fields: map[string]string{
			"Insertion Order ID": "IO-1",
			"Report Date":        "2025-01-10",
			"Impressions":        "500",
			"Media Cost":         "1.00",
		}},
	}))

	events := collectEvents(t, f.svc.Refresh(ctx, RefreshRequest{
		CampaignDatasetID: "camp",
		SourceDatasetID:   "src",
	}))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, "completed", last.Stage)
	require.Equal(t, 1, last.Rows)
	require.NotEmpty(t, last.JobID)
	for _, ev := range events {
		require.Equal(t, last.JobID, ev.JobID)
	}

	cached, err := f.cache.Get(ctx, "camp", "src")
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, int64(500), cached.Rows[0].DataImpressions)
}

func TestRefreshGlobalProgressBatches(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	for i := int64(1); i <= 5; i++ {
		f.seedCampaign(t, i, "", 100, nil)
	}

	events := collectEvents(t, f.svc.Refresh(ctx, RefreshRequest{CampaignDatasetID: "camp"}))

	var progress []ProgressEvent
	for _, ev := range events {
		if ev.Stage == "progress" {
			progress = append(progress, ev)
		}
	}
	// batch size 2 over 5 campaigns: progress at 2, 4 and 5
	require.Len(t, progress, 3)
	require.Equal(t, 2, progress[0].Processed)
	require.Equal(t, 40, progress[0].Percent)
	require.Equal(t, 5, progress[2].Processed)
	require.Equal(t, 100, progress[2].Percent)

	last := events[len(events)-1]
	require.Equal(t, "completed", last.Stage)
	require.Equal(t, 1, last.Rows)

	// the global summary keeps the true distinct campaign count
	rows, err := f.svc.GlobalSummary(ctx, "camp")
	require.NoError(t, err)
	require.Equal(t, int64(5), rows[0].ActiveCampaignCount)
	require.Equal(t, int64(500), rows[0].SumImpressions)
}

func TestRefreshGlobalDoesNotShadowPairView(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	for i := int64(1); i <= 3; i++ {
		f.seedCampaign(t, i, "IO-"+string(rune('0'+i)), 100, nil)
	}

	collectEvents(t, f.svc.Refresh(ctx, RefreshRequest{CampaignDatasetID: "camp"}))

	// the no-source pair view still computes the collapsed count, even
	// right after a global refresh of the same campaign dataset
	rows, err := f.svc.Monitor(ctx, "camp", "", false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].ActiveCampaignCount)

	// and the global summary stays readable with its true count
	global, err := f.svc.GlobalSummary(ctx, "camp")
	require.NoError(t, err)
	require.Equal(t, int64(3), global[0].ActiveCampaignCount)

	// a second pair read serves the cached pair rows unchanged
	again, err := f.svc.Monitor(ctx, "camp", "", false)
	require.NoError(t, err)
	require.Equal(t, rows, again)
}

func TestGlobalSummaryEmptyBeforeRefresh(t *testing.T) {
	f := newServiceFixture(t)
	rows, err := f.svc.GlobalSummary(context.Background(), "camp")
	require.NoError(t, err)
	require.Nil(t, rows)
}
