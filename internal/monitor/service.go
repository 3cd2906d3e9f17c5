package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caliperdev/campaignmanager/internal/allocation"
	"github.com/caliperdev/campaignmanager/internal/metrics"
	"github.com/caliperdev/campaignmanager/internal/models"
	"github.com/caliperdev/campaignmanager/internal/storage"
)

// Service runs aggregations against the stores and keeps results in
// the monitor cache. All computation is delegated to Aggregate and the
// rollup functions; the service adds I/O, caching and progress
// reporting.
type Service struct {
	campaigns storage.CampaignRepo
	sources   storage.SourceRowStore
	cache     storage.MonitorCache
	detector  *ColumnDetector
	logger    *zap.Logger
	metrics   *metrics.Metrics

	staleAfter time.Duration
	batchSize  int
}

func NewService(
	campaigns storage.CampaignRepo,
	sources storage.SourceRowStore,
	cache storage.MonitorCache,
	logger *zap.Logger,
	m *metrics.Metrics,
	staleAfter time.Duration,
	batchSize int,
) *Service {
	return &Service{
		campaigns:  campaigns,
		sources:    sources,
		cache:      cache,
		detector:   NewColumnDetector(),
		logger:     logger,
		metrics:    m,
		staleAfter: staleAfter,
		batchSize:  batchSize,
	}
}

// Monitor returns the monthly rows for a dataset pair, serving from
// cache when a fresh entry exists. force bypasses the cache read but
// still writes the recomputed result back.
func (s *Service) Monitor(ctx context.Context, campaignDS, sourceDS string, force bool) ([]models.MonitorRow, error) {
	if !force {
		cached, err := s.cache.Get(ctx, campaignDS, sourceDS)
		if err != nil {
			s.logger.Warn("monitor cache read failed", zap.Error(err))
		} else if cached != nil && time.Since(cached.ComputedAt) < s.staleAfter {
			if s.metrics != nil {
				s.metrics.RecordCacheHit()
			}
			return cached.Rows, nil
		}
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}

	rows, err := s.compute(ctx, campaignDS, sourceDS)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, campaignDS, sourceDS, rows); err != nil {
		s.logger.Warn("monitor cache write failed", zap.Error(err))
	}
	return rows, nil
}

func (s *Service) compute(ctx context.Context, campaignDS, sourceDS string) ([]models.MonitorRow, error) {
	campaigns, err := s.campaigns.ListCampaigns(ctx, campaignDS)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	var sourceRows []models.SourceRow
	if sourceDS != "" {
		sourceRows, err = s.sources.ListRows(ctx, sourceDS)
		if err != nil {
			return nil, fmt.Errorf("failed to list source rows: %w", err)
		}
	}

	rows := Aggregate(AggregateInput{
		Campaigns:  campaigns,
		SourceRows: sourceRows,
	}, s.detector)
	if s.metrics != nil {
		s.metrics.SetMonitorRows(len(rows))
	}
	return rows, nil
}

// Rollup returns the pair's rows regrouped at the given granularity.
func (s *Service) Rollup(ctx context.Context, campaignDS, sourceDS string, g Granularity, force bool) ([]models.MonitorRow, error) {
	rows, err := s.Monitor(ctx, campaignDS, sourceDS, force)
	if err != nil {
		return nil, err
	}
	return RollupByTime(rows, g), nil
}

// DimensionBreakdown groups booked impressions by the value each
// campaign carries in the named attribute column. Unlike the monthly
// join, this uses each campaign's own distribution mode.
func (s *Service) DimensionBreakdown(ctx context.Context, datasetID, column string) ([]DimensionRow, error) {
	if column == "" {
		return nil, fmt.Errorf("dimension column is required")
	}
	campaigns, err := s.campaigns.ListCampaigns(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	var rows []CampaignMonthRow
	lookup := make(map[int64]string, len(campaigns))
	for _, c := range campaigns {
		lookup[c.ID] = c.Field(column)
		if !c.FlightValid() {
			continue
		}
		series := allocation.Allocate(c.StartDate.Time, c.EndDate.Time, c.ImpressionsGoal, c.DistributionMode, c.CustomRanges)
		byMonth := make(map[string]int64)
		for iso, v := range series {
			byMonth[iso[:7]] += v
		}
		months := make([]string, 0, len(byMonth))
		for m := range byMonth {
			months = append(months, m)
		}
		sort.Strings(months)
		for _, m := range months {
			rows = append(rows, CampaignMonthRow{CampaignID: c.ID, Bucket: m, Impressions: byMonth[m]})
		}
	}
	return RollupByDimension(rows, lookup), nil
}

// globalSourceDataset is the reserved source-dataset key the global
// summary is cached under. It can never collide with a real dataset
// pair, so pair reads and global refreshes stay independent.
const globalSourceDataset = "@global"

// GlobalSummary returns the cached global refresh result, nil when no
// global refresh has run yet.
func (s *Service) GlobalSummary(ctx context.Context, campaignDS string) ([]models.MonitorRow, error) {
	cached, err := s.cache.Get(ctx, campaignDS, globalSourceDataset)
	if err != nil {
		return nil, fmt.Errorf("failed to read global summary: %w", err)
	}
	if cached == nil {
		return nil, nil
	}
	return cached.Rows, nil
}

// RefreshRequest selects what a refresh run recomputes. With a source
// dataset it is a targeted pair refresh; without one it is a global
// run summarizing booked impressions across all campaigns.
type RefreshRequest struct {
	CampaignDatasetID string `json:"campaign_dataset_id"`
	SourceDatasetID   string `json:"source_dataset_id,omitempty"`
}

// ProgressEvent is one step of a refresh run, streamed to the caller.
type ProgressEvent struct {
	JobID     string `json:"job_id"`
	Stage     string `json:"stage"`
	Message   string `json:"message,omitempty"`
	Processed int    `json:"processed,omitempty"`
	Total     int    `json:"total,omitempty"`
	Percent   int    `json:"percent,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Refresh recomputes a dataset pair (or the global summary) and
// streams progress. The channel closes after a terminal "completed" or
// "error" event. The cache entry is replaced only once the full result
// is computed, so concurrent readers never see partial months.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) <-chan ProgressEvent {
	events := make(chan ProgressEvent, 8)
	jobID := uuid.New().String()

	go func() {
		defer close(events)
		start := time.Now()
		mode := "targeted"
		if req.SourceDatasetID == "" {
			mode = "global"
		}

		emit := func(ev ProgressEvent) {
			ev.JobID = jobID
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		fail := func(err error) {
			s.logger.Error("refresh failed", zap.String("job_id", jobID), zap.Error(err))
			if s.metrics != nil {
				s.metrics.RecordRefresh(mode, "error", time.Since(start))
			}
			emit(ProgressEvent{Stage: "error", Error: err.Error()})
		}

		emit(ProgressEvent{Stage: "status", Message: "loading campaigns"})
		campaigns, err := s.campaigns.ListCampaigns(ctx, req.CampaignDatasetID)
		if err != nil {
			fail(fmt.Errorf("failed to list campaigns: %w", err))
			return
		}

		var rows []models.MonitorRow
		cacheSource := req.SourceDatasetID
		if mode == "targeted" {
			emit(ProgressEvent{Stage: "status", Message: "loading source rows"})
			sourceRows, err := s.sources.ListRows(ctx, req.SourceDatasetID)
			if err != nil {
				fail(fmt.Errorf("failed to list source rows: %w", err))
				return
			}
			emit(ProgressEvent{Stage: "status", Message: "aggregating"})
			rows = Aggregate(AggregateInput{Campaigns: campaigns, SourceRows: sourceRows}, s.detector)
		} else {
			// The global summary carries true distinct campaign counts,
			// which the pair view does not; it lives under its own key so
			// it can never shadow a pair result.
			cacheSource = globalSourceDataset
			rows = s.globalSummary(ctx, campaigns, emit)
		}

		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		if err := s.cache.Put(ctx, req.CampaignDatasetID, cacheSource, rows); err != nil {
			fail(fmt.Errorf("failed to cache refresh result: %w", err))
			return
		}

		if s.metrics != nil {
			s.metrics.RecordRefresh(mode, "ok", time.Since(start))
			s.metrics.SetMonitorRows(len(rows))
		}
		s.logger.Info("refresh completed",
			zap.String("job_id", jobID),
			zap.String("mode", mode),
			zap.Int("rows", len(rows)),
			zap.Duration("duration", time.Since(start)),
		)
		emit(ProgressEvent{Stage: "completed", Rows: len(rows)})
	}()

	return events
}

// globalSummary produces overall monthly booked rows across all
// campaigns, with true per-month distinct campaign counts. Progress is
// emitted per batch of campaigns.
func (s *Service) globalSummary(ctx context.Context, campaigns []*models.Campaign, emit func(ProgressEvent)) []models.MonitorRow {
	total := len(campaigns)
	booked := make(map[string]int64)
	active := make(map[string]map[int64]struct{})

	for i, c := range campaigns {
		if c.FlightValid() {
			series := allocation.AllocateEven(c.StartDate.Time, c.EndDate.Time, c.ImpressionsGoal)
			for iso, v := range series {
				month := iso[:7]
				booked[month] += v
				if active[month] == nil {
					active[month] = make(map[int64]struct{})
				}
				active[month][c.ID] = struct{}{}
			}
		}
		processed := i + 1
		if processed%s.batchSize == 0 || processed == total {
			emit(ProgressEvent{
				Stage:     "progress",
				Processed: processed,
				Total:     total,
				Percent:   processed * 100 / total,
			})
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	months := make([]string, 0, len(booked))
	for m := range booked {
		months = append(months, m)
	}
	sort.Strings(months)

	rows := make([]models.MonitorRow, 0, len(months))
	for _, m := range months {
		rows = append(rows, models.MonitorRow{
			Bucket:              m,
			SumImpressions:      booked[m],
			ActiveCampaignCount: int64(len(active[m])),
		})
	}
	return rows
}
