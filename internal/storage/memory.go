package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/caliperdev/campaignmanager/internal/models"
)

// In-memory implementations, used as fallbacks when the backing
// stores are unavailable and as fixtures in tests.

// InMemoryCampaignRepo stores campaigns in a map keyed by ID.
type InMemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[int64]*models.Campaign
}

func NewInMemoryCampaignRepo() *InMemoryCampaignRepo {
	return &InMemoryCampaignRepo{campaigns: make(map[int64]*models.Campaign)}
}

func (r *InMemoryCampaignRepo) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *InMemoryCampaignRepo) ListCampaigns(ctx context.Context, datasetID string) ([]*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*models.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		if datasetID != "" && c.DatasetID != datasetID {
			continue
		}
		cp := *c
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *InMemoryCampaignRepo) UpsertCampaign(ctx context.Context, c *models.Campaign) error {
	if c == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *InMemoryCampaignRepo) DeleteCampaign(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, id)
	return nil
}

func (r *InMemoryCampaignRepo) ResetDataset(ctx context.Context, datasetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.campaigns {
		if datasetID == "" || c.DatasetID == datasetID {
			delete(r.campaigns, id)
		}
	}
	return nil
}

// InMemorySourceRowStore stores delivery rows per dataset.
type InMemorySourceRowStore struct {
	mu   sync.RWMutex
	rows map[string][]models.SourceRow
}

func NewInMemorySourceRowStore() *InMemorySourceRowStore {
	return &InMemorySourceRowStore{rows: make(map[string][]models.SourceRow)}
}

func (s *InMemorySourceRowStore) ListRows(ctx context.Context, datasetID string) ([]models.SourceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.rows[datasetID]
	out := make([]models.SourceRow, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *InMemorySourceRowStore) AppendRows(ctx context.Context, datasetID string, rows []models.SourceRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[datasetID] = append(s.rows[datasetID], rows...)
	return nil
}

func (s *InMemorySourceRowStore) DeleteDataset(ctx context.Context, datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, datasetID)
	return nil
}

// InMemoryMonitorCache caches aggregation results per dataset pair.
type InMemoryMonitorCache struct {
	mu      sync.RWMutex
	entries map[string]*CachedMonitor
}

func NewInMemoryMonitorCache() *InMemoryMonitorCache {
	return &InMemoryMonitorCache{entries: make(map[string]*CachedMonitor)}
}

func (c *InMemoryMonitorCache) Get(ctx context.Context, campaignDatasetID, sourceDatasetID string) (*CachedMonitor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[pairKey(campaignDatasetID, sourceDatasetID)]
	if !ok {
		return nil, nil
	}
	cp := CachedMonitor{
		Rows:       make([]models.MonitorRow, len(entry.Rows)),
		ComputedAt: entry.ComputedAt,
	}
	copy(cp.Rows, entry.Rows)
	return &cp, nil
}

func (c *InMemoryMonitorCache) Put(ctx context.Context, campaignDatasetID, sourceDatasetID string, rows []models.MonitorRow) error {
	entry := &CachedMonitor{
		Rows:       make([]models.MonitorRow, len(rows)),
		ComputedAt: time.Now().UTC(),
	}
	copy(entry.Rows, rows)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pairKey(campaignDatasetID, sourceDatasetID)] = entry
	return nil
}

func pairKey(campaignDatasetID, sourceDatasetID string) string {
	return campaignDatasetID + "|" + sourceDatasetID
}
