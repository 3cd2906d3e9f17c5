package storage

import (
	"context"
	"time"

	"github.com/caliperdev/campaignmanager/internal/models"
)

// CampaignRepo defines persistence for campaigns. Reads return nil
// (not an error) when the campaign does not exist.
type CampaignRepo interface {
	GetCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, datasetID string) ([]*models.Campaign, error)
	UpsertCampaign(ctx context.Context, c *models.Campaign) error
	DeleteCampaign(ctx context.Context, id int64) error
	// ResetDataset removes every campaign in the dataset (the bulk
	// "reset all" action).
	ResetDataset(ctx context.Context, datasetID string) error
}

// SourceRowStore persists externally supplied delivery rows per
// source dataset.
type SourceRowStore interface {
	ListRows(ctx context.Context, datasetID string) ([]models.SourceRow, error)
	AppendRows(ctx context.Context, datasetID string, rows []models.SourceRow) error
	DeleteDataset(ctx context.Context, datasetID string) error
}

// CachedMonitor is one cached aggregation result for a
// (campaign dataset, source dataset) pair.
type CachedMonitor struct {
	Rows       []models.MonitorRow `json:"rows"`
	ComputedAt time.Time           `json:"computed_at"`
}

// MonitorCache stores aggregation results keyed by dataset pair.
// Put replaces the whole entry atomically: a reader sees either the
// previous result or the new one, never partial months. Get returns
// nil when no entry exists; staleness is judged by the caller from
// ComputedAt.
type MonitorCache interface {
	Get(ctx context.Context, campaignDatasetID, sourceDatasetID string) (*CachedMonitor, error)
	Put(ctx context.Context, campaignDatasetID, sourceDatasetID string, rows []models.MonitorRow) error
}
