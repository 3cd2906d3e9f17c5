// Package campaign implements the management operations behind the
// campaign HTTP surface: CRUD with validation, date-keyed notes,
// allocation previews and bulk imports of CSV-shaped rows.
package campaign

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/caliperdev/campaignmanager/internal/allocation"
	"github.com/caliperdev/campaignmanager/internal/dateutil"
	"github.com/caliperdev/campaignmanager/internal/metrics"
	"github.com/caliperdev/campaignmanager/internal/models"
	"github.com/caliperdev/campaignmanager/internal/monitor"
	"github.com/caliperdev/campaignmanager/internal/storage"
)

// Column candidates consulted when an imported file does not label its
// columns the way we name campaign fields.
var (
	nameCandidates      = []string{"name", "campaign name", "line item", "insertion order name"}
	startDateCandidates = []string{"start date", "flight start", "start"}
	endDateCandidates   = []string{"end date", "flight end", "end"}
	goalCandidates      = []string{"impressions goal", "booked impressions", "goal", "impressions"}
	idCandidates        = []string{"id", "campaign id", "line id"}
)

// Service wraps the campaign repository with validation and the
// derived read operations.
type Service struct {
	repo     storage.CampaignRepo
	detector *monitor.ColumnDetector
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(repo storage.CampaignRepo, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		detector: monitor.NewColumnDetector(),
		logger:   logger,
		metrics:  m,
	}
}

// List returns the campaigns of a dataset, sorted by ID.
func (s *Service) List(ctx context.Context, datasetID string) ([]*models.Campaign, error) {
	return s.repo.ListCampaigns(ctx, datasetID)
}

// Get returns one campaign, nil when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (*models.Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

// Upsert validates and saves a campaign. Overlapping custom ranges and
// range goals exceeding the campaign goal are blocking errors.
func (s *Service) Upsert(ctx context.Context, c *models.Campaign) error {
	if err := s.validate(c); err != nil {
		return err
	}

	now := time.Now().UTC()
	existing, err := s.repo.GetCampaign(ctx, c.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		c.CreatedAt = now
	} else {
		c.CreatedAt = existing.CreatedAt
		if c.Notes == nil {
			c.Notes = existing.Notes
		}
	}
	c.UpdatedAt = now

	if err := s.repo.UpsertCampaign(ctx, c); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordCampaignSaved()
	}
	s.updateCampaignGauge(ctx)
	s.logger.Info("campaign saved",
		zap.Int64("id", c.ID),
		zap.String("name", c.Name),
		zap.String("mode", string(c.DistributionMode)),
	)
	return nil
}

func (s *Service) validate(c *models.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DistributionMode == models.DistributionCustom {
		if i, j, ok := models.DetectOverlap(c.CustomRanges); ok {
			return fmt.Errorf("custom ranges %d and %d overlap", i, j)
		}
		if over := models.OverAllocation(c); over > 0 {
			return fmt.Errorf("custom range goals exceed campaign goal by %d impressions", over)
		}
	}
	return nil
}

// Delete removes a campaign. Deleting a campaign that does not exist
// is not an error.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	s.updateCampaignGauge(ctx)
	return nil
}

// ResetAll removes every campaign in the dataset.
func (s *Service) ResetAll(ctx context.Context, datasetID string) error {
	s.logger.Warn("resetting campaign dataset", zap.String("dataset_id", datasetID))
	if err := s.repo.ResetDataset(ctx, datasetID); err != nil {
		return err
	}
	s.updateCampaignGauge(ctx)
	return nil
}

// updateCampaignGauge refreshes the campaign-count gauge after a
// write. A failed count never fails the write that triggered it.
func (s *Service) updateCampaignGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	all, err := s.repo.ListCampaigns(ctx, "")
	if err != nil {
		s.logger.Warn("failed to count campaigns for gauge", zap.Error(err))
		return
	}
	s.metrics.SetActiveCampaigns(len(all))
}

// SetNote attaches a note to a campaign under an ISO date key.
func (s *Service) SetNote(ctx context.Context, id int64, date, text string) error {
	if _, err := time.Parse(dateutil.ISO, date); err != nil {
		return fmt.Errorf("invalid note date %q", date)
	}
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("campaign %d not found", id)
	}
	if c.Notes == nil {
		c.Notes = make(map[string]string)
	}
	c.Notes[date] = text
	c.UpdatedAt = time.Now().UTC()
	return s.repo.UpsertCampaign(ctx, c)
}

// DeleteNote removes a campaign note by date key.
func (s *Service) DeleteNote(ctx context.Context, id int64, date string) error {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("campaign %d not found", id)
	}
	delete(c.Notes, date)
	c.UpdatedAt = time.Now().UTC()
	return s.repo.UpsertCampaign(ctx, c)
}

// AllocationDay is one row of an allocation preview.
type AllocationDay struct {
	Date        string `json:"date"`
	Impressions int64  `json:"impressions"`
}

// AllocationPreview is the daily series of one campaign, for the
// calendar view.
type AllocationPreview struct {
	CampaignID int64           `json:"campaign_id"`
	Total      int64           `json:"total"`
	Days       []AllocationDay `json:"days"`
}

// PreviewAllocation computes the campaign's daily series in
// chronological order.
func (s *Service) PreviewAllocation(ctx context.Context, id int64) (*AllocationPreview, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("campaign %d not found", id)
	}

	series := allocation.Allocate(c.StartDate.Time, c.EndDate.Time, c.ImpressionsGoal, c.DistributionMode, c.CustomRanges)
	preview := &AllocationPreview{
		CampaignID: c.ID,
		Total:      series.Total(),
		Days:       make([]AllocationDay, 0, len(series)),
	}
	for _, d := range series.Dates() {
		preview.Days = append(preview.Days, AllocationDay{Date: d, Impressions: series[d]})
	}
	return preview, nil
}

// ImportRequest is a pre-parsed CSV upload: ordered column names plus
// one string map per file row.
type ImportRequest struct {
	DatasetID string              `json:"dataset_id"`
	Columns   []string            `json:"columns"`
	Rows      []map[string]string `json:"rows"`
}

// ImportError reports one skipped row.
type ImportError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// ImportRows converts attribute-bag rows into campaigns and saves the
// valid ones. Malformed rows are reported and skipped, never aborting
// the batch. Rows without a usable ID column get IDs assigned above
// the dataset's current maximum.
func (s *Service) ImportRows(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	nameCol, _ := s.detector.Detect(req.Columns, nameCandidates)
	startCol, _ := s.detector.Detect(req.Columns, startDateCandidates)
	endCol, _ := s.detector.Detect(req.Columns, endDateCandidates)
	goalCol, _ := s.detector.Detect(req.Columns, goalCandidates)
	idCol, _ := s.detector.Detect(req.Columns, idCandidates)

	if nameCol == "" || startCol == "" || endCol == "" {
		return nil, fmt.Errorf("import columns could not be resolved (need name, start date, end date; got %v)", req.Columns)
	}

	existing, err := s.repo.ListCampaigns(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	var nextID int64 = 1
	for _, c := range existing {
		if c.ID >= nextID {
			nextID = c.ID + 1
		}
	}

	result := &ImportResult{}
	for i, row := range req.Rows {
		c, autoID, err := s.rowToCampaign(row, req, nameCol, startCol, endCol, goalCol, idCol, nextID)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, ImportError{Row: i, Reason: err.Error()})
			continue
		}
		if err := s.Upsert(ctx, c); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, ImportError{Row: i, Reason: err.Error()})
			continue
		}
		// an auto-assigned ID is consumed only once the row is saved
		if autoID {
			nextID++
		}
		result.Imported++
	}

	s.logger.Info("campaign import finished",
		zap.String("dataset_id", req.DatasetID),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Service) rowToCampaign(row map[string]string, req ImportRequest, nameCol, startCol, endCol, goalCol, idCol string, nextID int64) (*models.Campaign, bool, error) {
	get := func(col string) string { return strings.TrimSpace(row[col]) }

	start, ok := dateutil.ParseSourceDate(get(startCol))
	if !ok {
		return nil, false, fmt.Errorf("unparseable start date %q", get(startCol))
	}
	end, ok := dateutil.ParseSourceDate(get(endCol))
	if !ok {
		return nil, false, fmt.Errorf("unparseable end date %q", get(endCol))
	}

	var goal int64
	if goalCol != "" && get(goalCol) != "" {
		goal, ok = models.ParseCount(get(goalCol))
		if !ok {
			return nil, false, fmt.Errorf("unparseable impressions goal %q", get(goalCol))
		}
	}

	id, autoID := nextID, true
	if idCol != "" && get(idCol) != "" {
		parsed, err := strconv.ParseInt(get(idCol), 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("unparseable id %q", get(idCol))
		}
		id, autoID = parsed, false
	}

	data := make(map[string]string, len(row))
	for k, v := range row {
		data[k] = v
	}

	return &models.Campaign{
		ID:               id,
		DatasetID:        req.DatasetID,
		Name:             get(nameCol),
		StartDate:        models.Date{Time: dateutil.Midnight(start)},
		EndDate:          models.Date{Time: dateutil.Midnight(end)},
		ImpressionsGoal:  goal,
		DistributionMode: models.DistributionEven,
		CSVData:          data,
		CSVColumns:       req.Columns,
	}, autoID, nil
}
