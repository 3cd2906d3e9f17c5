package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caliperdev/campaignmanager/internal/models"
)

// PostgresCampaignRepo implements CampaignRepo using PostgreSQL.
// Ranges, the CSV attribute bag and notes live in JSONB columns since
// their shapes vary per deployment.
type PostgresCampaignRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCampaignRepo(pool *pgxpool.Pool) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{pool: pool}
}

const campaignColumns = `id, dataset_id, name, start_date, end_date,
	impressions_goal, distribution_mode, custom_ranges, csv_data,
	csv_columns, notes, created_at, updated_at`

func (r *PostgresCampaignRepo) GetCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns WHERE id = $1
	`, id)

	c, err := scanCampaign(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

func (r *PostgresCampaignRepo) ListCampaigns(ctx context.Context, datasetID string) ([]*models.Campaign, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE $1 = '' OR dataset_id = $1
		ORDER BY id
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *PostgresCampaignRepo) UpsertCampaign(ctx context.Context, c *models.Campaign) error {
	ranges, err := json.Marshal(c.CustomRanges)
	if err != nil {
		return fmt.Errorf("failed to encode ranges: %w", err)
	}
	csvData, err := json.Marshal(c.CSVData)
	if err != nil {
		return fmt.Errorf("failed to encode csv data: %w", err)
	}
	csvColumns, err := json.Marshal(c.CSVColumns)
	if err != nil {
		return fmt.Errorf("failed to encode csv columns: %w", err)
	}
	notes, err := json.Marshal(c.Notes)
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			dataset_id = EXCLUDED.dataset_id,
			name = EXCLUDED.name,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			impressions_goal = EXCLUDED.impressions_goal,
			distribution_mode = EXCLUDED.distribution_mode,
			custom_ranges = EXCLUDED.custom_ranges,
			csv_data = EXCLUDED.csv_data,
			csv_columns = EXCLUDED.csv_columns,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
	`, c.ID, c.DatasetID, c.Name, c.StartDate.Time, c.EndDate.Time,
		c.ImpressionsGoal, string(c.DistributionMode), ranges, csvData,
		csvColumns, notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert campaign: %w", err)
	}
	return nil
}

func (r *PostgresCampaignRepo) DeleteCampaign(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}

func (r *PostgresCampaignRepo) ResetDataset(ctx context.Context, datasetID string) error {
	if _, err := r.pool.Exec(ctx, `
		DELETE FROM campaigns WHERE $1 = '' OR dataset_id = $1
	`, datasetID); err != nil {
		return fmt.Errorf("failed to reset dataset: %w", err)
	}
	return nil
}

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	var mode string
	var ranges, csvData, csvColumns, notes []byte

	if err := row.Scan(
		&c.ID, &c.DatasetID, &c.Name, &c.StartDate.Time, &c.EndDate.Time,
		&c.ImpressionsGoal, &mode, &ranges, &csvData, &csvColumns, &notes,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.DistributionMode = models.DistributionMode(mode)

	if len(ranges) > 0 {
		if err := json.Unmarshal(ranges, &c.CustomRanges); err != nil {
			return nil, fmt.Errorf("failed to parse ranges: %w", err)
		}
	}
	if len(csvData) > 0 {
		if err := json.Unmarshal(csvData, &c.CSVData); err != nil {
			return nil, fmt.Errorf("failed to parse csv data: %w", err)
		}
	}
	if len(csvColumns) > 0 {
		if err := json.Unmarshal(csvColumns, &c.CSVColumns); err != nil {
			return nil, fmt.Errorf("failed to parse csv columns: %w", err)
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &c.Notes); err != nil {
			return nil, fmt.Errorf("failed to parse notes: %w", err)
		}
	}
	return &c, nil
}
