package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/caliperdev/campaignmanager/internal/models"
)

// ClickHouseSourceRowStore implements SourceRowStore on ClickHouse.
// Delivery rows are append-mostly analytics data with arbitrary
// columns, so each row is stored as a JSON field bag.
//
// Expected table:
//
//	CREATE TABLE source_rows (
//	    dataset_id  String,
//	    fields      String,
//	    inserted_at DateTime DEFAULT now()
//	) ENGINE = MergeTree ORDER BY (dataset_id, inserted_at)
type ClickHouseSourceRowStore struct {
	conn driver.Conn
}

func NewClickHouseSourceRowStore(conn driver.Conn) *ClickHouseSourceRowStore {
	return &ClickHouseSourceRowStore{conn: conn}
}

func (s *ClickHouseSourceRowStore) ListRows(ctx context.Context, datasetID string) ([]models.SourceRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT fields FROM source_rows
		WHERE dataset_id = ?
		ORDER BY inserted_at
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source rows: %w", err)
	}
	defer rows.Close()

	var out []models.SourceRow
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var fields map[string]string
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			// A corrupt row is dropped rather than failing the batch.
			continue
		}
		out = append(out, models.SourceRow{Fields: fields})
	}
	return out, rows.Err()
}

func (s *ClickHouseSourceRowStore) AppendRows(ctx context.Context, datasetID string, newRows []models.SourceRow) error {
	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO source_rows (dataset_id, fields)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, row := range newRows {
		fields, err := json.Marshal(row.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode source row: %w", err)
		}
		if err := batch.Append(datasetID, string(fields)); err != nil {
			return fmt.Errorf("failed to append source row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert source rows: %w", err)
	}
	return nil
}

func (s *ClickHouseSourceRowStore) DeleteDataset(ctx context.Context, datasetID string) error {
	err := s.conn.Exec(ctx, `
		ALTER TABLE source_rows DELETE WHERE dataset_id = ?
	`, datasetID)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return nil
}
