package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PutDetectorConfiguration inserts a new version row; configuration is
// append-only, never updated in place, so the RL loop's history and
// rollback semantics always have a complete trail to read from.
func (r *PostgresRepository) PutDetectorConfiguration(ctx context.Context, organizationID string, rec *DetectorConfigurationRecord) error {
	rec.OrganizationID = organizationID
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO detector_configurations (id, organization_id, version, detector_code, thresholds, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		rec.ID, organizationID, rec.Version, rec.DetectorCode, mustJSON(rec.Thresholds.Data), rec.Enabled)
	if err != nil {
		return fmt.Errorf("repository: put detector configuration: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ActiveDetectorConfiguration(ctx context.Context, organizationID, detectorCode string) (*DetectorConfigurationRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, version, detector_code, thresholds, enabled, created_at
		FROM detector_configurations
		WHERE organization_id = $1 AND detector_code = $2 AND enabled = true
		ORDER BY version DESC LIMIT 1`,
		organizationID, detectorCode)

	var rec DetectorConfigurationRecord
	err := row.Scan(&rec.ID, &rec.OrganizationID, &rec.Version, &rec.DetectorCode, &rec.Thresholds, &rec.Enabled, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: active detector configuration: %w", err)
	}
	return &rec, nil
}
