package repository

import (
	"context"
	"database/sql"
	"fmt"
)

func (r *PostgresRepository) CreateDiscoveryRun(ctx context.Context, organizationID string, run *DiscoveryRun) error {
	run.OrganizationID = organizationID
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discovery_runs (id, organization_id, connection_id, status, started_at, completed_at, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, organizationID, run.ConnectionID, run.Status, run.StartedAt, run.CompletedAt,
		mustJSON(run.Stats.Data))
	if err != nil {
		return fmt.Errorf("repository: create discovery run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateDiscoveryRunStatus(ctx context.Context, organizationID, runID, status string, stats DiscoveryRunStats) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE discovery_runs
		SET status = $1, stats = $2,
		    completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END
		WHERE organization_id = $3 AND id = $4`,
		status, mustJSON(stats), organizationID, runID)
	if err != nil {
		return fmt.Errorf("repository: update discovery run status: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *PostgresRepository) GetDiscoveryRun(ctx context.Context, organizationID, runID string) (*DiscoveryRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, connection_id, status, started_at, completed_at, stats
		FROM discovery_runs
		WHERE organization_id = $1 AND id = $2`,
		organizationID, runID)

	var run DiscoveryRun
	err := row.Scan(&run.ID, &run.OrganizationID, &run.ConnectionID, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.Stats)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get discovery run: %w", err)
	}
	return &run, nil
}
