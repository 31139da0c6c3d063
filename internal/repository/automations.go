package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertAutomation inserts on first sight or, on an
// (organization_id, connection_id, external_id) collision, updates the
// mutable fields while preserving first_discovered_at and advancing
// last_seen_at monotonically via GREATEST.
func (r *PostgresRepository) UpsertAutomation(ctx context.Context, organizationID string, a *DiscoveredAutomation) error {
	a.OrganizationID = organizationID
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automations (
			id, organization_id, connection_id, discovery_run_id, external_id, name, description,
			automation_type, status, trigger_type, permissions_required, data_access_patterns,
			owner_info, platform_metadata, detection_metadata, first_discovered_at, last_seen_at,
			is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16, true, now(), now()
		)
		ON CONFLICT (organization_id, connection_id, external_id) DO UPDATE SET
			discovery_run_id = EXCLUDED.discovery_run_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type,
			permissions_required = EXCLUDED.permissions_required,
			data_access_patterns = EXCLUDED.data_access_patterns,
			owner_info = EXCLUDED.owner_info,
			platform_metadata = EXCLUDED.platform_metadata,
			detection_metadata = EXCLUDED.detection_metadata,
			last_seen_at = GREATEST(automations.last_seen_at, EXCLUDED.last_seen_at),
			is_active = true,
			updated_at = now()`,
		a.ID, organizationID, a.ConnectionID, a.DiscoveryRunID, a.ExternalID, a.Name, a.Description,
		a.AutomationType, a.Status, a.TriggerType, mustJSON(a.RequestedPermissions.Data),
		mustJSON(a.DataAccessPatterns.Data), mustJSON(a.OwnerInfo.Data), mustJSON(a.PlatformMetadata.Data),
		mustJSON(a.DetectionMetadata.Data), a.LastSeenAt)
	if err != nil {
		return fmt.Errorf("repository: upsert automation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetAutomation(ctx context.Context, organizationID, automationID string) (*DiscoveredAutomation, error) {
	row := r.db.QueryRowContext(ctx, automationSelect+` WHERE organization_id = $1 AND id = $2`,
		organizationID, automationID)
	return scanAutomation(row)
}

func (r *PostgresRepository) ListAutomations(ctx context.Context, organizationID string, filter AutomationFilter) ([]DiscoveredAutomation, error) {
	query := automationSelect + ` WHERE organization_id = $1 AND is_active = true`
	args := []interface{}{organizationID}

	if filter.ConnectionID != "" {
		args = append(args, filter.ConnectionID)
		query += fmt.Sprintf(" AND connection_id = $%d", len(args))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		query += fmt.Sprintf(` AND connection_id IN (SELECT id FROM connections WHERE platform = $%d)`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	// RiskLevel matches the overall_risk of the automation's most recent
	// risk_assessments row; automations never assessed do not match.
	if filter.RiskLevel != "" {
		args = append(args, filter.RiskLevel)
		query += fmt.Sprintf(` AND (SELECT ra.overall_risk FROM risk_assessments ra
			WHERE ra.organization_id = automations.organization_id AND ra.automation_id = automations.id
			ORDER BY ra.assessed_at DESC LIMIT 1) = $%d`, len(args))
	}
	query += " ORDER BY last_seen_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: list automations: %w", err)
	}
	defer rows.Close()

	var out []DiscoveredAutomation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SoftDeleteAutomation marks is_active=false, retrying the optimistic
// concurrency guard if the row changed between read and write.
func (r *PostgresRepository) SoftDeleteAutomation(ctx context.Context, organizationID, automationID string) error {
	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var updatedAt interface{}
		err := r.db.QueryRowContext(ctx, `
			SELECT updated_at FROM automations WHERE organization_id = $1 AND id = $2`,
			organizationID, automationID).Scan(&updatedAt)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("repository: soft delete automation: read: %w", err)
		}

		res, err := r.db.ExecContext(ctx, `
			UPDATE automations SET is_active = false, updated_at = now()
			WHERE organization_id = $1 AND id = $2 AND updated_at = $3`,
			organizationID, automationID, updatedAt)
		if err != nil {
			return fmt.Errorf("repository: soft delete automation: write: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("repository: soft delete automation: rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}
	}
	return ErrVersionConflict
}

const automationSelect = `
	SELECT id, organization_id, connection_id, discovery_run_id, external_id, name, description,
	       automation_type, status, trigger_type, permissions_required, data_access_patterns,
	       owner_info, platform_metadata, detection_metadata, first_discovered_at, last_seen_at,
	       is_active, created_at, updated_at
	FROM automations`

func scanAutomation(row rowScanner) (*DiscoveredAutomation, error) {
	var a DiscoveredAutomation
	err := row.Scan(&a.ID, &a.OrganizationID, &a.ConnectionID, &a.DiscoveryRunID, &a.ExternalID,
		&a.Name, &a.Description, &a.AutomationType, &a.Status, &a.TriggerType,
		&a.RequestedPermissions, &a.DataAccessPatterns, &a.OwnerInfo, &a.PlatformMetadata,
		&a.DetectionMetadata, &a.FirstDiscoveredAt, &a.LastSeenAt, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: scan automation: %w", err)
	}
	return &a, nil
}
