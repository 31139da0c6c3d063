package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
)

func (r *PostgresRepository) CreateConnection(ctx context.Context, organizationID string, c *PlatformConnection) error {
	c.OrganizationID = organizationID
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO connections
			(id, organization_id, platform, display_name, status, capabilities, sync_config, last_sync_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		c.ID, organizationID, string(c.Platform), c.DisplayName, c.Status, c.Capabilities,
		mustJSON(c.SyncConfiguration.Data), c.LastSyncAt, c.LastErrorMessage)
	if err != nil {
		return fmt.Errorf("repository: create connection: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetConnection(ctx context.Context, organizationID, connectionID string) (*PlatformConnection, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, platform, display_name, status, capabilities, sync_config,
		       last_sync_at, last_error, created_at, updated_at
		FROM connections
		WHERE organization_id = $1 AND id = $2`,
		organizationID, connectionID)
	return scanConnection(row)
}

func (r *PostgresRepository) ListConnections(ctx context.Context, organizationID string) ([]PlatformConnection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, platform, display_name, status, capabilities, sync_config,
		       last_sync_at, last_error, created_at, updated_at
		FROM connections
		WHERE organization_id = $1
		ORDER BY created_at DESC`,
		organizationID)
	if err != nil {
		return nil, fmt.Errorf("repository: list connections: %w", err)
	}
	defer rows.Close()

	var out []PlatformConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateConnectionStatus(ctx context.Context, organizationID, connectionID, status, lastErrorMessage string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE connections SET status = $1, last_error = $2, updated_at = now()
		WHERE organization_id = $3 AND id = $4`,
		status, lastErrorMessage, organizationID, connectionID)
	if err != nil {
		return fmt.Errorf("repository: update connection status: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *PostgresRepository) UpdateConnectionLastSync(ctx context.Context, organizationID, connectionID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE connections SET last_sync_at = $1, updated_at = now()
		WHERE organization_id = $2 AND id = $3`,
		at, organizationID, connectionID)
	if err != nil {
		return fmt.Errorf("repository: update connection last sync: %w", err)
	}
	return requireRowsAffected(res)
}

// DisconnectConnection hard-deletes the connection; ON DELETE CASCADE on
// credentials, discovery_runs and automations and the application layer's
// job-cancellation hook (the orchestrator's Queue.CancelConnection)
// implement the rest of the cascade.
func (r *PostgresRepository) DisconnectConnection(ctx context.Context, organizationID, connectionID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM connections WHERE organization_id = $1 AND id = $2`,
		organizationID, connectionID)
	if err != nil {
		return fmt.Errorf("repository: disconnect connection: %w", err)
	}
	return requireRowsAffected(res)
}

func (r *PostgresRepository) PutCredential(ctx context.Context, organizationID string, cred *EncryptedCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (connection_id, organization_id, ciphertext_access, ciphertext_refresh, metadata, encryption, integrity_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (connection_id) DO UPDATE SET
			ciphertext_access = EXCLUDED.ciphertext_access,
			ciphertext_refresh = EXCLUDED.ciphertext_refresh,
			metadata = EXCLUDED.metadata,
			encryption = EXCLUDED.encryption,
			integrity_hash = EXCLUDED.integrity_hash,
			updated_at = now()`,
		cred.ConnectionID, organizationID, cred.CiphertextAccess, cred.CiphertextRefresh,
		mustJSON(cred.Metadata.Data), mustJSON(cred.Encryption.Data), cred.Encryption.Data.IntegrityHash)
	if err != nil {
		return fmt.Errorf("repository: put credential: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetCredential(ctx context.Context, organizationID, connectionID string) (*EncryptedCredential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT connection_id, ciphertext_access, ciphertext_refresh, metadata, encryption, created_at, updated_at
		FROM credentials
		WHERE organization_id = $1 AND connection_id = $2`,
		organizationID, connectionID)

	var cred EncryptedCredential
	err := row.Scan(&cred.ConnectionID, &cred.CiphertextAccess, &cred.CiphertextRefresh,
		&cred.Metadata, &cred.Encryption, &cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get credential: %w", err)
	}
	return &cred, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (*PlatformConnection, error) {
	var c PlatformConnection
	var platform string
	err := row.Scan(&c.ID, &c.OrganizationID, &platform, &c.DisplayName, &c.Status, &c.Capabilities,
		&c.SyncConfiguration, &c.LastSyncAt, &c.LastErrorMessage, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: scan connection: %w", err)
	}
	c.Platform = connector.Platform(platform)
	return &c, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
