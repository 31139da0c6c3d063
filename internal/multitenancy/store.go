package multitenancy

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// APIKey is a credential scoped to exactly one organization. The
// organization itself is never created or mutated here -- it is an
// opaque identifier issued by the external identity provider -- only
// the keys that authenticate as it.
type APIKey struct {
	KeyID          string
	OrganizationID string
	Name           string
	KeyHash        string
	Scopes         []string
	IsActive       bool
	CreatedAt      time.Time
	ExpiresAt      *time.Time
}

// Store persists API keys. Lookup is by KeyID alone because the
// organization is not yet known at that point in the auth flow -- the
// key is what reveals it.
type Store interface {
	CreateAPIKey(ctx context.Context, key *APIKey) error
	GetAPIKeyByKeyID(ctx context.Context, keyID string) (*APIKey, error)
}

const apiKeysMigration = `
CREATE TABLE IF NOT EXISTS api_keys (
	key_id          TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	key_hash        TEXT NOT NULL,
	scopes          TEXT[] NOT NULL DEFAULT '{}',
	is_active       BOOLEAN NOT NULL DEFAULT true,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS api_keys_organization_id_idx ON api_keys (organization_id);
`

// PostgresStore persists API keys alongside the rest of the system's
// state, via the same database/sql handle as the Repository Layer.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the api_keys table; safe to call alongside
// repository.PostgresRepository.Migrate against the same database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, apiKeysMigration)
	if err != nil {
		return fmt.Errorf("multitenancy: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (key_id, organization_id, name, key_hash, scopes, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		key.KeyID, key.OrganizationID, key.Name, key.KeyHash, pq.Array(key.Scopes), key.IsActive, key.ExpiresAt)
	if err != nil {
		return fmt.Errorf("multitenancy: create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key_id, organization_id, name, key_hash, scopes, is_active, created_at, expires_at
		FROM api_keys WHERE key_id = $1`, keyID)

	var k APIKey
	if err := row.Scan(&k.KeyID, &k.OrganizationID, &k.Name, &k.KeyHash, pq.Array(&k.Scopes), &k.IsActive, &k.CreatedAt, &k.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("multitenancy: get api key: %w", err)
	}
	return &k, nil
}

// MemoryStore is a hand-rolled fake for unit tests, mirroring
// repository.MemoryRepository's style.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*APIKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*APIKey)}
}

func (s *MemoryStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *key
	s.keys[key.KeyID] = &cp
	return nil
}

func (s *MemoryStore) GetAPIKeyByKeyID(ctx context.Context, keyID string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}
