package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

//go:embed migrations/0001_init.sql
var initMigration string

// PostgresRepository is the production Repository, backed by
// database/sql + lib/pq. Every method's SQL filters on organization_id,
// following the teacher's internal/database/supabase.go CRUD-per-entity
// shape, generalized from the Supabase REST client to a relational
// driver because the schema (§6 of the platform's external interfaces)
// is explicitly relational with jsonb columns and partial unique
// indexes that read naturally as Postgres DDL.
type PostgresRepository struct {
	db     *sql.DB
	logger *log.Logger
}

// NewPostgresRepository opens a connection pool against dsn.
func NewPostgresRepository(dsn string, logger *log.Logger) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: ping postgres: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[REPOSITORY] ", log.LstdFlags)
	}
	return &PostgresRepository{db: db, logger: logger}, nil
}

// Migrate applies the embedded schema. Idempotent: every statement uses
// IF NOT EXISTS, so re-running on an already-migrated database is a no-op.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, initMigration); err != nil {
		return fmt.Errorf("repository: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// DB exposes the underlying pool so sibling stores (multitenancy's
// API-key store) can share one connection pool instead of opening a
// second one against the same database.
func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

var _ Repository = (*PostgresRepository)(nil)
