//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Run with: go test -tags=integration ./internal/repository/...
// against a real Postgres reachable at DISCOVERY_TEST_DATABASE_URL.
func TestPostgresRepositoryRoundTripsAConnection(t *testing.T) {
	dsn := os.Getenv("DISCOVERY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DISCOVERY_TEST_DATABASE_URL not set")
	}

	repo, err := NewPostgresRepository(dsn, nil)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	require.NoError(t, repo.Migrate(ctx))

	conn := &PlatformConnection{
		ID:          "it-conn-1",
		Platform:    "slack",
		DisplayName: "Integration Slack",
		Status:      "active",
	}
	require.NoError(t, repo.CreateConnection(ctx, "it-org-1", conn))
	defer repo.DisconnectConnection(ctx, "it-org-1", conn.ID)

	got, err := repo.GetConnection(ctx, "it-org-1", conn.ID)
	require.NoError(t, err)
	require.Equal(t, conn.DisplayName, got.DisplayName)

	require.NoError(t, repo.UpdateConnectionLastSync(ctx, "it-org-1", conn.ID, time.Now()))
}
