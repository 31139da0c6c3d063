package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionIsScopedToOwningOrganization(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateConnection(ctx, "org-1", &PlatformConnection{
		ID: "conn-1", Platform: connector.Platform("slack"), DisplayName: "Slack", Status: "active",
	}))

	_, err := repo.GetConnection(ctx, "org-2", "conn-1")
	assert.ErrorIs(t, err, ErrNotFound, "a connection must be invisible to a different organization")

	got, err := repo.GetConnection(ctx, "org-1", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "conn-1", got.ID)
}

func TestDisconnectConnectionCascadesCredentialAndAutomations(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateConnection(ctx, "org-1", &PlatformConnection{ID: "conn-1", Status: "active"}))
	require.NoError(t, repo.PutCredential(ctx, "org-1", &EncryptedCredential{ConnectionID: "conn-1"}))
	require.NoError(t, repo.UpsertAutomation(ctx, "org-1", &DiscoveredAutomation{
		ID: "auto-1", ConnectionID: "conn-1", ExternalID: "ext-1", LastSeenAt: time.Now(),
	}))

	require.NoError(t, repo.DisconnectConnection(ctx, "org-1", "conn-1"))

	_, err := repo.GetConnection(ctx, "org-1", "conn-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetCredential(ctx, "org-1", "conn-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetAutomation(ctx, "org-1", "auto-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertAutomationPreservesFirstDiscoveredAtAndAdvancesLastSeen(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := time.Now().Add(-time.Hour)
	a := &DiscoveredAutomation{ID: "auto-1", ConnectionID: "conn-1", ExternalID: "ext-1", Name: "bot-v1", LastSeenAt: first}
	require.NoError(t, repo.UpsertAutomation(ctx, "org-1", a))

	later := time.Now()
	update := &DiscoveredAutomation{ID: "auto-new-id", ConnectionID: "conn-1", ExternalID: "ext-1", Name: "bot-v2", LastSeenAt: later}
	require.NoError(t, repo.UpsertAutomation(ctx, "org-1", update))

	got, err := repo.GetAutomation(ctx, "org-1", "auto-1")
	require.NoError(t, err)
	assert.Equal(t, "bot-v2", got.Name)
	assert.WithinDuration(t, first, got.FirstDiscoveredAt, time.Second)
	assert.WithinDuration(t, later, got.LastSeenAt, time.Second)
}

func TestSoftDeleteAutomationHidesFromListButKeepsRow(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertAutomation(ctx, "org-1", &DiscoveredAutomation{
		ID: "auto-1", ConnectionID: "conn-1", ExternalID: "ext-1", LastSeenAt: time.Now(),
	}))
	require.NoError(t, repo.SoftDeleteAutomation(ctx, "org-1", "auto-1"))

	list, err := repo.ListAutomations(ctx, "org-1", AutomationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := repo.GetAutomation(ctx, "org-1", "auto-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestFeedbackCrossTenantLookupReturnsNotFoundNotForbidden(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateFeedback(ctx, "org-1", &FeedbackRecord{ID: "fb-1", AutomationID: "auto-1"}))

	_, err := repo.GetFeedback(ctx, "org-2", "fb-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMLTrainingBatchClampsToHundred(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		require.NoError(t, repo.CreateFeedback(ctx, "org-1", &FeedbackRecord{ID: time.Now().Format("150405.000000000") + string(rune(i)), AutomationID: "auto-1"}))
	}

	batch, err := repo.MLTrainingBatch(ctx, "org-1", 1000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(batch), 100)
}

func TestActiveDetectorConfigurationReturnsHighestEnabledVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.PutDetectorConfiguration(ctx, "org-1", &DetectorConfigurationRecord{ID: "v1", Version: 1, DetectorCode: "velocity", Enabled: true}))
	require.NoError(t, repo.PutDetectorConfiguration(ctx, "org-1", &DetectorConfigurationRecord{ID: "v2", Version: 2, DetectorCode: "velocity", Enabled: true}))

	active, err := repo.ActiveDetectorConfiguration(ctx, "org-1", "velocity")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
}

func TestRiskAssessmentHistoryOrdersNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	require.NoError(t, repo.PutRiskAssessment(ctx, "org-1", &RiskAssessmentRecord{ID: "r1", AutomationID: "auto-1", AssessedAt: older}))
	require.NoError(t, repo.PutRiskAssessment(ctx, "org-1", &RiskAssessmentRecord{ID: "r2", AutomationID: "auto-1", AssessedAt: newer}))

	history, err := repo.RiskAssessmentHistory(ctx, "org-1", "auto-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "r2", history[0].ID)
}
