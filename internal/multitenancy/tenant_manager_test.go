package multitenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndValidateAPIKeyRoundTrips(t *testing.T) {
	om := NewOrganizationManager(NewMemoryStore())
	ctx := context.Background()

	_, fullKey, err := om.CreateAPIKey(ctx, "org-1", "ci token", []string{"discovery:read"})
	require.NoError(t, err)

	orgID, err := om.ValidateAPIKey(ctx, fullKey)
	require.NoError(t, err)
	assert.Equal(t, "org-1", orgID)
}

func TestValidateAPIKeyRejectsWrongSecret(t *testing.T) {
	om := NewOrganizationManager(NewMemoryStore())
	ctx := context.Background()

	_, fullKey, err := om.CreateAPIKey(ctx, "org-1", "ci token", nil)
	require.NoError(t, err)

	tampered := fullKey[:len(fullKey)-4] + "0000"
	_, err = om.ValidateAPIKey(ctx, tampered)
	assert.Error(t, err)
}

func TestValidateAPIKeyRejectsMalformedKey(t *testing.T) {
	om := NewOrganizationManager(NewMemoryStore())
	_, err := om.ValidateAPIKey(context.Background(), "not-an-api-key")
	assert.Error(t, err)
}

func TestOrganizationContextRoundTrips(t *testing.T) {
	ctx := WithOrganization(context.Background(), "org-9")
	id, err := OrganizationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "org-9", id)

	_, err = OrganizationID(context.Background())
	assert.Error(t, err)
}
