package feedback

import (
	"testing"

	"github.com/shadowatlas/discovery-core/internal/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigVersionStorePushActivatesAndDeactivatesPrior(t *testing.T) {
	store := NewConfigVersionStore()

	v1 := store.Push("org-1", detection.DefaultDetectorConfiguration(), "system:rl-loop", "initial")
	assert.True(t, v1.Active)
	assert.Equal(t, 1, v1.Version)

	cfg2 := detection.DefaultDetectorConfiguration()
	cfg2.VelocityThreshold = 50
	v2 := store.Push("org-1", cfg2, "system:rl-loop", "drift detected")
	assert.True(t, v2.Active)
	assert.Equal(t, 2, v2.Version)
	assert.False(t, v1.Active)

	assert.Equal(t, v2, store.Active("org-1"))
}

func TestConfigVersionStoreRollback(t *testing.T) {
	store := NewConfigVersionStore()
	store.Push("org-1", detection.DefaultDetectorConfiguration(), "system", "v1")
	store.Push("org-1", detection.DefaultDetectorConfiguration(), "system", "v2")

	target, err := store.Rollback("org-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, target.Version)
	assert.Equal(t, target, store.Active("org-1"))
}

func TestConfigVersionStoreRollbackRejectsOutOfRange(t *testing.T) {
	store := NewConfigVersionStore()
	store.Push("org-1", detection.DefaultDetectorConfiguration(), "system", "v1")

	_, err := store.Rollback("org-1", 5)
	assert.Error(t, err)
}

func TestConfigVersionStoreIsolatesByOrganization(t *testing.T) {
	store := NewConfigVersionStore()
	store.Push("org-1", detection.DefaultDetectorConfiguration(), "system", "v1")

	assert.Nil(t, store.Active("org-2"))
}
