package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectionUpdateValidatesRequiredFields(t *testing.T) {
	_, err := NewConnectionUpdate("org-1", ConnectionUpdateData{})
	assert.Error(t, err)
}

func TestNewConnectionUpdateSucceedsWithValidPayload(t *testing.T) {
	ev, err := NewConnectionUpdate("org-1", ConnectionUpdateData{
		ConnectionID: "conn-1",
		Status:       "active",
		Platform:     "slack",
		At:           time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, KindConnectionUpdate, ev.Type)
	assert.Equal(t, "org-1", ev.OrganizationID)
	assert.Equal(t, "conn-1", ev.ConnectionID)
	assert.Equal(t, "active", ev.Data["status"])
}

func TestNewDiscoveryProgressRejectsOutOfRangeProgress(t *testing.T) {
	_, err := NewDiscoveryProgress("org-1", DiscoveryProgressData{
		ConnectionID: "conn-1",
		Progress:     150,
		Status:       "running",
		At:           time.Now(),
	})
	assert.Error(t, err)
}

func TestNewAutomationDiscoveredRejectsUnknownRiskLevel(t *testing.T) {
	_, err := NewAutomationDiscovered("org-1", AutomationDiscoveredData{
		AutomationID: "auto-1",
		Name:         "shadow-bot",
		Platform:     "slack",
		RiskLevel:    "extreme",
		At:           time.Now(),
	})
	assert.Error(t, err)
}

func TestSSEFormatIncludesTypeAndID(t *testing.T) {
	ev, err := NewSystemNotification("org-1", SystemNotificationData{
		Level:   "info",
		Message: "discovery started",
		At:      time.Now(),
	})
	require.NoError(t, err)

	out, err := ev.SSEFormat()
	require.NoError(t, err)
	assert.Contains(t, string(out), "event: system:notification")
	assert.Contains(t, string(out), ev.ID)
}

func TestCoalesceKeyIsSharedAcrossSameConnection(t *testing.T) {
	a, _ := NewDiscoveryProgress("org-1", DiscoveryProgressData{ConnectionID: "conn-1", Progress: 10, Status: "running", At: time.Now()})
	b, _ := NewDiscoveryProgress("org-1", DiscoveryProgressData{ConnectionID: "conn-1", Progress: 40, Status: "running", At: time.Now()})
	assert.Equal(t, a.coalesceKey(), b.coalesceKey())
	assert.True(t, a.coalesceable())
}

func TestAutomationDiscoveredIsNeverCoalesceable(t *testing.T) {
	ev, _ := NewAutomationDiscovered("org-1", AutomationDiscoveredData{
		AutomationID: "auto-1", Name: "bot", Platform: "slack", RiskLevel: "high", At: time.Now(),
	})
	assert.False(t, ev.coalesceable())
}
