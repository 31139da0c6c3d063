package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelateGroupsOnTwoIndependentSignals(t *testing.T) {
	candidates := []CorrelationCandidate{
		{AutomationID: "a1", Platform: "google", OwnerEmail: "admin@example.com", OAuthClientID: "client-1"},
		{AutomationID: "a2", Platform: "slack", OwnerEmail: "admin@example.com", OAuthClientID: "client-1"},
		{AutomationID: "a3", Platform: "jira", OwnerEmail: "other@example.com"},
	}

	classes := Correlate(candidates)
	require.Len(t, classes, 1)
	assert.ElementsMatch(t, []string{"a1", "a2"}, classes[0].AutomationIDs)
	assert.GreaterOrEqual(t, len(classes[0].Signals), requiredSignals)
}

func TestCorrelateIgnoresSingleWeakSignal(t *testing.T) {
	candidates := []CorrelationCandidate{
		{AutomationID: "a1", OwnerEmail: "admin@example.com"},
		{AutomationID: "a2", OwnerEmail: "admin@example.com"},
	}

	classes := Correlate(candidates)
	assert.Empty(t, classes, "a single shared signal must not correlate")
}

func TestCorrelateEmptyOnFewerThanTwoCandidates(t *testing.T) {
	assert.Empty(t, Correlate(nil))
	assert.Empty(t, Correlate([]CorrelationCandidate{{AutomationID: "a1"}}))
}
