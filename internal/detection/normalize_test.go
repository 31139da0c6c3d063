package detection

import (
	"testing"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDetectsAIPlatformFromRawMetadata(t *testing.T) {
	catalog := NewProviderCatalog()
	raw := connector.RawAutomation{
		ExternalID: "77377267392-abc123.apps.googleusercontent.com",
		Name:       "Drive Sync Bot",
		OwnerEmail: "admin@example.com",
		Scopes:     []string{"drive.readonly", "userinfo.email", "userinfo.profile", "openid"},
		CreatedAt:  time.Now(),
		RawMetadata: map[string]any{
			"oauthClientId": "77377267392-abc123.apps.googleusercontent.com",
			"unknownField":  "preserved-verbatim",
		},
	}

	n := Normalize(catalog, raw, MethodOAuthTokensAPI)

	assert.True(t, n.Detection.IsAIPlatform)
	assert.Equal(t, "OpenAI / ChatGPT", n.Detection.AIProvider)
	assert.Equal(t, "oauth_tokens_api", n.Detection.DetectionMethod)
	require.NotEmpty(t, n.Detection.RiskFactors)
	assert.Equal(t, "preserved-verbatim", n.PlatformMetadata["unknownField"])
}

func TestNormalizeNonAIAutomationHasNoRiskFactors(t *testing.T) {
	catalog := NewProviderCatalog()
	raw := connector.RawAutomation{
		ExternalID:  "internal-app-1",
		Name:        "Payroll Sync",
		RawMetadata: map[string]any{},
	}

	n := Normalize(catalog, raw, MethodAppDirectory)
	assert.False(t, n.Detection.IsAIPlatform)
	assert.Empty(t, n.Detection.RiskFactors)
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	window := 14 * 24 * time.Hour

	assert.False(t, IsStale(now.Add(-13*24*time.Hour), now, window))
	assert.True(t, IsStale(now.Add(-15*24*time.Hour), now, window))
}
