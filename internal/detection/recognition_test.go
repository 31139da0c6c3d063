package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecognizeGoogleOAuthAppIsChatGPT reproduces spec.md §8 scenario 1:
// a Google OAuth app with clientId 77377267392-xxx.apps.googleusercontent.com
// and scopes {drive.readonly, userinfo.email, userinfo.profile, openid}
// should be recognized as OpenAI/ChatGPT with high confidence.
func TestRecognizeGoogleOAuthAppIsChatGPT(t *testing.T) {
	catalog := NewProviderCatalog()
	obs := Observable{
		OAuthClientID: "77377267392-abc123.apps.googleusercontent.com",
		Scopes:        []string{"drive.readonly", "userinfo.email", "userinfo.profile", "openid"},
	}

	matches := Recognize(catalog, obs)
	require.NotEmpty(t, matches)
	assert.Equal(t, "OpenAI / ChatGPT", matches[0].Provider)
	assert.GreaterOrEqual(t, matches[0].Confidence, 0.9)
}

func TestRecognizeStrongSignalShortCircuits(t *testing.T) {
	catalog := NewProviderCatalog()
	obs := Observable{APIEndpoint: "https://api.anthropic.com/v1/messages"}

	matches := Recognize(catalog, obs)
	require.NotEmpty(t, matches)
	assert.Equal(t, "Anthropic / Claude", matches[0].Provider)
	assert.Equal(t, strongConfidence, matches[0].Confidence)
}

func TestRecognizeSingleWeakSignalStaysBelowStrongConfidence(t *testing.T) {
	catalog := NewProviderCatalog()
	obs := Observable{AppName: "together-pipeline", UserAgent: "custom-agent"}

	matches := Recognize(catalog, obs)
	require.NotEmpty(t, matches)
	// Only the app-name weak signal (0.4) should hit for Together.ai here.
	assert.Less(t, matches[0].Confidence, strongConfidence)
	assert.Greater(t, matches[0].Confidence, 0.0)
}

func TestRecognizeNoMatchReturnsEmpty(t *testing.T) {
	catalog := NewProviderCatalog()
	matches := Recognize(catalog, Observable{AppName: "internal-payroll-sync"})
	assert.Empty(t, matches)
}
