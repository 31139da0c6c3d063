package connector

import (
	"golang.org/x/oauth2"

	"github.com/shadowatlas/discovery-core/internal/config"
)

// platformEndpoints carries the OAuth2 authorization/token URLs and scopes
// each adapter needs to build its own oauth2.Config; kept out of the
// adapter packages themselves since the adapters only ever see an
// already-obtained token, never the handshake endpoints.
var platformEndpoints = map[Platform]struct {
	endpoint oauth2.Endpoint
	scopes   []string
}{
	PlatformGoogle: {
		endpoint: oauth2.Endpoint{AuthURL: "https://accounts.google.com/o/oauth2/auth", TokenURL: "https://oauth2.googleapis.com/token"},
		scopes:   []string{"https://www.googleapis.com/auth/admin.directory.user.readonly", "https://www.googleapis.com/auth/admin.reports.audit.readonly"},
	},
	PlatformMicrosoft: {
		endpoint: oauth2.Endpoint{AuthURL: "https://login.microsoftonline.com/common/oauth2/v2.0/authorize", TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token"},
		scopes:   []string{"Application.Read.All", "AuditLog.Read.All"},
	},
	PlatformJira: {
		endpoint: oauth2.Endpoint{AuthURL: "https://auth.atlassian.com/authorize", TokenURL: "https://auth.atlassian.com/oauth/token"},
		scopes:   []string{"read:jira-work", "manage:jira-webhook"},
	},
	PlatformGemini: {
		endpoint: oauth2.Endpoint{AuthURL: "https://accounts.google.com/o/oauth2/auth", TokenURL: "https://oauth2.googleapis.com/token"},
		scopes:   []string{"https://www.googleapis.com/auth/cloud-platform.read-only"},
	},
}

// BuildOAuthConfigs builds one oauth2.Config per OAuth-handshake platform
// (Slack, ChatGPT, and Claude authenticate by bot/API token instead and
// have no entry here), shared between the API server (which needs it for
// the authorization-url/code-exchange handshake) and the worker (which
// needs it to construct platform adapters capable of refreshing tokens).
func BuildOAuthConfigs(cfg config.ConnectorsConfig) map[Platform]*oauth2.Config {
	return map[Platform]*oauth2.Config{
		PlatformGoogle:    platformOAuthConfig(cfg.Google, PlatformGoogle),
		PlatformMicrosoft: platformOAuthConfig(cfg.Microsoft, PlatformMicrosoft),
		PlatformJira:      platformOAuthConfig(cfg.Jira, PlatformJira),
		PlatformGemini:    platformOAuthConfig(cfg.Gemini, PlatformGemini),
	}
}

func platformOAuthConfig(c config.PlatformOAuthConfig, platform Platform) *oauth2.Config {
	ep := platformEndpoints[platform]
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     ep.endpoint,
		Scopes:       ep.scopes,
	}
}
