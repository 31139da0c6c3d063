// Package gemini implements the live-query adapter for Google Gemini
// Enterprise (Workspace add-on): connected-app enumeration and usage audit
// events via the Gemini Enterprise Admin API. Shares Google Workspace's
// OAuth2 identity but a distinct API surface, so it is its own adapter
// rather than folded into connector/google.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/connector/platformrest"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

const (
	geminiBase    = "https://geminienterprise.googleapis.com/v1"
	connectedApps = geminiBase + "/connectedApps"
	usageEvents   = geminiBase + "/usageEvents"
)

// Adapter implements connector.Connector for Gemini Enterprise.
type Adapter struct {
	guard *connector.Guard
	oauth oauth2.Config
}

// New returns a Gemini adapter with the given OAuth2 client config.
func New(oauthCfg oauth2.Config) *Adapter {
	return &Adapter{
		guard: connector.NewGuard(connector.PlatformGemini, 10, 20, nil),
		oauth: oauthCfg,
	}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformGemini }

func (a *Adapter) Authenticate(ctx context.Context, cred *vault.Credential) error {
	_, err := a.ValidateCredentials(ctx, cred)
	return err
}

func (a *Adapter) ValidateCredentials(ctx context.Context, cred *vault.Credential) (connector.ValidationResult, error) {
	client := platformrest.NewClient(ctx, connector.PlatformGemini, cred, a.guard)
	req, err := http.NewRequest(http.MethodGet, connectedApps+"?pageSize=1", nil)
	if err != nil {
		return connector.ValidationResult{}, err
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return connector.ValidationResult{Valid: false}, nil
	}
	defer resp.Body.Close()
	return connector.ValidationResult{Valid: true}, nil
}

func (a *Adapter) DiscoverAutomations(ctx context.Context, cred *vault.Credential, cursor string, filters connector.DiscoveryFilters) (connector.AutomationSequence, error) {
	client := platformrest.NewClient(ctx, connector.PlatformGemini, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.RawAutomation, string, error) {
		url := connectedApps
		if pageCursor != "" {
			url = fmt.Sprintf("%s?pageToken=%s", connectedApps, pageCursor)
		}
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := client.Do(ctx, req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()

		var page struct {
			Apps []struct {
				ClientID  string   `json:"clientId"`
				Name      string   `json:"displayName"`
				UserEmail string   `json:"authorizedByEmail"`
				Scopes    []string `json:"grantedScopes"`
			} `json:"connectedApps"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformGemini, Detail: err.Error()}
		}

		out := make([]connector.RawAutomation, 0, len(page.Apps))
		for _, app := range page.Apps {
			out = append(out, connector.RawAutomation{
				ExternalID: app.ClientID,
				Name:       app.Name,
				OwnerEmail: app.UserEmail,
				Scopes:     app.Scopes,
				CreatedAt:  time.Now(),
			})
		}
		return out, page.NextPageToken, nil
	}

	return platformrest.NewPagedSequence(cursor, fetch), nil
}

func (a *Adapter) GetAuditLogs(ctx context.Context, cred *vault.Credential, query connector.AuditQuery) (connector.AuditLogSequence, error) {
	client := platformrest.NewClient(ctx, connector.PlatformGemini, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.NormalizedAuditEvent, string, error) {
		url := usageEvents
		if pageCursor != "" {
			url = fmt.Sprintf("%s?pageToken=%s", usageEvents, pageCursor)
		} else if !query.Since.IsZero() {
			url = fmt.Sprintf("%s?startTime=%s", usageEvents, query.Since.Format(time.RFC3339))
		}
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := client.Do(ctx, req)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()

		var page struct {
			Events []struct {
				ActorEmail string `json:"actorEmail"`
				EventType  string `json:"eventType"`
				Timestamp  string `json:"timestamp"`
			} `json:"events"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformGemini, Detail: err.Error()}
		}

		out := make([]connector.NormalizedAuditEvent, 0, len(page.Events))
		for _, e := range page.Events {
			occurredAt, _ := time.Parse(time.RFC3339, e.Timestamp)
			out = append(out, connector.NormalizedAuditEvent{
				ActorEmail: e.ActorEmail,
				Action:     e.EventType,
				OccurredAt: occurredAt,
			})
		}
		return out, page.NextPageToken, nil
	}

	return platformrest.NewPagedSequence(query.Cursor, fetch), nil
}

func (a *Adapter) RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, &connector.PermanentAuthFailure{Platform: connector.PlatformGemini, Cause: fmt.Errorf("no refresh token stored")}
	}
	newToken, err := a.oauth.TokenSource(ctx, cred.ToOAuth2Token()).Token()
	if err != nil {
		return nil, &connector.PermanentAuthFailure{Platform: connector.PlatformGemini, Cause: err}
	}
	refreshToken := newToken.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	return &vault.Credential{
		Type:         vault.CredentialOAuth2,
		AccessToken:  newToken.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &newToken.Expiry,
	}, nil
}
