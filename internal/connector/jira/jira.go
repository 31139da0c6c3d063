// Package jira implements the live-query adapter for Atlassian Jira/
// Confluence Cloud: OAuth app ("Connect"/"Forge") enumeration via the
// Atlassian REST API and audit events via the Organization Audit Log API.
package jira

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

// Adapter implements connector.Connector for Jira Cloud.
type Adapter struct {
	guard        *connector.Guard
	oauth        oauth2.Config
	cloudBaseURL string // e.g. https://api.atlassian.com/ex/jira/{cloudId}
	auditURL     string // e.g. https://your-org.atlassian.net/admin/v1/orgs/{orgId}/events
}

// New returns a Jira adapter. cloudBaseURL and auditURL are resolved once
// per organization during onboarding (Jira's cloudId is opaque and fetched
// via the accessible-resources endpoint at connection-setup time, not
// re-derived on every call).
func New(oauthCfg oauth2.Config, cloudBaseURL, auditURL string) *Adapter {
	return &Adapter{
		guard:        connector.NewGuard(connector.PlatformJira, 10, 20, nil),
		oauth:        oauthCfg,
		cloudBaseURL: cloudBaseURL,
		auditURL:     auditURL,
	}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformJira }

func (a *Adapter) Authenticate(ctx context.Context, cred *vault.Credential) error {
	_, err := a.ValidateCredentials(ctx, cred)
	return err
}

func (a *Adapter) ValidateCredentials(ctx context.Context, cred *vault.Credential) (connector.ValidationResult, error) {
	client := platformrest.NewClient(ctx, connector.PlatformJira, cred, a.guard)
	req, err := http.NewRequest(http.MethodGet, a.cloudBaseURL+"/rest/api/3/myself", nil)
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
	client := platformrest.NewClient(ctx, connector.PlatformJira, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.RawAutomation, string, error) {
		url := a.cloudBaseURL + "/rest/atlassian-connect/1/addons"
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
				Key   string `json:"key"`
				Name  string `json:"name"`
				Scopes []string `json:"scopes"`
			} `json:"apps"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformJira, Detail: err.Error()}
		}

		out := make([]connector.RawAutomation, 0, len(page.Apps))
		for _, app := range page.Apps {
			out = append(out, connector.RawAutomation{
				ExternalID: app.Key,
				Name:       app.Name,
				Scopes:     app.Scopes,
				CreatedAt:  time.Now(),
			})
		}
		// Jira's Connect app list is not paginated; one page is the whole
		// sequence.
		return out, "", nil
	}

	return platformrest.NewPagedSequence(cursor, fetch), nil
}

func (a *Adapter) GetAuditLogs(ctx context.Context, cred *vault.Credential, query connector.AuditQuery) (connector.AuditLogSequence, error) {
	client := platformrest.NewClient(ctx, connector.PlatformJira, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.NormalizedAuditEvent, string, error) {
		url := a.auditURL
		if pageCursor != "" {
			url = fmt.Sprintf("%s?cursor=%s", a.auditURL, pageCursor)
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
			Values []struct {
				Action string `json:"action"`
				Time   string `json:"time"`
				Actor  struct {
					Email string `json:"email"`
				} `json:"actor"`
			} `json:"values"`
			Cursor string `json:"cursor"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformJira, Detail: err.Error()}
		}

		out := make([]connector.NormalizedAuditEvent, 0, len(page.Values))
		for _, v := range page.Values {
			occurredAt, _ := time.Parse(time.RFC3339, v.Time)
			out = append(out, connector.NormalizedAuditEvent{
				ActorEmail: v.Actor.Email,
				Action:     v.Action,
				OccurredAt: occurredAt,
			})
		}
		return out, page.Cursor, nil
	}

	return platformrest.NewPagedSequence(query.Cursor, fetch), nil
}

func (a *Adapter) RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, &connector.PermanentAuthFailure{Platform: connector.PlatformJira, Cause: fmt.Errorf("no refresh token stored")}
	}
	newToken, err := a.oauth.TokenSource(ctx, cred.ToOAuth2Token()).Token()
	if err != nil {
		return nil, &connector.PermanentAuthFailure{Platform: connector.PlatformJira, Cause: err}
	}
	return &vault.Credential{
		Type:         vault.CredentialOAuth2,
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		ExpiresAt:    &newToken.Expiry,
	}, nil
}
