// Package microsoft implements the live-query adapter for Microsoft 365 /
// Entra ID: enterprise application (service principal) enumeration via the
// Microsoft Graph API and sign-in audit events via the Graph Audit Logs
// API. Built on net/http + golang.org/x/oauth2 like the other REST
// adapters, since no pack repo ships a Graph SDK client.
package microsoft

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
	graphBase       = "https://graph.microsoft.com/v1.0"
	servicePrincURL = graphBase + "/servicePrincipals"
	signInLogsURL   = graphBase + "/auditLogs/signIns"
)

// Adapter implements connector.Connector for Microsoft 365 / Entra ID.
type Adapter struct {
	guard *connector.Guard
	oauth oauth2.Config
}

// New returns a Microsoft adapter with the given OAuth2 client config.
func New(oauthCfg oauth2.Config) *Adapter {
	return &Adapter{
		guard: connector.NewGuard(connector.PlatformMicrosoft, 10, 20, nil),
		oauth: oauthCfg,
	}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformMicrosoft }

func (a *Adapter) Authenticate(ctx context.Context, cred *vault.Credential) error {
	_, err := a.ValidateCredentials(ctx, cred)
	return err
}

func (a *Adapter) ValidateCredentials(ctx context.Context, cred *vault.Credential) (connector.ValidationResult, error) {
	client := platformrest.NewClient(ctx, connector.PlatformMicrosoft, cred, a.guard)
	req, err := http.NewRequest(http.MethodGet, graphBase+"/me", nil)
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
	client := platformrest.NewClient(ctx, connector.PlatformMicrosoft, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.RawAutomation, string, error) {
		url := servicePrincURL
		if pageCursor != "" {
			url = pageCursor // Graph returns an opaque @odata.nextLink
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
			Value []struct {
				AppID            string   `json:"appId"`
				DisplayName      string   `json:"displayName"`
				AppOwnerOrgID    string   `json:"appOwnerOrganizationId"`
				OAuth2PermScopes []struct {
					Value string `json:"value"`
				} `json:"oauth2PermissionScopes"`
			} `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformMicrosoft, Detail: err.Error()}
		}

		out := make([]connector.RawAutomation, 0, len(page.Value))
		for _, sp := range page.Value {
			scopes := make([]string, 0, len(sp.OAuth2PermScopes))
			for _, s := range sp.OAuth2PermScopes {
				scopes = append(scopes, s.Value)
			}
			out = append(out, connector.RawAutomation{
				ExternalID: sp.AppID,
				Name:       sp.DisplayName,
				Scopes:     scopes,
				CreatedAt:  time.Now(),
				RawMetadata: map[string]any{
					"appOwnerOrganizationId": sp.AppOwnerOrgID,
				},
			})
		}
		return out, page.NextLink, nil
	}

	return platformrest.NewPagedSequence(cursor, fetch), nil
}

func (a *Adapter) GetAuditLogs(ctx context.Context, cred *vault.Credential, query connector.AuditQuery) (connector.AuditLogSequence, error) {
	client := platformrest.NewClient(ctx, connector.PlatformMicrosoft, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.NormalizedAuditEvent, string, error) {
		url := signInLogsURL
		if pageCursor != "" {
			url = pageCursor
		} else if !query.Since.IsZero() {
			url = fmt.Sprintf("%s?$filter=createdDateTime ge %s", signInLogsURL, query.Since.Format(time.RFC3339))
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
			Value []struct {
				CreatedDateTime string `json:"createdDateTime"`
				UserPrincipal   string `json:"userPrincipalName"`
				AppDisplayName  string `json:"appDisplayName"`
			} `json:"value"`
			NextLink string `json:"@odata.nextLink"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformMicrosoft, Detail: err.Error()}
		}

		out := make([]connector.NormalizedAuditEvent, 0, len(page.Value))
		for _, it := range page.Value {
			occurredAt, _ := time.Parse(time.RFC3339, it.CreatedDateTime)
			out = append(out, connector.NormalizedAuditEvent{
				ActorEmail: it.UserPrincipal,
				Action:     "signIn:" + it.AppDisplayName,
				OccurredAt: occurredAt,
			})
		}
		return out, page.NextLink, nil
	}

	return platformrest.NewPagedSequence(query.Cursor, fetch), nil
}

func (a *Adapter) RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, &connector.PermanentAuthFailure{Platform: connector.PlatformMicrosoft, Cause: fmt.Errorf("no refresh token stored")}
	}
	newToken, err := a.oauth.TokenSource(ctx, cred.ToOAuth2Token()).Token()
	if err != nil {
		return nil, &connector.PermanentAuthFailure{Platform: connector.PlatformMicrosoft, Cause: err}
	}
	return &vault.Credential{
		Type:         vault.CredentialOAuth2,
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		ExpiresAt:    &newToken.Expiry,
	}, nil
}
