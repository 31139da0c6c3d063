// Package chatgpt implements the live-query adapter for OpenAI's ChatGPT
// Enterprise Compliance API: workspace connector/GPT enumeration and audit
// events.
package chatgpt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/connector/platformrest"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

const (
	complianceBase = "https://api.openai.com/v1/compliance"
	gptsURL        = complianceBase + "/workspace_gpts"
	auditURL       = complianceBase + "/audit_logs"
)

// Adapter implements connector.Connector for ChatGPT Enterprise. ChatGPT
// Compliance API access uses a long-lived workspace API key rather than
// OAuth2, so credential type is api_key and RefreshCredentials returns
// connector.ErrNotRefreshable: there is nothing to exchange, the key simply doesn't expire
// until an admin rotates it.
type Adapter struct {
	guard *connector.Guard
}

// New returns a ChatGPT adapter.
func New() *Adapter {
	return &Adapter{guard: connector.NewGuard(connector.PlatformChatGPT, 5, 10, nil)}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformChatGPT }

func (a *Adapter) Authenticate(ctx context.Context, cred *vault.Credential) error {
	_, err := a.ValidateCredentials(ctx, cred)
	return err
}

func (a *Adapter) ValidateCredentials(ctx context.Context, cred *vault.Credential) (connector.ValidationResult, error) {
	client := platformrest.NewClient(ctx, connector.PlatformChatGPT, cred, a.guard)
	req, err := http.NewRequest(http.MethodGet, gptsURL+"?limit=1", nil)
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
	client := platformrest.NewClient(ctx, connector.PlatformChatGPT, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.RawAutomation, string, error) {
		url := gptsURL
		if pageCursor != "" {
			url = fmt.Sprintf("%s?after=%s", gptsURL, pageCursor)
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
			Data []struct {
				ID        string `json:"id"`
				Name      string `json:"name"`
				OwnerID   string `json:"owner_email"`
				CreatedAt int64  `json:"created_at"`
			} `json:"data"`
			HasMore bool   `json:"has_more"`
			LastID  string `json:"last_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformChatGPT, Detail: err.Error()}
		}

		out := make([]connector.RawAutomation, 0, len(page.Data))
		for _, gpt := range page.Data {
			out = append(out, connector.RawAutomation{
				ExternalID: gpt.ID,
				Name:       gpt.Name,
				OwnerEmail: gpt.OwnerID,
				CreatedAt:  time.Unix(gpt.CreatedAt, 0),
			})
		}
		next := ""
		if page.HasMore {
			next = page.LastID
		}
		return out, next, nil
	}

	return platformrest.NewPagedSequence(cursor, fetch), nil
}

func (a *Adapter) GetAuditLogs(ctx context.Context, cred *vault.Credential, query connector.AuditQuery) (connector.AuditLogSequence, error) {
	client := platformrest.NewClient(ctx, connector.PlatformChatGPT, cred, a.guard)

	fetch := func(ctx context.Context, pageCursor string) ([]connector.NormalizedAuditEvent, string, error) {
		url := auditURL
		if pageCursor != "" {
			url = fmt.Sprintf("%s?after=%s", auditURL, pageCursor)
		} else if !query.Since.IsZero() {
			url = fmt.Sprintf("%s?since_timestamp=%d", auditURL, query.Since.Unix())
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
			Data []struct {
				ID        string `json:"id"`
				Type      string `json:"type"`
				ActorID   string `json:"actor_email"`
				EffectiveAt int64 `json:"effective_at"`
			} `json:"data"`
			HasMore bool   `json:"has_more"`
			LastID  string `json:"last_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return nil, "", &connector.InvariantViolation{Platform: connector.PlatformChatGPT, Detail: err.Error()}
		}

		out := make([]connector.NormalizedAuditEvent, 0, len(page.Data))
		for _, e := range page.Data {
			out = append(out, connector.NormalizedAuditEvent{
				ExternalID: e.ID,
				ActorEmail: e.ActorID,
				Action:     e.Type,
				OccurredAt: time.Unix(e.EffectiveAt, 0),
			})
		}
		next := ""
		if page.HasMore {
			next = page.LastID
		}
		return out, next, nil
	}

	return platformrest.NewPagedSequence(query.Cursor, fetch), nil
}

func (a *Adapter) RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error) {
	return nil, connector.ErrNotRefreshable
}
