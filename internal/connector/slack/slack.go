// Package slack implements the Slack platform adapter: auth/credential
// validation via the Slack Web API. App enumeration always reports a
// permission shortfall and audit log collection always returns an empty
// sequence, since both require Enterprise Grid admin scopes the plain bot
// token this adapter authenticates with can never carry. Slack bot tokens never
// expire, so RefreshCredentials always returns connector.ErrNotRefreshable
// (spec.md §4.2). Uses github.com/slack-go/slack, adopted from the
// jordigilh-kubernaut example -- the only pack repo with a Slack SDK
// dependency.
package slack

import (
	"context"

	goslack "github.com/slack-go/slack"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

// scopeAdminAppsRead is the Enterprise Grid admin scope app enumeration
// requires. A standard (non-Grid) workspace token can never carry it.
const scopeAdminAppsRead = "admin.apps:read"

// Adapter implements connector.Connector for Slack.
type Adapter struct {
	newClient func(token string) slackClient
}

// slackClient narrows goslack.Client to the calls this adapter needs, so
// tests can substitute a fake without hitting the network.
type slackClient interface {
	GetTeamInfoContext(ctx context.Context) (*goslack.TeamInfo, error)
	AuthTestContext(ctx context.Context) (*goslack.AuthTestResponse, error)
}

// New returns a Slack adapter backed by the real goslack.Client.
func New() *Adapter {
	return &Adapter{
		newClient: func(token string) slackClient {
			return &liveClient{client: goslack.New(token)}
		},
	}
}

func (a *Adapter) Platform() connector.Platform { return connector.PlatformSlack }

func (a *Adapter) Authenticate(ctx context.Context, cred *vault.Credential) error {
	client := a.newClient(cred.AccessToken)
	_, err := client.AuthTestContext(ctx)
	if err != nil {
		return &connector.ExpiredCredentials{Platform: connector.PlatformSlack}
	}
	return nil
}

func (a *Adapter) ValidateCredentials(ctx context.Context, cred *vault.Credential) (connector.ValidationResult, error) {
	client := a.newClient(cred.AccessToken)
	_, err := client.AuthTestContext(ctx)
	if err != nil {
		return connector.ValidationResult{Valid: false}, nil
	}
	return connector.ValidationResult{Valid: true}, nil
}

// DiscoverAutomations enumerates installed Slack apps/bots. App enumeration
// is an Enterprise Grid admin API (admin.apps.approved.list /
// admin.apps.requests.list); slack-go does not expose it on the plain
// *Client this adapter authenticates with, and a standard-workspace bot
// token can never carry the admin.apps:read scope needed to call it. Rather
// than fail as though the connector were broken, this surfaces the gap as a
// permission shortfall: the connector stays registered and audit-log
// collection keeps working, matching the "partially functional, not
// broken" edge policy.
func (a *Adapter) DiscoverAutomations(ctx context.Context, cred *vault.Credential, cursor string, filters connector.DiscoveryFilters) (connector.AutomationSequence, error) {
	return nil, &connector.MissingPermissions{Platform: connector.PlatformSlack, Scopes: []string{scopeAdminAppsRead}}
}

func (a *Adapter) GetAuditLogs(ctx context.Context, cred *vault.Credential, query connector.AuditQuery) (connector.AuditLogSequence, error) {
	// The Slack Audit Logs API is Enterprise Grid-only and this adapter does
	// not call it: every workspace gets an empty, already-exhausted sequence
	// rather than an error,
	// matching the edge policy "partially functional, not broken."
	return &auditSequence{cursor: query.Cursor}, nil
}

func (a *Adapter) RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error) {
	return nil, connector.ErrNotRefreshable
}

type auditSequence struct {
	cursor string
}

func (s *auditSequence) Next(ctx context.Context) (connector.NormalizedAuditEvent, bool, error) {
	return connector.NormalizedAuditEvent{}, false, nil
}

func (s *auditSequence) Cursor() string { return s.cursor }

// liveClient wraps *goslack.Client to satisfy slackClient.
type liveClient struct {
	client *goslack.Client
}

func (l *liveClient) GetTeamInfoContext(ctx context.Context) (*goslack.TeamInfo, error) {
	return l.client.GetTeamInfoContext(ctx)
}

func (l *liveClient) AuthTestContext(ctx context.Context) (*goslack.AuthTestResponse, error) {
	return l.client.AuthTestContext(ctx)
}
