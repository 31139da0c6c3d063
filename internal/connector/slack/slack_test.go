package slack

import (
	"context"
	"errors"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

type fakeSlackClient struct {
	authErr error
}

func (f *fakeSlackClient) GetTeamInfoContext(ctx context.Context) (*goslack.TeamInfo, error) {
	return &goslack.TeamInfo{}, nil
}

func (f *fakeSlackClient) AuthTestContext(ctx context.Context) (*goslack.AuthTestResponse, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &goslack.AuthTestResponse{}, nil
}

func newTestAdapter(fake *fakeSlackClient) *Adapter {
	return &Adapter{newClient: func(token string) slackClient { return fake }}
}

func TestAuthenticateSucceedsWithValidToken(t *testing.T) {
	a := newTestAdapter(&fakeSlackClient{})
	err := a.Authenticate(context.Background(), &vault.Credential{AccessToken: "xoxb-test"})
	assert.NoError(t, err)
}

func TestAuthenticateReturnsExpiredCredentialsOnFailure(t *testing.T) {
	a := newTestAdapter(&fakeSlackClient{authErr: errors.New("invalid_auth")})
	err := a.Authenticate(context.Background(), &vault.Credential{AccessToken: "xoxb-bad"})
	var expired *connector.ExpiredCredentials
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, connector.PlatformSlack, expired.Platform)
}

func TestValidateCredentialsReportsInvalidOnFailure(t *testing.T) {
	a := newTestAdapter(&fakeSlackClient{authErr: errors.New("invalid_auth")})
	result, err := a.ValidateCredentials(context.Background(), &vault.Credential{AccessToken: "xoxb-bad"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestValidateCredentialsReportsValidOnSuccess(t *testing.T) {
	a := newTestAdapter(&fakeSlackClient{})
	result, err := a.ValidateCredentials(context.Background(), &vault.Credential{AccessToken: "xoxb-test"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestDiscoverAutomationsSurfacesMissingPermissions(t *testing.T) {
	a := newTestAdapter(&fakeSlackClient{})
	seq, err := a.DiscoverAutomations(context.Background(), &vault.Credential{AccessToken: "xoxb-test"}, "", connector.DiscoveryFilters{})
	assert.Nil(t, seq)
	var missing *connector.MissingPermissions
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, connector.PlatformSlack, missing.Platform)
	assert.Contains(t, missing.Scopes, scopeAdminAppsRead)
}

func TestGetAuditLogsReturnsExhaustedSequence(t *testing.T) {
	a := newTestAdapter(&fakeSlackClient{})
	seq, err := a.GetAuditLogs(context.Background(), &vault.Credential{AccessToken: "xoxb-test"}, connector.AuditQuery{Cursor: "abc"})
	require.NoError(t, err)
	_, ok, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "abc", seq.Cursor())
}

func TestRefreshCredentialsIsNotSupported(t *testing.T) {
	a := newTestAdapter(&fakeSlackClient{})
	_, err := a.RefreshCredentials(context.Background(), &vault.Credential{AccessToken: "xoxb-test"})
	assert.ErrorIs(t, err, connector.ErrNotRefreshable)
}
