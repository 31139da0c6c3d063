package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowatlas/discovery-core/internal/circuitbreaker"
	"github.com/shadowatlas/discovery-core/internal/vault"
)

type fakeConnector struct {
	platform Platform
}

func (f *fakeConnector) Platform() Platform { return f.platform }
func (f *fakeConnector) Authenticate(ctx context.Context, cred *vault.Credential) error {
	return nil
}
func (f *fakeConnector) ValidateCredentials(ctx context.Context, cred *vault.Credential) (ValidationResult, error) {
	return ValidationResult{Valid: true}, nil
}
func (f *fakeConnector) DiscoverAutomations(ctx context.Context, cred *vault.Credential, cursor string, filters DiscoveryFilters) (AutomationSequence, error) {
	return nil, nil
}
func (f *fakeConnector) GetAuditLogs(ctx context.Context, cred *vault.Credential, query AuditQuery) (AuditLogSequence, error) {
	return nil, nil
}
func (f *fakeConnector) RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error) {
	return nil, ErrNotRefreshable
}

func TestRegistryGetSetsByPlatform(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeConnector{platform: PlatformSlack})
	reg.Register(&fakeConnector{platform: PlatformGoogle})

	c, ok := reg.Get(PlatformSlack)
	require.True(t, ok)
	assert.Equal(t, PlatformSlack, c.Platform())

	_, ok = reg.Get(PlatformJira)
	assert.False(t, ok)
}

func TestBackoffStaysWithinBaseAndJitteredCap(t *testing.T) {
	base := 2 * time.Second
	max := 30 * time.Second

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := Backoff(attempt, base, max)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, max+max/4)
		if attempt > 1 {
			_ = prev // backoff includes jitter, only assert the cap holds
		}
		prev = d
	}
}

func TestGuardRejectsWhenCircuitOpen(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig("test-slack")
	cfg.ReadyToTrip = func(counts circuitbreaker.Counts) bool {
		return counts.Requests >= 3 && counts.FailureRatio() > 0.5
	}
	guard := NewGuard(PlatformSlack, 1000, 1000, cfg)

	// Trip the breaker with failures.
	for i := 0; i < 10; i++ {
		_ = guard.Do(context.Background(), func(ctx context.Context) error {
			return assert.AnError
		})
	}

	err := guard.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	var transient *TransientPlatformError
	assert.ErrorAs(t, err, &transient)
}
