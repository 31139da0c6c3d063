package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// CredentialType discriminates how a connection's secret material should be
// coerced back into a usable client on read, per spec.md §4.2.
type CredentialType string

const (
	CredentialOAuth2    CredentialType = "oauth2"
	CredentialBearer    CredentialType = "bearer_token"
	CredentialAPIKey    CredentialType = "api_key"
)

// Credential is the decrypted, in-memory view of an EncryptedCredential row.
// The vault never persists this struct directly -- only its sealed bytes.
type Credential struct {
	Type         CredentialType
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time // nil means the credential does not expire (Open Question 1)
	APIKey       string
}

// oauth2Payload is the JSON shape actually encrypted for CredentialOAuth2
// connections. It intentionally excludes oauth2.Token's TokenType and Extra
// fields: the vault stores only what Seal/Open need to reconstruct a usable
// token, never the full SDK struct (spec.md §4.2).
type oauth2Payload struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// MarshalForSeal serializes a Credential to the plaintext bytes that get
// passed to Vault.Seal. Separated from Seal itself so the vault package
// stays agnostic to credential shape and only handles bytes.
func MarshalForSeal(c *Credential) ([]byte, error) {
	switch c.Type {
	case CredentialOAuth2:
		return json.Marshal(oauth2Payload{
			AccessToken:  c.AccessToken,
			RefreshToken: c.RefreshToken,
			ExpiresAt:    c.ExpiresAt,
		})
	case CredentialBearer, CredentialAPIKey:
		return json.Marshal(oauth2Payload{AccessToken: c.AccessToken})
	default:
		return nil, fmt.Errorf("vault: unknown credential type %q", c.Type)
	}
}

// UnmarshalFromOpen is MarshalForSeal's inverse, applied to the plaintext
// bytes returned by Vault.Open.
func UnmarshalFromOpen(credType CredentialType, plaintext []byte) (*Credential, error) {
	var p oauth2Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("vault: unmarshal credential: %w", err)
	}
	return &Credential{
		Type:         credType,
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
	}, nil
}

// ToOAuth2Token builds an *oauth2.Token view of an OAuth2 credential so a
// connector can hand it to oauth2.StaticTokenSource / a platform's own
// TokenSource wrapper. Only ever constructed transiently; never persisted.
func (c *Credential) ToOAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
	}
	if c.ExpiresAt != nil {
		tok.Expiry = *c.ExpiresAt
	}
	return tok
}

// NeedsRefresh reports whether an OAuth2 credential should be refreshed
// proactively, i.e. its expiry falls within bufferSec of now. Credentials
// with a nil ExpiresAt (Open Question 1 -- non-expiring secrets like a Slack
// bot token) never need a refresh.
func (c *Credential) NeedsRefresh(bufferSec int) bool {
	if c.Type != CredentialOAuth2 || c.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(time.Duration(bufferSec) * time.Second).After(*c.ExpiresAt)
}

// RefreshFunc performs the platform-specific network call to exchange a
// refresh token for a new access token. Implemented per-connector.
type RefreshFunc func(ctx context.Context, cred *Credential) (*Credential, error)

// RefreshCoordinator serializes concurrent refresh attempts for the same
// connectionId so two goroutines racing to refresh an expiring token don't
// both hit the platform's token endpoint and potentially invalidate each
// other's refresh token. Grounded on internal/middleware/rate_limiter.go's
// per-key mutex-map idiom (there: rate limit windows keyed by client;
// here: an in-flight refresh keyed by connectionId).
type RefreshCoordinator struct {
	mu      sync.Mutex
	inFlight map[string]*sync.Mutex
}

// NewRefreshCoordinator returns a ready-to-use coordinator.
func NewRefreshCoordinator() *RefreshCoordinator {
	return &RefreshCoordinator{inFlight: make(map[string]*sync.Mutex)}
}

// Refresh runs fn for connectionID with at most one concurrent execution per
// connectionID. Callers racing for the same connectionID block until the
// first one completes, then each runs fn in turn with the credential it
// passed in; Refresh itself does not check whether a refresh is still
// needed.
func (r *RefreshCoordinator) Refresh(ctx context.Context, connectionID string, cred *Credential, fn RefreshFunc) (*Credential, error) {
	lock := r.lockFor(connectionID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx, cred)
}

func (r *RefreshCoordinator) lockFor(connectionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.inFlight[connectionID]
	if !ok {
		lock = &sync.Mutex{}
		r.inFlight[connectionID] = lock
	}
	return lock
}
