package multitenancy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrKeyNotFound is returned by Store when no row matches the given KeyID.
var ErrKeyNotFound = errors.New("multitenancy: api key not found")

// OrganizationManager issues and validates API keys scoped to an
// organization. The organization id itself is opaque -- issued by the
// external identity provider -- so this manager never creates, loads,
// or mutates an organization; it only manages the keys that
// authenticate as one.
type OrganizationManager struct {
	store Store
}

func NewOrganizationManager(store Store) *OrganizationManager {
	return &OrganizationManager{store: store}
}

// CreateAPIKey issues a new key with format: ocx_<id>.<secret>. Only the
// secret's bcrypt hash is persisted; the full key is returned once and
// never stored.
func (om *OrganizationManager) CreateAPIKey(ctx context.Context, organizationID, name string, scopes []string) (*APIKey, string, error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, "", fmt.Errorf("multitenancy: generate key id: %w", err)
	}
	keyID := hex.EncodeToString(idBytes)

	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", fmt.Errorf("multitenancy: generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	fullKey := fmt.Sprintf("ocx_%s.%s", keyID, secret)

	secretHash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("multitenancy: hash secret: %w", err)
	}

	key := &APIKey{
		KeyID:          keyID,
		OrganizationID: organizationID,
		Name:           name,
		KeyHash:        string(secretHash),
		Scopes:         scopes,
		IsActive:       true,
	}

	if err := om.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("multitenancy: create api key: %w", err)
	}

	return key, fullKey, nil
}

// ValidateAPIKey validates a full key (format ocx_<keyId>.<secret>) and
// returns the organization id it authenticates as.
func (om *OrganizationManager) ValidateAPIKey(ctx context.Context, fullKey string) (string, error) {
	if !strings.HasPrefix(fullKey, "ocx_") {
		return "", errors.New("multitenancy: invalid key format")
	}
	parts := strings.SplitN(strings.TrimPrefix(fullKey, "ocx_"), ".", 2)
	if len(parts) != 2 {
		return "", errors.New("multitenancy: invalid key format")
	}
	keyID, secret := parts[0], parts[1]

	key, err := om.store.GetAPIKeyByKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", errors.New("multitenancy: invalid api key")
		}
		return "", fmt.Errorf("multitenancy: lookup api key: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(secret)); err != nil {
		return "", errors.New("multitenancy: invalid api key secret")
	}
	if !key.IsActive {
		return "", errors.New("multitenancy: api key inactive")
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return "", errors.New("multitenancy: api key expired")
	}

	return key.OrganizationID, nil
}

type contextKey string

const organizationIDKey contextKey = "organization_id"

// WithOrganization attaches an organization id to ctx.
func WithOrganization(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationIDKey, organizationID)
}

// OrganizationID extracts the organization id attached by WithOrganization.
func OrganizationID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(organizationIDKey).(string)
	if !ok || id == "" {
		return "", errors.New("multitenancy: organization context missing")
	}
	return id, nil
}
