package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/shadowatlas/discovery-core/internal/detection"
	"github.com/shadowatlas/discovery-core/internal/risk"
)

// JSONB marshals/unmarshals an arbitrary Go value through a jsonb column,
// the same free-form-column convention the teacher uses for
// `settings`/`agent_metadata` in internal/database.
type JSONB[T any] struct {
	Data T
}

func (j JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

func (j *JSONB[T]) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("repository: unsupported jsonb source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &j.Data)
}

// SyncConfiguration is a PlatformConnection's discovery cadence/target config.
type SyncConfiguration struct {
	CadenceMinutes int      `json:"cadenceMinutes"`
	Targets        []string `json:"targets,omitempty"`
	Filters        []string `json:"filters,omitempty"`
}

// PlatformConnection is a tenant's link to one external platform.
type PlatformConnection struct {
	ID               string                        `json:"id"`
	OrganizationID   string                        `json:"organizationId"`
	Platform         connector.Platform             `json:"platform"`
	DisplayName      string                        `json:"displayName"`
	Status           string                        `json:"status"`
	LastSyncAt       *time.Time                    `json:"lastSyncAt,omitempty"`
	LastErrorMessage string                        `json:"lastErrorMessage,omitempty"`
	SyncConfiguration JSONB[SyncConfiguration]     `json:"syncConfiguration"`
	Capabilities     int64                         `json:"capabilities"`
	CreatedAt        time.Time                     `json:"createdAt"`
	UpdatedAt        time.Time                     `json:"updatedAt"`
}

// CredentialMetadata is the plaintext portion of EncryptedCredential.
type CredentialMetadata struct {
	TokenType          string    `json:"tokenType"`
	Scopes             []string  `json:"scopes"`
	IssuedAt           time.Time `json:"issuedAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
	PlatformUserID     string    `json:"platformUserId,omitempty"`
	PlatformWorkspaceID string   `json:"platformWorkspaceId,omitempty"`
	Status             string    `json:"status"`
	UsageCount         int64     `json:"usageCount"`
}

// EncryptionMetadata records the envelope used to seal the ciphertext --
// enough to reconstruct a vault.Sealed and call Vault.Open on read.
type EncryptionMetadata struct {
	Algorithm     string    `json:"algorithm"`
	KeyVersion    int       `json:"keyVersion"`
	Nonce         []byte    `json:"nonce"`
	IntegrityHash string    `json:"integrityHash"`
	EncryptedAt   time.Time `json:"encryptedAt"`
}

// EncryptedCredential is the at-rest form of a PlatformConnection's tokens.
// Plaintext never reaches this struct. vault.MarshalForSeal bundles access
// and refresh token together before sealing, so CiphertextAccess holds the
// single sealed blob; CiphertextRefresh is reserved for a platform that
// someday needs its refresh token rotatable independently of the access
// token and is unused by the vault integration today.
type EncryptedCredential struct {
	ConnectionID      string                       `json:"connectionId"`
	CiphertextAccess  []byte                       `json:"-"`
	CiphertextRefresh []byte                       `json:"-"`
	Metadata          JSONB[CredentialMetadata]    `json:"metadata"`
	Encryption        JSONB[EncryptionMetadata]    `json:"encryption"`
	CreatedAt         time.Time                    `json:"createdAt"`
	UpdatedAt         time.Time                    `json:"updatedAt"`
}

// DiscoveryRunStats holds the running counters for a DiscoveryRun.
type DiscoveryRunStats struct {
	AutomationsFound     int      `json:"automationsFound"`
	Errors               int      `json:"errors"`
	AlgorithmsExecuted   []string `json:"algorithmsExecuted,omitempty"`
	Stage                string   `json:"stage,omitempty"`
}

// DiscoveryRun is one execution of the pipeline for a PlatformConnection.
type DiscoveryRun struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organizationId"`
	ConnectionID   string            `json:"connectionId"`
	Status         string            `json:"status"`
	StartedAt      time.Time         `json:"startedAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	Stats          JSONB[DiscoveryRunStats] `json:"stats"`
}

// DiscoveredAutomation is a third-party app/bot/script observed on a platform.
type DiscoveredAutomation struct {
	ID                   string                                   `json:"id"`
	OrganizationID       string                                   `json:"organizationId"`
	ConnectionID         string                                   `json:"connectionId"`
	DiscoveryRunID       string                                   `json:"discoveryRunId"`
	ExternalID           string                                   `json:"externalId"`
	Name                 string                                   `json:"name"`
	Description          string                                   `json:"description"`
	AutomationType       string                                   `json:"automationType"`
	Status               string                                   `json:"status"`
	TriggerType          string                                   `json:"triggerType"`
	RequestedPermissions JSONB[[]string]                          `json:"requestedPermissions"`
	DataAccessPatterns   JSONB[[]string]                          `json:"dataAccessPatterns"`
	OwnerInfo            JSONB[map[string]string]                `json:"ownerInfo"`
	PlatformMetadata     JSONB[map[string]interface{}]            `json:"platformMetadata"`
	DetectionMetadata    JSONB[detection.DetectionMetadata]       `json:"detectionMetadata"`
	FirstDiscoveredAt    time.Time                                `json:"firstDiscoveredAt"`
	LastSeenAt           time.Time                                `json:"lastSeenAt"`
	IsActive             bool                                     `json:"isActive"`
	CreatedAt            time.Time                                `json:"createdAt"`
	UpdatedAt            time.Time                                `json:"updatedAt"`
}

// RiskAssessmentRecord is the persisted form of risk.Assessment, attached
// to a DiscoveredAutomation and retained across recomputations.
type RiskAssessmentRecord struct {
	ID             string                      `json:"id"`
	AutomationID   string                      `json:"automationId"`
	OrganizationID string                      `json:"organizationId"`
	OverallRisk     risk.Level                      `json:"overallRisk"`
	RiskScore       int                             `json:"riskScore"`
	RiskFactors     JSONB[[]detection.RiskFactor]   `json:"riskFactors"`
	AssessedAt      time.Time                       `json:"assessedAt"`
	AssessorVersion string                          `json:"assessorVersion"`
}

// FeedbackRecord is a per-tenant, per-automation user verdict on a detection.
type FeedbackRecord struct {
	ID                   string                        `json:"id"`
	OrganizationID       string                        `json:"organizationId"`
	AutomationID         string                        `json:"automationId"`
	UserID               string                        `json:"userId"`
	UserEmail            string                        `json:"userEmail"`
	FeedbackType         string                        `json:"feedbackType"`
	Sentiment            string                        `json:"sentiment"`
	Comment              string                        `json:"comment"`
	SuggestedCorrections JSONB[map[string]interface{}] `json:"suggestedCorrections"`
	Status               string                        `json:"status"`
	MLMetadata           JSONB[map[string]interface{}] `json:"mlMetadata"`
	CreatedAt            time.Time                     `json:"createdAt"`
	UpdatedAt            time.Time                     `json:"updatedAt"`
}

// DetectorConfigurationRecord is one versioned row of per-tenant detector
// thresholds, mirroring internal/feedback.ConfigVersion's shape but as the
// row actually persisted by the repository.
type DetectorConfigurationRecord struct {
	ID             string                                  `json:"id"`
	OrganizationID string                                  `json:"organizationId"`
	Version        int                                     `json:"version"`
	DetectorCode   string                                  `json:"detectorCode"`
	Thresholds     JSONB[detection.DetectorConfiguration] `json:"thresholds"`
	Enabled        bool                                    `json:"enabled"`
	CreatedAt      time.Time                               `json:"createdAt"`
}
