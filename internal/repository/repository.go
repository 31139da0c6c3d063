// Package repository persists the core entities behind an
// organization-scoped contract: every entity method's first two parameters
// are (ctx, organizationId, ...), so those calls cannot read or write
// across a tenant boundary by accident. OrganizationIDs(ctx), which lists
// every organization for the feedback aggregator, and Close() take no
// organizationId.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shadowatlas/discovery-core/internal/feedback"
)

// ErrNotFound is returned when a lookup matches no row scoped to the
// given organizationId. Callers at the API boundary must map this to a
// generic 404, never a 403, to avoid confirming a resource's existence
// in another tenant.
var ErrNotFound = errors.New("repository: not found")

// ErrVersionConflict is returned when an optimistic-concurrency write's
// updated_at guard does not match the row currently in storage.
var ErrVersionConflict = errors.New("repository: version conflict")

// ConnectionRepository manages PlatformConnection and its owned credential.
type ConnectionRepository interface {
	CreateConnection(ctx context.Context, organizationID string, c *PlatformConnection) error
	GetConnection(ctx context.Context, organizationID, connectionID string) (*PlatformConnection, error)
	ListConnections(ctx context.Context, organizationID string) ([]PlatformConnection, error)
	UpdateConnectionStatus(ctx context.Context, organizationID, connectionID, status, lastErrorMessage string) error
	UpdateConnectionLastSync(ctx context.Context, organizationID, connectionID string, at time.Time) error
	// DisconnectConnection hard-deletes the connection, cascading to its
	// credential and any in-flight jobs referencing it.
	DisconnectConnection(ctx context.Context, organizationID, connectionID string) error

	PutCredential(ctx context.Context, organizationID string, cred *EncryptedCredential) error
	GetCredential(ctx context.Context, organizationID, connectionID string) (*EncryptedCredential, error)
}

// DiscoveryRepository manages DiscoveryRun and DiscoveredAutomation.
type DiscoveryRepository interface {
	CreateDiscoveryRun(ctx context.Context, organizationID string, run *DiscoveryRun) error
	UpdateDiscoveryRunStatus(ctx context.Context, organizationID, runID, status string, stats DiscoveryRunStats) error
	GetDiscoveryRun(ctx context.Context, organizationID, runID string) (*DiscoveryRun, error)

	// UpsertAutomation inserts a new automation or, on
	// (organizationId, connectionId, externalId) collision, updates the
	// mutable fields and advances lastSeenAt without disturbing
	// firstDiscoveredAt.
	UpsertAutomation(ctx context.Context, organizationID string, a *DiscoveredAutomation) error
	GetAutomation(ctx context.Context, organizationID, automationID string) (*DiscoveredAutomation, error)
	ListAutomations(ctx context.Context, organizationID string, filter AutomationFilter) ([]DiscoveredAutomation, error)
	// SoftDeleteAutomation marks is_active=false without removing the row,
	// preserving history for trend continuity.
	SoftDeleteAutomation(ctx context.Context, organizationID, automationID string) error
}

// AutomationFilter narrows ListAutomations.
type AutomationFilter struct {
	ConnectionID string
	Platform     string
	RiskLevel    string
	Search       string
	Limit        int
	Offset       int
}

// RiskRepository manages RiskAssessment history.
type RiskRepository interface {
	// PutRiskAssessment inserts a new assessment row; history is retained
	// for trend analysis, never overwritten.
	PutRiskAssessment(ctx context.Context, organizationID string, a *RiskAssessmentRecord) error
	LatestRiskAssessment(ctx context.Context, organizationID, automationID string) (*RiskAssessmentRecord, error)
	RiskAssessmentHistory(ctx context.Context, organizationID, automationID string, limit int) ([]RiskAssessmentRecord, error)
}

// FeedbackRepository manages Feedback.
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, organizationID string, f *FeedbackRecord) error
	// GetFeedback returns ErrNotFound both when the row is absent and
	// when it belongs to a different organization, so callers cannot
	// distinguish the two cases.
	GetFeedback(ctx context.Context, organizationID, feedbackID string) (*FeedbackRecord, error)
	ListFeedback(ctx context.Context, organizationID string, since, until time.Time) ([]FeedbackRecord, error)
	// MLTrainingBatch exports at most `size` feedback rows for the
	// organization's training export endpoint.
	MLTrainingBatch(ctx context.Context, organizationID string, size int) ([]FeedbackRecord, error)
	// ClassifiedFeedback and OrganizationIDs implement
	// internal/feedback.FeedbackSource for the rolling aggregation job.
	ClassifiedFeedback(ctx context.Context, organizationID string, since, until time.Time) ([]feedback.ClassifiedFeedback, error)
	OrganizationIDs(ctx context.Context) ([]string, error)
}

// DetectorConfigRepository manages DetectorConfiguration versions.
type DetectorConfigRepository interface {
	PutDetectorConfiguration(ctx context.Context, organizationID string, r *DetectorConfigurationRecord) error
	ActiveDetectorConfiguration(ctx context.Context, organizationID, detectorCode string) (*DetectorConfigurationRecord, error)
}

// Repository is the full persistence contract used by the rest of the
// system. PostgresRepository and the in-memory fake both satisfy it.
type Repository interface {
	ConnectionRepository
	DiscoveryRepository
	RiskRepository
	FeedbackRepository
	DetectorConfigRepository

	Close() error
}
