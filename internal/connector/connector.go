// Package connector defines the uniform capability set every platform
// adapter implements, and the registry that selects an adapter by platform.
// Designed the way the teacher designs its own pluggable integrations:
// internal/webhooks's Registry plus two interchangeable Dispatcher/
// CloudDispatcher implementations of one interface is the shape copied
// here -- one Connector interface, N platform structs satisfying it,
// selected by a registry keyed on Platform.
package connector

import (
	"context"
	"time"

	"github.com/shadowatlas/discovery-core/internal/vault"
)

// Platform identifies which SaaS/AI platform a connection targets.
type Platform string

const (
	PlatformSlack     Platform = "slack"
	PlatformGoogle    Platform = "google"
	PlatformMicrosoft Platform = "microsoft"
	PlatformJira      Platform = "jira"
	PlatformChatGPT   Platform = "chatgpt"
	PlatformClaude    Platform = "claude"
	PlatformGemini    Platform = "gemini"
)

// ValidationResult is returned by ValidateCredentials.
type ValidationResult struct {
	Valid              bool
	ExpiresAt          *time.Time
	MissingPermissions []string
	RateLimitRemaining *int
}

// DiscoveryFilters narrows DiscoverAutomations, e.g. to automations touched
// since a prior run.
type DiscoveryFilters struct {
	Since *time.Time
}

// RawAutomation is the adapter's untranslated view of a discovered
// automation, before the Detection Engine's Normalizer maps it onto
// DiscoveredAutomation's common shape.
type RawAutomation struct {
	ExternalID  string
	Name        string
	OwnerEmail  string
	Scopes      []string
	CreatedAt   time.Time
	RawMetadata map[string]any
}

// AuditQuery parameterizes GetAuditLogs.
type AuditQuery struct {
	Since  time.Time
	Until  time.Time
	Cursor string
}

// NormalizedAuditEvent is the adapter's audit-log record, already mapped to
// a cross-platform shape so the Detection Engine never branches on
// platform when scanning events for behavioral signals.
type NormalizedAuditEvent struct {
	ExternalID    string
	ActorEmail    string
	Action        string
	OccurredAt    time.Time
	TargetIDs     []string
	RawMetadata   map[string]any
}

// AuditLogSequence is a pull-based iterator so live-query and export-and-
// poll connectors present an identical surface to callers: Next blocks (if
// needed) until the next event is available, returns ok=false once
// exhausted, and surfaces any terminal error on the final call.
type AuditLogSequence interface {
	Next(ctx context.Context) (event NormalizedAuditEvent, ok bool, err error)
	// Cursor returns a restart point safe to persist after the last event
	// Next returned; on retry, GetAuditLogs(query with this cursor) resumes
	// without skipping unconsumed events. Events of a partly consumed page
	// may be delivered again, so callers dedup by externalId.
	Cursor() string
}

// AutomationSequence is DiscoverAutomations' lazy counterpart to
// AuditLogSequence.
type AutomationSequence interface {
	Next(ctx context.Context) (automation RawAutomation, ok bool, err error)
	Cursor() string
}

// Connector is the contract every platform adapter implements (spec.md
// §4.1).
type Connector interface {
	Platform() Platform

	Authenticate(ctx context.Context, cred *vault.Credential) error
	ValidateCredentials(ctx context.Context, cred *vault.Credential) (ValidationResult, error)
	DiscoverAutomations(ctx context.Context, cred *vault.Credential, cursor string, filters DiscoveryFilters) (AutomationSequence, error)
	GetAuditLogs(ctx context.Context, cred *vault.Credential, query AuditQuery) (AuditLogSequence, error)
	RefreshCredentials(ctx context.Context, cred *vault.Credential) (*vault.Credential, error)
}

// Exporter is the optional capability export-and-poll platforms (e.g.
// Claude Enterprise) implement in addition to Connector. Their GetAuditLogs
// composes RequestExport/PollExport/DownloadExport internally so callers
// never need to know which retrieval style a given platform uses.
type Exporter interface {
	RequestExport(ctx context.Context, cred *vault.Credential, from, until time.Time) (handle string, err error)
	PollExport(ctx context.Context, cred *vault.Credential, handle string) (status ExportStatus, err error)
	DownloadExport(ctx context.Context, cred *vault.Credential, handle string) ([]byte, error)
}

// ExportStatus reports export-and-poll progress.
type ExportStatus string

const (
	ExportPending   ExportStatus = "pending"
	ExportRunning   ExportStatus = "running"
	ExportComplete  ExportStatus = "complete"
	ExportFailed    ExportStatus = "failed"
)

// Registry selects a Connector implementation by Platform, mirroring
// internal/webhooks's registry-of-dispatchers shape.
type Registry struct {
	connectors map[Platform]Connector
}

// NewRegistry returns an empty registry; callers Register each adapter at
// startup.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[Platform]Connector)}
}

// Register installs a connector for its own Platform() value.
func (r *Registry) Register(c Connector) {
	r.connectors[c.Platform()] = c
}

// Get returns the connector for platform, or ok=false if none is
// registered.
func (r *Registry) Get(platform Platform) (Connector, bool) {
	c, ok := r.connectors[platform]
	return c, ok
}
