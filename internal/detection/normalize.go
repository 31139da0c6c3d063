package detection

import (
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
)

// DetectionMetadata is the derived half of DiscoveredAutomation spec.md
// §3 names: isAIPlatform, aiProvider, scopes, detectionMethod,
// riskFactors, confidence.
type DetectionMetadata struct {
	IsAIPlatform    bool
	AIProvider      string
	Scopes          []string
	DetectionMethod string
	RiskFactors     []RiskFactor
	Confidence      float64
}

// RiskFactor is one piece of evidence the Risk Engine folds into an
// overall assessment.
type RiskFactor struct {
	Code        string
	Description string
	Weight      float64
	Evidence    []string
}

// NormalizedAutomation is a connector.RawAutomation mapped onto the
// common cross-platform shape plus its derived DetectionMetadata, ready
// to upsert as a DiscoveredAutomation row.
type NormalizedAutomation struct {
	ExternalID         string
	Name               string
	OwnerEmail         string
	Scopes             []string
	CreatedAt          time.Time
	LastTriggeredAt    time.Time
	TriggerType        string
	Actions            []string
	DataAccessPatterns []string
	PlatformMetadata   map[string]any
	Detection          DetectionMetadata
}

// DetectionMethod names how an automation's platform surfaced it,
// carried into DetectionMetadata.DetectionMethod for audit (spec.md §8
// scenario 1 expects "oauth_tokens_api").
type DetectionMethod string

const (
	MethodOAuthTokensAPI   DetectionMethod = "oauth_tokens_api"
	MethodAppDirectory     DetectionMethod = "app_directory"
	MethodServicePrincipal DetectionMethod = "service_principal"
	MethodAuditLogPattern  DetectionMethod = "audit_log_pattern"
)

// Normalize maps a connector.RawAutomation into the common shape and
// populates DetectionMetadata by running the AI-provider recognizer over
// its observable properties. Unknown fields from RawMetadata survive
// verbatim under PlatformMetadata, following the teacher's
// AgentMetadata jsonb / map[string]interface{} convention of never
// discarding fields it doesn't understand.
func Normalize(catalog *ProviderCatalog, raw connector.RawAutomation, method DetectionMethod) NormalizedAutomation {
	obs := Observable{
		AppName: raw.Name,
		Scopes:  raw.Scopes,
	}
	if v, ok := raw.RawMetadata["oauthClientId"].(string); ok {
		obs.OAuthClientID = v
	}
	if v, ok := raw.RawMetadata["apiEndpoint"].(string); ok {
		obs.APIEndpoint = v
	}
	if v, ok := raw.RawMetadata["userAgent"].(string); ok {
		obs.UserAgent = v
	}

	matches := Recognize(catalog, obs)
	meta := DetectionMetadata{
		Scopes:          raw.Scopes,
		DetectionMethod: string(method),
	}

	if len(matches) > 0 {
		top := matches[0]
		meta.IsAIPlatform = true
		meta.AIProvider = top.Provider
		meta.Confidence = top.Confidence
		meta.RiskFactors = append(meta.RiskFactors, RiskFactor{
			Code:        "ai_provider_detected",
			Description: "automation recognized as an AI provider integration: " + top.Provider,
			Weight:      top.Confidence,
			Evidence:    top.Evidence,
		})
	}

	return NormalizedAutomation{
		ExternalID:       raw.ExternalID,
		Name:             raw.Name,
		OwnerEmail:       raw.OwnerEmail,
		Scopes:           raw.Scopes,
		CreatedAt:        raw.CreatedAt,
		PlatformMetadata: raw.RawMetadata,
		Detection:        meta,
	}
}

// IsStale reports whether an automation should flip isActive=false: its
// lastSeenAt has not advanced for longer than window (spec.md §4.4 edge
// case, default 14 days, tenant-configurable).
func IsStale(lastSeenAt time.Time, now time.Time, window time.Duration) bool {
	return now.Sub(lastSeenAt) > window
}
