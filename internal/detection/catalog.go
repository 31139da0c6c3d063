// Package detection turns the lazy RawAutomation / NormalizedAuditEvent
// streams a connector produces into DiscoveredAutomation rows carrying
// populated detectionMetadata: AI-provider recognition, behavioral
// detectors, normalization, and cross-platform correlation.
package detection

import "strings"

// MatchKind is how a ProviderPattern's Pattern is compared against the
// MatchField value.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchPrefix   MatchKind = "prefix"
	MatchContains MatchKind = "contains"
)

// MatchField names which observable property a ProviderPattern inspects.
type MatchField string

const (
	FieldOAuthClientID MatchField = "oauth_client_id"
	FieldAppName       MatchField = "app_name"
	FieldAPIEndpoint   MatchField = "api_endpoint"
	FieldUserAgent     MatchField = "user_agent"
	FieldScope         MatchField = "scope"
)

// ProviderPattern is one declarative row of the AI-provider catalog:
// pure data, not branching code, modeled on the teacher's
// ToolDefinition/GovernancePolicy catalog-of-rows shape
// (internal/catalog/tool_catalog.go) rather than a chain of if/else
// matchers.
type ProviderPattern struct {
	Provider   string
	MatchField MatchField
	Pattern    string
	Weight     float64 // contribution to combined confidence, (0,1]
	MatchKind  MatchKind
	Strong     bool // true short-circuits to high confidence on a single hit
}

// ProviderCatalog holds the registered AI-provider patterns, mirroring the
// teacher's ToolCatalog: a registry a caller can extend at runtime rather
// than a hardcoded switch.
type ProviderCatalog struct {
	patterns []ProviderPattern
}

// NewProviderCatalog returns a catalog pre-loaded with the default AI
// provider patterns.
func NewProviderCatalog() *ProviderCatalog {
	c := &ProviderCatalog{}
	c.registerDefaults()
	return c
}

func (c *ProviderCatalog) registerDefaults() {
	c.patterns = append(c.patterns, defaultProviderPatterns()...)
}

// Register adds a custom pattern, letting operators extend the catalog
// without a code change (e.g. a new internal AI gateway).
func (c *ProviderCatalog) Register(p ProviderPattern) {
	c.patterns = append(c.patterns, p)
}

// Patterns returns all registered patterns.
func (c *ProviderCatalog) Patterns() []ProviderPattern {
	return c.patterns
}

func defaultProviderPatterns() []ProviderPattern {
	return []ProviderPattern{
		{Provider: "OpenAI / ChatGPT", MatchField: FieldOAuthClientID, Pattern: "77377267392", MatchKind: MatchPrefix, Weight: 1.0, Strong: true},
		{Provider: "OpenAI / ChatGPT", MatchField: FieldAppName, Pattern: "chatgpt", MatchKind: MatchContains, Weight: 0.6},
		{Provider: "OpenAI / ChatGPT", MatchField: FieldAPIEndpoint, Pattern: "api.openai.com", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "OpenAI / ChatGPT", MatchField: FieldUserAgent, Pattern: "openai", MatchKind: MatchContains, Weight: 0.5},

		{Provider: "Anthropic / Claude", MatchField: FieldAppName, Pattern: "claude", MatchKind: MatchContains, Weight: 0.6},
		{Provider: "Anthropic / Claude", MatchField: FieldAPIEndpoint, Pattern: "api.anthropic.com", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "Anthropic / Claude", MatchField: FieldUserAgent, Pattern: "anthropic", MatchKind: MatchContains, Weight: 0.5},

		{Provider: "Google AI", MatchField: FieldAPIEndpoint, Pattern: "generativelanguage.googleapis.com", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "Google AI", MatchField: FieldAppName, Pattern: "gemini", MatchKind: MatchContains, Weight: 0.6},
		{Provider: "Google AI", MatchField: FieldScope, Pattern: "generativelanguage", MatchKind: MatchContains, Weight: 0.7},

		{Provider: "Cohere", MatchField: FieldAPIEndpoint, Pattern: "api.cohere.ai", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "Cohere", MatchField: FieldAppName, Pattern: "cohere", MatchKind: MatchContains, Weight: 0.6},

		{Provider: "HuggingFace", MatchField: FieldAPIEndpoint, Pattern: "api-inference.huggingface.co", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "HuggingFace", MatchField: FieldAppName, Pattern: "huggingface", MatchKind: MatchContains, Weight: 0.5},

		{Provider: "Replicate", MatchField: FieldAPIEndpoint, Pattern: "api.replicate.com", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "Replicate", MatchField: FieldAppName, Pattern: "replicate", MatchKind: MatchContains, Weight: 0.5},

		{Provider: "Mistral", MatchField: FieldAPIEndpoint, Pattern: "api.mistral.ai", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "Mistral", MatchField: FieldAppName, Pattern: "mistral", MatchKind: MatchContains, Weight: 0.5},

		{Provider: "Together.ai", MatchField: FieldAPIEndpoint, Pattern: "api.together.xyz", MatchKind: MatchContains, Weight: 0.9, Strong: true},
		{Provider: "Together.ai", MatchField: FieldAppName, Pattern: "together", MatchKind: MatchContains, Weight: 0.4},
	}
}

// matches reports whether value satisfies p's pattern under its MatchKind.
func (p ProviderPattern) matches(value string) bool {
	if value == "" {
		return false
	}
	lowerVal := strings.ToLower(value)
	lowerPat := strings.ToLower(p.Pattern)
	switch p.MatchKind {
	case MatchExact:
		return lowerVal == lowerPat
	case MatchPrefix:
		return strings.HasPrefix(lowerVal, lowerPat)
	case MatchContains:
		return strings.Contains(lowerVal, lowerPat)
	default:
		return false
	}
}
