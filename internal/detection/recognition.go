package detection

import "fmt"

// Observable is the set of properties the AI-provider recognizer inspects
// for a single automation. Scopes is checked against FieldScope patterns
// element by element.
type Observable struct {
	OAuthClientID string
	AppName       string
	APIEndpoint   string
	UserAgent     string
	Scopes        []string
}

// ProviderMatch is the recognizer's output for one candidate provider:
// a confidence in [0,1] plus the evidence strings that produced it,
// stored verbatim for audit (spec.md §4.4).
type ProviderMatch struct {
	Provider   string
	Confidence float64
	Evidence   []string
}

// strongConfidence is the confidence assigned when a single Strong
// pattern matches, short-circuiting weaker-signal combination.
const strongConfidence = 0.95

// Recognize scores every provider in the catalog against obs and returns
// matches with confidence > 0, most confident first. Multiple weak
// signals combine multiplicatively under an independence assumption:
// combined = 1 - Π(1 - w_i), capped at 0.99 so no combination of weak
// signals alone claims certainty; a single Strong match short-circuits
// to strongConfidence regardless of what else matched.
func Recognize(catalog *ProviderCatalog, obs Observable) []ProviderMatch {
	byProvider := make(map[string][]ProviderPattern)
	for _, p := range catalog.Patterns() {
		byProvider[p.Provider] = append(byProvider[p.Provider], p)
	}

	var matches []ProviderMatch
	for provider, patterns := range byProvider {
		m := recognizeProvider(provider, patterns, obs)
		if m.Confidence > 0 {
			matches = append(matches, m)
		}
	}

	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Confidence > matches[i].Confidence {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	return matches
}

func recognizeProvider(provider string, patterns []ProviderPattern, obs Observable) ProviderMatch {
	var evidence []string
	var strongHit bool
	product := 1.0
	anyWeak := false

	for _, p := range patterns {
		hit, matchedValue := evaluate(p, obs)
		if !hit {
			continue
		}
		evidence = append(evidence, fmt.Sprintf("%s %s matched %q (%s)", p.MatchField, p.MatchKind, matchedValue, p.Pattern))
		if p.Strong {
			strongHit = true
		}
		product *= 1 - p.Weight
		anyWeak = true
	}

	if !anyWeak {
		return ProviderMatch{Provider: provider}
	}
	if strongHit {
		return ProviderMatch{Provider: provider, Confidence: strongConfidence, Evidence: evidence}
	}

	combined := 1 - product
	if combined > 0.99 {
		combined = 0.99
	}
	return ProviderMatch{Provider: provider, Confidence: combined, Evidence: evidence}
}

func evaluate(p ProviderPattern, obs Observable) (bool, string) {
	switch p.MatchField {
	case FieldOAuthClientID:
		return p.matches(obs.OAuthClientID), obs.OAuthClientID
	case FieldAppName:
		return p.matches(obs.AppName), obs.AppName
	case FieldAPIEndpoint:
		return p.matches(obs.APIEndpoint), obs.APIEndpoint
	case FieldUserAgent:
		return p.matches(obs.UserAgent), obs.UserAgent
	case FieldScope:
		for _, s := range obs.Scopes {
			if p.matches(s) {
				return true, s
			}
		}
		return false, ""
	default:
		return false, ""
	}
}
