// Package risk computes overallRisk/riskScore/riskFactors from the
// Detection Engine's output, grounded on the teacher's reputation/escrow
// scoring style (internal/reputation's score-from-factors shape,
// internal/escrow/metrics.go's Prometheus-histogram-per-score pattern).
package risk

import (
	"github.com/shadowatlas/discovery-core/internal/detection"
)

// Level is the coarse risk bucket surfaced to users.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Weights lets a tenant override the contribution of individual factor
// codes and the baseline constants. Compute honours whatever the caller
// passes; both cmd/discoveryd and cmd/worker pass DefaultWeights(), so no
// per-tenant override is loaded from DetectorConfiguration or elsewhere.
type Weights struct {
	PerFactorCode map[string]float64 // factor code -> weight override
	BaseScore     float64            // default 30
	PerFactor     float64            // default 15, used when no per-code override exists
	AIPlatformBaseline float64        // default 85
}

// DefaultWeights matches internal/config's Risk section defaults.
func DefaultWeights() Weights {
	return Weights{BaseScore: 30, PerFactor: 15, AIPlatformBaseline: 85}
}

// Assessment is one computed {overallRisk, riskScore, riskFactors} point,
// ready to persist as a risk_assessments row.
type Assessment struct {
	OverallRisk Level
	RiskScore   int
	RiskFactors []detection.RiskFactor
}

// Compute applies spec.md §4.5's rules: an AI-platform match forces high
// risk at a baseline score; otherwise the assessment is driven purely by
// factor count, with per-factor weight overrides folded into the score.
func Compute(meta detection.DetectionMetadata, cfg Weights) Assessment {
	if cfg.BaseScore == 0 && cfg.PerFactor == 0 && cfg.AIPlatformBaseline == 0 {
		cfg = DefaultWeights()
	}

	if meta.IsAIPlatform {
		return Assessment{
			OverallRisk: LevelHigh,
			RiskScore:   clampScore(int(cfg.AIPlatformBaseline)),
			RiskFactors: meta.RiskFactors,
		}
	}

	factorCount := len(meta.RiskFactors)
	level := levelForFactorCount(factorCount)
	score := scoreForFactors(meta.RiskFactors, cfg)

	return Assessment{
		OverallRisk: level,
		RiskScore:   clampScore(score),
		RiskFactors: meta.RiskFactors,
	}
}

func levelForFactorCount(count int) Level {
	switch {
	case count >= 5:
		return LevelCritical
	case count >= 3:
		return LevelHigh
	case count >= 1:
		return LevelMedium
	default:
		return LevelLow
	}
}

// scoreForFactors applies min(100, 30 + 15*factorCount) by default, but
// adds a factor's per-code weight, as given and unscaled, in place of the
// default step for any factor whose code has a tenant override.
func scoreForFactors(factors []detection.RiskFactor, cfg Weights) int {
	base := cfg.BaseScore
	if base == 0 {
		base = 30
	}
	perFactor := cfg.PerFactor
	if perFactor == 0 {
		perFactor = 15
	}

	total := base
	for _, f := range factors {
		if override, ok := cfg.PerFactorCode[f.Code]; ok {
			total += override
			continue
		}
		total += perFactor
	}
	return int(total)
}

func clampScore(score int) int {
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
