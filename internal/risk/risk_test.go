package risk

import (
	"testing"

	"github.com/shadowatlas/discovery-core/internal/detection"
	"github.com/stretchr/testify/assert"
)

// TestComputeAIPlatformMatchesSpecScenario reproduces spec.md §8
// scenario 1's expected assessment: isAIPlatform=true -> overallRisk
// high, riskScore 85.
func TestComputeAIPlatformMatchesSpecScenario(t *testing.T) {
	meta := detection.DetectionMetadata{
		IsAIPlatform: true,
		RiskFactors: []detection.RiskFactor{
			{Code: "ai_provider_detected", Weight: 0.95},
			{Code: "oauth_broad_scope", Weight: 0.5},
			{Code: "unverified_owner", Weight: 0.3},
		},
	}

	a := Compute(meta, DefaultWeights())
	assert.Equal(t, LevelHigh, a.OverallRisk)
	assert.Equal(t, 85, a.RiskScore)
}

func TestComputeFactorCountThresholds(t *testing.T) {
	cases := []struct {
		factors int
		want    Level
	}{
		{0, LevelLow},
		{1, LevelMedium},
		{2, LevelMedium},
		{3, LevelHigh},
		{4, LevelHigh},
		{5, LevelCritical},
		{7, LevelCritical},
	}
	for _, c := range cases {
		meta := detection.DetectionMetadata{RiskFactors: makeFactors(c.factors)}
		a := Compute(meta, DefaultWeights())
		assert.Equal(t, c.want, a.OverallRisk, "factors=%d", c.factors)
	}
}

func TestComputeDefaultScoreFormula(t *testing.T) {
	meta := detection.DetectionMetadata{RiskFactors: makeFactors(3)}
	a := Compute(meta, DefaultWeights())
	assert.Equal(t, 75, a.RiskScore) // 30 + 15*3
}

func TestComputeScoreClampsAt100(t *testing.T) {
	meta := detection.DetectionMetadata{RiskFactors: makeFactors(10)}
	a := Compute(meta, DefaultWeights())
	assert.Equal(t, 100, a.RiskScore)
}

func TestComputeHonorsPerFactorCodeOverride(t *testing.T) {
	cfg := DefaultWeights()
	cfg.PerFactorCode = map[string]float64{"velocity_burst": 40}
	meta := detection.DetectionMetadata{RiskFactors: []detection.RiskFactor{{Code: "velocity_burst"}}}

	a := Compute(meta, cfg)
	assert.Equal(t, 70, a.RiskScore) // 30 + 40
}

func TestDiffReportsInitialAssessment(t *testing.T) {
	changes := Diff(nil, Assessment{RiskScore: 50, OverallRisk: LevelMedium})
	assert.Equal(t, []string{"initial assessment"}, changes)
}

func TestDiffReportsScoreAndLevelChange(t *testing.T) {
	prev := &HistoryPoint{Score: 40, OverallRisk: LevelMedium}
	changes := Diff(prev, Assessment{RiskScore: 85, OverallRisk: LevelHigh})
	assert.Contains(t, changes, "riskScore: 40 -> 85")
	assert.Contains(t, changes, "overallRisk: medium -> high")
}

func makeFactors(n int) []detection.RiskFactor {
	factors := make([]detection.RiskFactor, n)
	for i := range factors {
		factors[i] = detection.RiskFactor{Code: "factor"}
	}
	return factors
}
