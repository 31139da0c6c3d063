package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregateBucketsConfusionMatrix(t *testing.T) {
	rows := []ClassifiedFeedback{
		{Feedback: Feedback{Verdict: VerdictConfirmed}, WasFlagged: true},
		{Feedback: Feedback{Verdict: VerdictConfirmed}, WasFlagged: true},
		{Feedback: Feedback{Verdict: VerdictFalsePositive}, WasFlagged: true},
		{Feedback: Feedback{Verdict: VerdictConfirmed}, WasFlagged: false},
		{Feedback: Feedback{Verdict: VerdictAcknowledged}, WasFlagged: false},
	}

	m := Aggregate("org-1", time.Time{}, time.Time{}, rows)
	assert.Equal(t, 2, m.TruePositives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 1, m.FalseNegatives)
	assert.Equal(t, 1, m.TrueNegatives)
}

func TestMetricsPrecisionRecallRates(t *testing.T) {
	m := Metrics{TruePositives: 8, FalsePositives: 2, FalseNegatives: 2, TrueNegatives: 18}
	assert.InDelta(t, 0.8, m.Precision(), 0.001)
	assert.InDelta(t, 0.8, m.Recall(), 0.001)
	assert.InDelta(t, 0.1, m.FalsePositiveRate(), 0.001)
	assert.InDelta(t, 0.2, m.FalseNegativeRate(), 0.001)
}

func TestMetricsZeroDenominatorsReturnZero(t *testing.T) {
	m := Metrics{}
	assert.Equal(t, 0.0, m.Precision())
	assert.Equal(t, 0.0, m.Recall())
	assert.Equal(t, 0.0, m.FalsePositiveRate())
	assert.Equal(t, 0.0, m.FalseNegativeRate())
}
