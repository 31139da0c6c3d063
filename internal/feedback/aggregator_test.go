package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeedbackSource struct {
	orgs IDs
	rows map[string][]ClassifiedFeedback
	errs map[string]error
}

type IDs = []string

func (f *fakeFeedbackSource) OrganizationIDs(ctx context.Context) ([]string, error) {
	return f.orgs, nil
}

func (f *fakeFeedbackSource) ClassifiedFeedback(ctx context.Context, organizationID string, since, until time.Time) ([]ClassifiedFeedback, error) {
	return f.rows[organizationID], f.errs[organizationID]
}

func TestAggregatorRunOnceFeedsDetector(t *testing.T) {
	source := &fakeFeedbackSource{
		orgs: []string{"org-1"},
		rows: map[string][]ClassifiedFeedback{
			"org-1": {
				{Feedback: Feedback{Verdict: VerdictConfirmed}, WasFlagged: true},
				{Feedback: Feedback{Verdict: VerdictConfirmed}, WasFlagged: true},
			},
		},
	}

	detector := NewDegradationDetector(DefaultDegradationConfig(), testDegradationLogger(), nil)
	agg := NewAggregator(source, 0, detector, testDegradationLogger())

	err := agg.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestAggregatorSkipsOrgsThatFailToLoad(t *testing.T) {
	source := &fakeFeedbackSource{orgs: []string{"org-1", "org-2"}, rows: map[string][]ClassifiedFeedback{}, errs: map[string]error{"org-1": assert.AnError}}
	agg := NewAggregator(source, time.Hour, nil, testDegradationLogger())

	err := agg.RunOnce(context.Background())
	assert.NoError(t, err)
}
