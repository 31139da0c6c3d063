package feedback

import (
	"context"
	"log"
	"time"
)

// FeedbackSource loads classified feedback rows for one organization's
// rolling window; the repository layer implements this against Postgres.
type FeedbackSource interface {
	ClassifiedFeedback(ctx context.Context, organizationID string, since, until time.Time) ([]ClassifiedFeedback, error)
	OrganizationIDs(ctx context.Context) ([]string, error)
}

// Aggregator runs the rolling-30-day feedback aggregation job (spec.md
// §4.6) as a ticker loop (RunPeriodically), not a queued job.
// Grounded on internal/reputation/tax.go's RunDistributionCron: a
// ticker loop invoking one pass across all tenants, logging success/
// failure per tenant rather than aborting the whole run on one error.
type Aggregator struct {
	source     FeedbackSource
	window     time.Duration
	detector   *DegradationDetector
	logger     *log.Logger
}

// NewAggregator constructs an Aggregator over a rolling window (default
// 30 days per spec.md §4.6).
func NewAggregator(source FeedbackSource, window time.Duration, detector *DegradationDetector, logger *log.Logger) *Aggregator {
	if window == 0 {
		window = 30 * 24 * time.Hour
	}
	return &Aggregator{source: source, window: window, detector: detector, logger: logger}
}

// RunOnce aggregates every organization's rolling window once, feeding
// each result through the degradation detector.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	orgIDs, err := a.source.OrganizationIDs(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	since := now.Add(-a.window)

	for _, orgID := range orgIDs {
		rows, err := a.source.ClassifiedFeedback(ctx, orgID, since, now)
		if err != nil {
			a.logger.Printf("aggregator: failed to load feedback for org %s: %v", orgID, err)
			continue
		}
		metrics := Aggregate(orgID, since, now, rows)
		a.logger.Printf("org %s: precision=%.2f recall=%.2f fpRate=%.2f fnRate=%.2f (n=%d)",
			orgID, metrics.Precision(), metrics.Recall(), metrics.FalsePositiveRate(), metrics.FalseNegativeRate(), len(rows))
		if a.detector != nil {
			a.detector.Observe(metrics)
		}
	}
	return nil
}

// RunPeriodically runs RunOnce on interval until ctx is cancelled,
// matching RunDistributionCron's ticker-loop shape.
func (a *Aggregator) RunPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.Printf("aggregator: run failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
