package orchestrator

import (
	"context"
	"time"
)

// MaxStalledCount bounds how many times a job may be found stalled before
// it is given up on, per spec.md §4.3's stall-detection requirement.
const MaxStalledCount = 3

// StalledSweepInterval is how often the sweeper polls for expired
// heartbeats.
const StalledSweepInterval = 15 * time.Second

// StalledAfter is how long a heartbeat may go unrenewed before a job is
// considered stalled (longer than a worker's own heartbeat cadence so one
// missed tick doesn't trigger a false positive).
const StalledAfter = 30 * time.Second

// StartStallSweeper runs a background janitor goroutine, in the same shape
// as internal/middleware/rate_limiter.go's RateLimiter.cleanup(): a
// time.Ticker loop that exits when q.stop closes. Active jobs whose
// heartbeat has expired are either requeued (StalledCount still under
// MaxStalledCount) or failed outright.
func (q *Queue) StartStallSweeper() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(StalledSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-q.stop:
				return
			case <-ticker.C:
				q.sweepStalled()
			}
		}
	}()
}

func (q *Queue) sweepStalled() {
	ctx := context.Background()
	ids, err := q.store.StalledJobIDs(ctx, StalledAfter)
	if err != nil {
		q.logger.Printf("stall sweep: list stalled jobs: %v", err)
		return
	}
	for _, id := range ids {
		q.handleStalled(ctx, id)
	}
}

func (q *Queue) handleStalled(ctx context.Context, jobID string) {
	job, err := q.store.LoadJob(ctx, jobID)
	if err != nil {
		q.logger.Printf("stall sweep: load job %s: %v", jobID, err)
		return
	}
	if job.Status != JobActive {
		return
	}

	job.StalledCount++
	job.UpdatedAt = time.Now()
	if q.metrics != nil {
		q.metrics.JobsStalled.WithLabelValues(string(q.name)).Inc()
	}

	if job.StalledCount >= MaxStalledCount {
		job.Status = JobFailed
		_ = q.store.SaveJob(ctx, job)
		_ = q.store.RetainFailed(ctx, q.name, job)
		q.logger.Printf("job %s abandoned after %d stalls", job.ID, job.StalledCount)
		return
	}

	job.Status = JobQueued
	job.ScheduledAt = time.Now()
	_ = q.store.SaveJob(ctx, job)
	q.logger.Printf("job %s stalled (%d/%d), requeueing", job.ID, job.StalledCount, MaxStalledCount)
	q.push(job)
}
