// Package orchestrator implements the Job Orchestrator: three named
// durable queues (discovery, risk-assessment, notifications), each with a
// local worker pool and Redis-backed lease/heartbeat tracking. Grounded
// directly on internal/webhooks/dispatcher.go (in-memory worker-pool with
// bounded channel queue, retry, graceful Shutdown) and internal/webhooks/
// cloud_dispatcher.go (durable enqueue via a cloud queue with in-memory
// fallback).
package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// QueueName identifies one of the three durable queues spec.md §4.3 names.
type QueueName string

const (
	QueueDiscovery     QueueName = "discovery"
	QueueRiskAssessment QueueName = "risk-assessment"
	QueueNotifications  QueueName = "notifications"
)

// JobStatus tracks a job through its lifecycle: queued -> active ->
// (completed | failed).
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one unit of orchestrated work.
type Job struct {
	ID             string
	Queue          QueueName
	OrganizationID string
	ConnectionID   string
	DiscoveryRunID string // carried through chained jobs for lineage
	Payload        map[string]any
	Priority       int
	Status         JobStatus
	Attempts       int
	MaxAttempts    int
	StalledCount   int
	Progress       int // 0-100, doubles as a heartbeat when updated
	ScheduledAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultMaxAttempts matches spec.md §4.3's retry policy.
const DefaultMaxAttempts = 5

// Backoff computes the delay before retrying a failed job: base 2s,
// factor 2, uncapped growth bounded only by the caller passing a sane
// maxAttempts (spec.md §4.3, §8 "attempts <= maxAttempts"). Pure function,
// unit tested directly.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := 2 * time.Second
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// RepeatableJobID returns a deterministic id for a periodic-discovery job
// so re-registration is idempotent (spec.md §4.3 scheduling: "identified
// by a deterministic jobId so re-registration is a no-op").
func RepeatableJobID(organizationID, connectionID string) string {
	h := sha256.New()
	h.Write([]byte(organizationID))
	h.Write([]byte(connectionID))
	h.Write([]byte("periodic-discovery"))
	return hex.EncodeToString(h.Sum(nil))
}
