package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RedisClient is the minimal interface the orchestrator's Store needs from
// a Redis driver, copied from internal/fabric/redis_store.go's RedisClient
// interface so neither package needs to import go-redis directly -- the
// concrete client is injected by cmd/discoveryd/main.go.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeAscending(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRemRangeByRankAscending(ctx context.Context, key string, count int64) error
	ZCard(ctx context.Context, key string) (int64, error)
}

// Store persists job state, active-job heartbeats, and retention windows
// of completed/failed jobs. Grounded on internal/fabric/redis_store.go's
// SaveSpoke/LoadSpoke/index pattern, generalized from spoke routing to job
// bookkeeping.
type Store interface {
	SaveJob(ctx context.Context, job *Job) error
	LoadJob(ctx context.Context, jobID string) (*Job, error)
	Heartbeat(ctx context.Context, jobID string) error
	StalledJobIDs(ctx context.Context, staleAfter time.Duration) ([]string, error)
	RetainCompleted(ctx context.Context, queue QueueName, job *Job) error
	RetainFailed(ctx context.Context, queue QueueName, job *Job) error
}

const (
	completedRetention = 50  // spec.md §4.3: "last 50 per queue"
	failedRetention    = 100 // spec.md §4.3: "last 100 for diagnosis"
)

// RedisStore is the production Store implementation.
type RedisStore struct {
	client       RedisClient
	keyPrefix    string
	heartbeatTTL time.Duration
}

// NewRedisStore returns a Store backed by client, namespacing all keys
// under keyPrefix (e.g. "discovery:orchestrator:").
func NewRedisStore(client RedisClient, keyPrefix string, heartbeatTTL time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "discovery:orchestrator:"
	}
	if heartbeatTTL == 0 {
		heartbeatTTL = 30 * time.Second
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, heartbeatTTL: heartbeatTTL}
}

func (s *RedisStore) jobKey(jobID string) string       { return s.keyPrefix + "job:" + jobID }
func (s *RedisStore) heartbeatKey(jobID string) string { return s.keyPrefix + "hb:" + jobID }
func (s *RedisStore) activeSetKey() string             { return s.keyPrefix + "active" }
func (s *RedisStore) retainKey(queue QueueName, kind string) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, kind, queue)
}

func (s *RedisStore) SaveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal job: %w", err)
	}
	if err := s.client.Set(ctx, s.jobKey(job.ID), data, 0); err != nil {
		return fmt.Errorf("orchestrator: redis SET job: %w", err)
	}
	if job.Status == JobActive {
		return s.client.SAdd(ctx, s.activeSetKey(), job.ID)
	}
	return s.client.SRem(ctx, s.activeSetKey(), job.ID)
}

func (s *RedisStore) LoadJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: redis GET job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("orchestrator: unmarshal job: %w", err)
	}
	return &job, nil
}

// Heartbeat refreshes the TTL'd heartbeat key a worker writes while
// processing a job; progress updates (0-100) double as heartbeats per
// spec.md §4.3.
func (s *RedisStore) Heartbeat(ctx context.Context, jobID string) error {
	return s.client.Set(ctx, s.heartbeatKey(jobID), []byte("1"), s.heartbeatTTL)
}

// StalledJobIDs returns active jobs whose heartbeat key has expired,
// i.e. Get on the heartbeat key fails because the TTL already elapsed.
func (s *RedisStore) StalledJobIDs(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	active, err := s.client.SMembers(ctx, s.activeSetKey())
	if err != nil {
		return nil, fmt.Errorf("orchestrator: redis SMEMBERS active: %w", err)
	}
	var stalled []string
	for _, id := range active {
		if _, err := s.client.Get(ctx, s.heartbeatKey(id)); err != nil {
			stalled = append(stalled, id)
		}
	}
	return stalled, nil
}

func (s *RedisStore) RetainCompleted(ctx context.Context, queue QueueName, job *Job) error {
	return s.retain(ctx, s.retainKey(queue, "completed"), job, completedRetention)
}

func (s *RedisStore) RetainFailed(ctx context.Context, queue QueueName, job *Job) error {
	return s.retain(ctx, s.retainKey(queue, "failed"), job, failedRetention)
}

// retain appends job to a bounded retention window, indexed by a Redis
// sorted set scored on UpdatedAt (the completion/failure timestamp) so the
// window always holds the max most-recent jobs, not an arbitrary subset --
// a plain Set has no member ordering and cannot support "last N" trimming.
func (s *RedisStore) retain(ctx context.Context, key string, job *Job, max int) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	entryKey := fmt.Sprintf("%s:%s", key, job.ID)
	if err := s.client.Set(ctx, entryKey, data, 7*24*time.Hour); err != nil {
		return err
	}
	indexKey := key + ":index"
	if err := s.client.ZAdd(ctx, indexKey, float64(job.UpdatedAt.Unix()), job.ID); err != nil {
		return err
	}
	count, err := s.client.ZCard(ctx, indexKey)
	if err != nil {
		return err
	}
	excessCount := count - int64(max)
	if excessCount <= 0 {
		return nil
	}
	excess, err := s.client.ZRangeAscending(ctx, indexKey, 0, excessCount-1)
	if err != nil {
		return err
	}
	if err := s.client.ZRemRangeByRankAscending(ctx, indexKey, excessCount); err != nil {
		return err
	}
	for _, id := range excess {
		_ = s.client.Del(ctx, fmt.Sprintf("%s:%s", key, id))
	}
	return nil
}
