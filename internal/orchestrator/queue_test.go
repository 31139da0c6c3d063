package orchestrator

import (
	"container/heap"
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobHeapOrdersByPriorityThenScheduledAt(t *testing.T) {
	h := &jobHeap{}
	heap.Init(h)

	now := time.Now()
	low := &Job{ID: "low", Priority: 1, ScheduledAt: now}
	highLater := &Job{ID: "high-later", Priority: 5, ScheduledAt: now.Add(time.Minute)}
	highEarlier := &Job{ID: "high-earlier", Priority: 5, ScheduledAt: now}

	heap.Push(h, &jobItem{job: low})
	heap.Push(h, &jobItem{job: highLater})
	heap.Push(h, &jobItem{job: highEarlier})

	first := heap.Pop(h).(*jobItem).job
	second := heap.Pop(h).(*jobItem).job
	third := heap.Pop(h).(*jobItem).job

	assert.Equal(t, "high-earlier", first.ID)
	assert.Equal(t, "high-later", second.ID)
	assert.Equal(t, "low", third.ID)
}

// fakeStore is an in-memory Store for queue lifecycle tests, avoiding any
// real Redis dependency.
type fakeStore struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	completed []*Job
	failed    []*Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*Job)}
}

func (s *fakeStore) SaveJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeStore) LoadJob(ctx context.Context, jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, assert.AnError
	}
	cp := *j
	return &cp, nil
}

func (s *fakeStore) Heartbeat(ctx context.Context, jobID string) error { return nil }

func (s *fakeStore) StalledJobIDs(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	return nil, nil
}

func (s *fakeStore) RetainCompleted(ctx context.Context, queue QueueName, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, job)
	return nil
}

func (s *fakeStore) RetainFailed(ctx context.Context, queue QueueName, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, job)
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[TEST] ", 0)
}

func TestQueueRunsJobToCompletion(t *testing.T) {
	backend := NewMemoryBackend(10)
	store := newFakeStore()
	q := NewQueue(QueueDiscovery, backend, store, testLogger(), 1, nil)

	var processed chan struct{} = make(chan struct{}, 1)
	q.Start(func(ctx context.Context, job *Job) error {
		processed <- struct{}{}
		return nil
	})
	defer q.Shutdown()

	err := q.Enqueue(context.Background(), &Job{ID: "job-1", OrganizationID: "org-1"})
	require.NoError(t, err)

	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never processed")
	}

	time.Sleep(50 * time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.completed, 1)
	assert.Equal(t, JobCompleted, store.completed[0].Status)
}

func TestQueueRetriesThenTerminallyFails(t *testing.T) {
	backend := NewMemoryBackend(10)
	store := newFakeStore()
	q := NewQueue(QueueDiscovery, backend, store, testLogger(), 1, nil)

	var attempts int
	var mu sync.Mutex
	done := make(chan struct{})

	q.Start(func(ctx context.Context, job *Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n >= 2 {
			close(done)
		}
		return assert.AnError
	})
	defer q.Shutdown()

	err := q.Enqueue(context.Background(), &Job{ID: "job-2", OrganizationID: "org-1", MaxAttempts: 2})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not reach its second attempt")
	}

	// Backoff(1) is 2s, so give the retry loop time to requeue and fail
	// terminally before asserting.
	time.Sleep(3 * time.Second)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.failed, 1)
	assert.Equal(t, JobFailed, store.failed[0].Status)
	assert.Equal(t, 2, store.failed[0].Attempts)
}

func TestCancelConnectionRemovesQueuedJobs(t *testing.T) {
	backend := NewMemoryBackend(10)
	store := newFakeStore()
	q := NewQueue(QueueDiscovery, backend, store, testLogger(), 0, nil)

	q.push(&Job{ID: "a", ConnectionID: "conn-x", Priority: 1})
	q.push(&Job{ID: "b", ConnectionID: "conn-y", Priority: 1})
	q.push(&Job{ID: "c", ConnectionID: "conn-x", Priority: 1})

	q.CancelConnection(context.Background(), "conn-x")

	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.waiting, 1)
	assert.Equal(t, "b", q.waiting[0].job.ID)
}
