package orchestrator

import (
	"container/heap"
	"context"
	"log"
	"sync"
	"time"

	"github.com/shadowatlas/discovery-core/internal/telemetry"
)

// Handler processes one job. Handlers must be idempotent on (queueName,
// jobId) since delivery is at-least-once.
type Handler func(ctx context.Context, job *Job) error

// jobItem is one entry in the priority heap: Cloud Tasks dispatch order is
// FIFO per queue, so priority is enforced at this local level instead,
// ordering waiting jobs by (priority, scheduledAt) -- same channel-based
// queue shape as the teacher's webhooks.Dispatcher, but replacing the bare
// channel with a heap where the webhooks dispatcher used an unordered one.
type jobItem struct {
	job   *Job
	index int
}

type jobHeap []*jobItem

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority // higher priority first
	}
	return h[i].job.ScheduledAt.Before(h[j].job.ScheduledAt)
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *jobHeap) Push(x any) {
	item := x.(*jobItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is one of the three named durable queues. It wraps a Backend
// (Cloud Tasks or in-memory fallback, see backend.go) with a local worker
// pool pulling jobs in priority order, bookkeeping active/completed/failed
// jobs through a Store (see store.go). Modeled on internal/webhooks/
// dispatcher.go's worker-pool + internal/webhooks/cloud_dispatcher.go's
// durable-enqueue-with-fallback shape, generalized from one webhook queue
// to three named job queues.
type Queue struct {
	name        QueueName
	backend     Backend
	store       Store
	logger      *log.Logger
	concurrency int
	metrics     *telemetry.Metrics

	mu      sync.Mutex
	waiting jobHeap
	notify  chan struct{}

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc // connectionID -> cancel
}

// NewQueue constructs a Queue with concurrency worker goroutines. metrics
// may be nil, in which case job accounting is skipped.
func NewQueue(name QueueName, backend Backend, store Store, logger *log.Logger, concurrency int, metrics *telemetry.Metrics) *Queue {
	q := &Queue{
		name:        name,
		backend:     backend,
		store:       store,
		logger:      logger,
		concurrency: concurrency,
		metrics:     metrics,
		notify:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
		cancels:     make(map[string]context.CancelFunc),
	}
	heap.Init(&q.waiting)
	return q
}

// Start launches the worker pool. handler processes each job popped off
// the queue.
func (q *Queue) Start(handler Handler) {
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go q.worker(handler)
	}
	q.wg.Add(1)
	go q.backendPump()
}

// Shutdown signals workers to stop and waits for in-flight jobs to finish,
// mirroring internal/webhooks/dispatcher.go's close(queue)+wg.Wait().
func (q *Queue) Shutdown() {
	q.stopOnce.Do(func() { close(q.stop) })
	q.wg.Wait()
}

// Enqueue submits a job: it is saved to the store and handed to the
// backend. It reaches the local priority heap only when the backend
// delivers it to backendPump, and the worker pool picks it up from there in
// priority order.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	job.Queue = q.name
	if job.MaxAttempts == 0 {
		job.MaxAttempts = DefaultMaxAttempts
	}
	job.Status = JobQueued
	now := time.Now()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}

	if err := q.store.SaveJob(ctx, job); err != nil {
		return err
	}
	if err := q.backend.Enqueue(ctx, job); err != nil {
		return err
	}
	if q.metrics != nil {
		q.metrics.JobsEnqueued.WithLabelValues(string(q.name)).Inc()
	}
	return nil
}

// backendPump drains jobs the backend delivers and pushes them onto the
// local priority heap.
func (q *Queue) backendPump() {
	defer q.wg.Done()
	jobs := q.backend.Deliveries()
	for {
		select {
		case <-q.stop:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			q.push(job)
		}
	}
}

func (q *Queue) push(job *Job) {
	q.mu.Lock()
	heap.Push(&q.waiting, &jobItem{job: job})
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.waiting.Len() == 0 {
		return nil, false
	}
	item := heap.Pop(&q.waiting).(*jobItem)
	return item.job, true
}

func (q *Queue) worker(handler Handler) {
	defer q.wg.Done()
	for {
		job, ok := q.pop()
		if !ok {
			select {
			case <-q.stop:
				return
			case <-q.notify:
				continue
			case <-time.After(500 * time.Millisecond):
				continue
			}
		}
		q.run(handler, job)
	}
}

func (q *Queue) run(handler Handler, job *Job) {
	ctx, cancel := context.WithCancel(context.Background())
	q.registerCancel(job.ConnectionID, cancel)
	defer q.unregisterCancel(job.ConnectionID)
	defer cancel()

	job.Status = JobActive
	job.Attempts++
	job.UpdatedAt = time.Now()
	_ = q.store.SaveJob(ctx, job)
	_ = q.store.Heartbeat(ctx, job.ID)
	hbDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(StalledAfter / 3)
		defer ticker.Stop()
		for {
			select {
			case <-hbDone:
				return
			case <-ticker.C:
				_ = q.store.Heartbeat(ctx, job.ID)
			}
		}
	}()
	started := time.Now()

	err := handler(ctx, job)
	close(hbDone)
	now := time.Now()
	job.UpdatedAt = now
	if q.metrics != nil {
		q.metrics.JobDuration.WithLabelValues(string(q.name)).Observe(now.Sub(started).Seconds())
	}

	if err == nil {
		job.Status = JobCompleted
		_ = q.store.SaveJob(ctx, job)
		_ = q.store.RetainCompleted(ctx, q.name, job)
		if q.metrics != nil {
			q.metrics.JobsCompleted.WithLabelValues(string(q.name)).Inc()
		}
		return
	}

	if job.Attempts >= job.MaxAttempts {
		job.Status = JobFailed
		_ = q.store.SaveJob(ctx, job)
		_ = q.store.RetainFailed(ctx, q.name, job)
		q.logger.Printf("job %s terminally failed after %d attempts: %v", job.ID, job.Attempts, err)
		if q.metrics != nil {
			q.metrics.JobsFailed.WithLabelValues(string(q.name)).Inc()
		}
		return
	}

	delay := Backoff(job.Attempts)
	job.ScheduledAt = now.Add(delay)
	job.Status = JobQueued
	_ = q.store.SaveJob(ctx, job)
	q.logger.Printf("job %s failed (attempt %d/%d), retrying in %s: %v", job.ID, job.Attempts, job.MaxAttempts, delay, err)

	go func(j *Job, d time.Duration) {
		select {
		case <-time.After(d):
			q.push(j)
		case <-q.stop:
		}
	}(job, delay)
}

func (q *Queue) registerCancel(connectionID string, cancel context.CancelFunc) {
	if connectionID == "" {
		return
	}
	q.cancelMu.Lock()
	q.cancels[connectionID] = cancel
	q.cancelMu.Unlock()
}

func (q *Queue) unregisterCancel(connectionID string) {
	if connectionID == "" {
		return
	}
	q.cancelMu.Lock()
	delete(q.cancels, connectionID)
	q.cancelMu.Unlock()
}

// CancelConnection cancels the active job (if any) for connectionID and
// removes any queued jobs for it, per spec.md §4.3 cancellation semantics.
func (q *Queue) CancelConnection(ctx context.Context, connectionID string) {
	q.cancelMu.Lock()
	if cancel, ok := q.cancels[connectionID]; ok {
		cancel()
	}
	q.cancelMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	remaining := q.waiting[:0]
	for _, item := range q.waiting {
		if item.job.ConnectionID == connectionID {
			continue
		}
		remaining = append(remaining, item)
	}
	q.waiting = remaining
	heap.Init(&q.waiting)
}
