package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
)

// Backend durably accepts jobs and delivers them back out for local
// processing. Two implementations exist, matching internal/webhooks'
// Dispatcher/CloudDispatcher pair: CloudTasksBackend (durable, at-least-
// once) and MemoryBackend (process-local fallback).
type Backend interface {
	Enqueue(ctx context.Context, job *Job) error
	Deliveries() <-chan *Job
}

// MemoryBackend is a bounded-channel in-memory backend, used when Cloud
// Tasks is unavailable or disabled, directly mirroring internal/webhooks/
// dispatcher.go's buffered-channel queue.
type MemoryBackend struct {
	queue chan *Job
}

// NewMemoryBackend returns a backend with a bounded queue of size bufSize.
func NewMemoryBackend(bufSize int) *MemoryBackend {
	return &MemoryBackend{queue: make(chan *Job, bufSize)}
}

func (m *MemoryBackend) Enqueue(ctx context.Context, job *Job) error {
	select {
	case m.queue <- job:
		return nil
	default:
		return fmt.Errorf("orchestrator: memory backend queue full for job %s", job.ID)
	}
}

func (m *MemoryBackend) Deliveries() <-chan *Job { return m.queue }

// CloudTasksBackend enqueues jobs onto a Cloud Tasks queue and falls back
// to an embedded MemoryBackend if the enqueue call itself fails, mirroring
// internal/webhooks/cloud_dispatcher.go's CloudDispatcher.
type CloudTasksBackend struct {
	client     *cloudtasks.Client
	queuePath  string
	targetURL  string
	logger     *log.Logger
	fallback   *MemoryBackend
	deliveries chan *Job
}

// NewCloudTasksBackend builds a backend targeting the Cloud Tasks queue at
// projects/{projectID}/locations/{locationID}/queues/{queueID}. targetURL
// is the HTTP endpoint Cloud Tasks calls back into (the worker's job
// intake handler); in this architecture the callback handler re-pushes
// the decoded job onto the local deliveries channel.
func NewCloudTasksBackend(client *cloudtasks.Client, projectID, locationID, queueID, targetURL string, logger *log.Logger) *CloudTasksBackend {
	return &CloudTasksBackend{
		client:     client,
		queuePath:  fmt.Sprintf("projects/%s/locations/%s/queues/%s", projectID, locationID, queueID),
		targetURL:  targetURL,
		logger:     logger,
		fallback:   NewMemoryBackend(1000),
		deliveries: make(chan *Job, 1000),
	}
}

func (c *CloudTasksBackend) Enqueue(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal job: %w", err)
	}

	req := &cloudtaskspb.CreateTaskRequest{
		Parent: c.queuePath,
		Task: &cloudtaskspb.Task{
			MessageType: &cloudtaskspb.Task_HttpRequest{
				HttpRequest: &cloudtaskspb.HttpRequest{
					Url:        c.targetURL,
					HttpMethod: cloudtaskspb.HttpMethod_POST,
					Body:       payload,
				},
			},
		},
	}
	go func() {
		if _, err := c.client.CreateTask(context.Background(), req); err != nil {
			c.logger.Printf("cloud tasks enqueue failed for job %s, falling back to memory: %v", job.ID, err)
			if ferr := c.fallback.Enqueue(context.Background(), job); ferr != nil {
				c.logger.Printf("memory fallback enqueue also failed for job %s: %v", job.ID, ferr)
			}
		}
	}()
	return nil
}

// Deliver is called by the worker's HTTP intake handler once Cloud Tasks
// calls back, decoding the job and pushing it onto the local channel.
func (c *CloudTasksBackend) Deliver(job *Job) {
	select {
	case c.deliveries <- job:
	default:
	}
}

func (c *CloudTasksBackend) Deliveries() <-chan *Job {
	merged := make(chan *Job, 1000)
	go func() {
		for {
			select {
			case j, ok := <-c.deliveries:
				if !ok {
					return
				}
				merged <- j
			case j, ok := <-c.fallback.Deliveries():
				if !ok {
					return
				}
				merged <- j
			}
		}
	}()
	return merged
}
