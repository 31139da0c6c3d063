package events

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubBus wraps LocalBus and also publishes every event to a Google
// Cloud Pub/Sub topic for durable, cross-service delivery to consumers
// outside this process (audit export, downstream SIEM forwarding).
//
// Fan-out strategy:
//   - Pub/Sub: durable, at-least-once delivery to downstream consumers
//   - LocalBus: immediate push to in-process websocket/SSE subscribers
type PubSubBus struct {
	*LocalBus

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *log.Logger
}

// NewPubSubBus creates a Pub/Sub-backed event bus. It creates the topic
// if it does not exist and enables per-(organization, connection)
// message ordering.
func NewPubSubBus(projectID, topicID string) (*PubSubBus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		slog.Info("created pub/sub topic", "topic_id", topicID)
	}

	// Ordering key is organizationId:connectionId, satisfying the
	// stricter per-connection ordering guarantee for discovery:progress.
	topic.EnableMessageOrdering = true

	logger := log.New(log.Writer(), "[PUBSUB] ", log.LstdFlags)
	logger.Printf("connected to pub/sub topic: projects/%s/topics/%s", projectID, topicID)

	return &PubSubBus{
		LocalBus: NewLocalBus(logger),
		client:   client,
		topic:    topic,
		logger:   logger,
	}, nil
}

// Publish publishes event to Pub/Sub (durable) and fans out to local
// in-process subscribers. Pub/Sub publish failures are logged but never
// block local delivery — live subscribers still see the event.
func (pb *PubSubBus) Publish(ctx context.Context, event *CloudEvent) error {
	pb.publishToPubSub(ctx, event)
	return pb.LocalBus.Publish(ctx, event)
}

func (pb *PubSubBus) orderingKey(event *CloudEvent) string {
	if event.ConnectionID == "" {
		return event.OrganizationID
	}
	return event.OrganizationID + ":" + event.ConnectionID
}

func (pb *PubSubBus) publishToPubSub(ctx context.Context, event *CloudEvent) {
	payload, err := event.JSON()
	if err != nil {
		pb.logger.Printf("failed to marshal event %s: %v", event.ID, err)
		return
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-specversion":    event.SpecVersion,
			"ce-type":           string(event.Type),
			"ce-source":         event.Source,
			"ce-id":             event.ID,
			"ce-time":           event.Time.Format(time.RFC3339Nano),
			"ce-organizationid": event.OrganizationID,
			"ce-connectionid":   event.ConnectionID,
		},
		OrderingKey: pb.orderingKey(event),
	}

	result := pb.topic.Publish(ctx, msg)
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			pb.logger.Printf("pub/sub publish failed: %s -> %v", event.ID, err)
		}
	}()
}

// Close gracefully shuts down the Pub/Sub client and local subscriptions.
func (pb *PubSubBus) Close() error {
	pb.topic.Stop()
	if err := pb.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close: %w", err)
	}
	return pb.LocalBus.Close()
}

// TopicPath returns the fully-qualified Pub/Sub topic path.
func (pb *PubSubBus) TopicPath() string {
	return pb.topic.String()
}

// HealthCheck verifies the Pub/Sub topic is reachable.
func (pb *PubSubBus) HealthCheck(ctx context.Context) error {
	exists, err := pb.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("topic health check: %w", err)
	}
	if !exists {
		return fmt.Errorf("topic does not exist")
	}
	return nil
}

var _ Bus = (*PubSubBus)(nil)
