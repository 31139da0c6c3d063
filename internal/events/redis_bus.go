// Cross-pod event distribution. LocalBus only delivers within one
// process; RedisBus uses Redis Pub/Sub so an event published on one pod
// reaches subscribers connected to another, falling back to local-only
// delivery when Redis is unreachable.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/shadowatlas/discovery-core/internal/telemetry"
)

// RedisPubSubClient is a minimal interface for Redis Pub/Sub operations.
type RedisPubSubClient interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// RedisBus distributes events across pods using Redis Pub/Sub, keyed per
// organization so a tenant's traffic never crosses another's channel.
type RedisBus struct {
	local  *LocalBus
	pubsub RedisPubSubClient
	prefix string
	logger *log.Logger

	mu       sync.Mutex
	orgUnsub map[string]func()
	orgRefs  map[string]int
}

// NewRedisBus creates a Redis-backed event bus.
func NewRedisBus(client RedisPubSubClient, channelPrefix string, logger *log.Logger) *RedisBus {
	if channelPrefix == "" {
		channelPrefix = "discovery:events:"
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[EVENTS-REDIS] ", log.LstdFlags)
	}
	return &RedisBus{
		local:    NewLocalBus(logger),
		pubsub:   client,
		prefix:   channelPrefix,
		logger:   logger,
		orgUnsub: make(map[string]func()),
		orgRefs:  make(map[string]int),
	}
}

// SetMetrics attaches Prometheus instruments to the local delivery half
// of the bus (subscriber count and coalescing are process-local concerns
// regardless of how events cross pods).
func (b *RedisBus) SetMetrics(m *telemetry.Metrics) {
	b.local.SetMetrics(m)
}

func (b *RedisBus) channel(organizationID string) string {
	return b.prefix + organizationID
}

// Publish sends event to Redis so every pod's subscribers receive it. If
// Redis is unreachable it falls back to delivering only to subscribers
// attached to this process.
func (b *RedisBus) Publish(ctx context.Context, event *CloudEvent) error {
	data, err := event.JSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.pubsub.Publish(ctx, b.channel(event.OrganizationID), data); err != nil {
		b.logger.Printf("publish failed, falling back to local: org=%s err=%v", event.OrganizationID, err)
		return b.local.Publish(ctx, event)
	}
	return nil
}

// Subscribe registers a local subscriber and, for the first subscriber of
// an organization, opens a Redis subscription that fans incoming
// cross-pod events into the local bus.
func (b *RedisBus) Subscribe(organizationID string) (<-chan *CloudEvent, func()) {
	ch, localUnsub := b.local.Subscribe(organizationID)

	b.mu.Lock()
	if b.orgRefs[organizationID] == 0 {
		unsub, err := b.pubsub.Subscribe(context.Background(), b.channel(organizationID), func(data []byte) {
			var event CloudEvent
			if err := json.Unmarshal(data, &event); err != nil {
				b.logger.Printf("failed to unmarshal event: %v", err)
				return
			}
			b.local.Publish(context.Background(), &event)
		})
		if err != nil {
			b.logger.Printf("redis subscribe failed, local-only mode: org=%s err=%v", organizationID, err)
		} else {
			b.orgUnsub[organizationID] = unsub
		}
	}
	b.orgRefs[organizationID]++
	b.mu.Unlock()

	unsubscribe := func() {
		localUnsub()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.orgRefs[organizationID]--
		if b.orgRefs[organizationID] <= 0 {
			if unsub := b.orgUnsub[organizationID]; unsub != nil {
				unsub()
			}
			delete(b.orgUnsub, organizationID)
			delete(b.orgRefs, organizationID)
		}
	}
	return ch, unsubscribe
}

// Close shuts down all Redis subscriptions and the local bus.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	for _, unsub := range b.orgUnsub {
		unsub()
	}
	b.orgUnsub = make(map[string]func())
	b.orgRefs = make(map[string]int)
	b.mu.Unlock()

	return b.local.Close()
}

var _ Bus = (*RedisBus)(nil)
