package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedisPubSub struct {
	mu       sync.Mutex
	handlers map[string][]func([]byte)
	fail     bool
}

func newFakeRedisPubSub() *fakeRedisPubSub {
	return &fakeRedisPubSub{handlers: make(map[string][]func([]byte))}
}

func (f *fakeRedisPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	if f.fail {
		return assert.AnError
	}
	f.mu.Lock()
	handlers := append([]func([]byte){}, f.handlers[channel]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(message)
	}
	return nil
}

func (f *fakeRedisPubSub) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error) {
	f.mu.Lock()
	f.handlers[channel] = append(f.handlers[channel], handler)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, channel)
	}, nil
}

func TestRedisBusDeliversAcrossSimulatedPods(t *testing.T) {
	client := newFakeRedisPubSub()
	podA := NewRedisBus(client, "test:", testLogger())
	podB := NewRedisBus(client, "test:", testLogger())

	ch, unsub := podB.Subscribe("org-1")
	defer unsub()

	ev, _ := NewSystemNotification("org-1", SystemNotificationData{Level: "info", Message: "hi", At: time.Now()})
	require.NoError(t, podA.Publish(context.Background(), ev))

	select {
	case got := <-ch:
		assert.Equal(t, ev.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected pod B subscriber to receive pod A's publish")
	}
}

func TestRedisBusFallsBackToLocalOnPublishFailure(t *testing.T) {
	client := newFakeRedisPubSub()
	client.fail = true
	bus := NewRedisBus(client, "test:", testLogger())

	ch, unsub := bus.Subscribe("org-1")
	defer unsub()

	ev, _ := NewSystemNotification("org-1", SystemNotificationData{Level: "info", Message: "hi", At: time.Now()})
	require.NoError(t, bus.Publish(context.Background(), ev))

	select {
	case got := <-ch:
		assert.Equal(t, ev.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected local fallback delivery")
	}
}
