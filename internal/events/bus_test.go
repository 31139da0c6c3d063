package events

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[TEST] ", 0)
}

func TestLocalBusDeliversOnlyToSubscribersOfSameOrganization(t *testing.T) {
	bus := NewLocalBus(testLogger())
	chA, unsubA := bus.Subscribe("org-a")
	defer unsubA()
	chB, unsubB := bus.Subscribe("org-b")
	defer unsubB()

	ev, err := NewSystemNotification("org-a", SystemNotificationData{Level: "info", Message: "hi", At: time.Now()})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	select {
	case got := <-chA:
		assert.Equal(t, ev.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected org-a subscriber to receive the event")
	}

	select {
	case <-chB:
		t.Fatal("org-b subscriber should not receive org-a's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBusCoalescesProgressUnderBackpressure(t *testing.T) {
	bus := NewLocalBus(testLogger())
	ch, unsub := bus.Subscribe("org-1")
	defer unsub()

	// Fill the subscriber's buffer so further sends must coalesce or queue.
	for i := 0; i < subscriberBufferSize; i++ {
		ev, _ := NewSystemNotification("org-1", SystemNotificationData{Level: "info", Message: "filler", At: time.Now()})
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	for i := 0; i < 5; i++ {
		ev, _ := NewDiscoveryProgress("org-1", DiscoveryProgressData{
			ConnectionID: "conn-1", Progress: i * 20, Status: "running", At: time.Now(),
		})
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	// Drain the filler backlog plus the queue; the progress events should
	// have been coalesced down to at most one per flush rather than five.
	var progressSeen int
	deadline := time.After(2 * time.Second)
drain:
	for {
		select {
		case ev := <-ch:
			if ev.Type == KindDiscoveryProgress {
				progressSeen++
			}
		case <-deadline:
			break drain
		}
	}
	assert.Less(t, progressSeen, 5, "coalescing should have dropped intermediate progress values")
}

func TestLocalBusNeverCoalescesAutomationDiscovered(t *testing.T) {
	bus := NewLocalBus(testLogger())
	ch, unsub := bus.Subscribe("org-1")
	defer unsub()

	for i := 0; i < subscriberBufferSize; i++ {
		ev, _ := NewSystemNotification("org-1", SystemNotificationData{Level: "info", Message: "filler", At: time.Now()})
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	for i := 0; i < 3; i++ {
		ev, _ := NewAutomationDiscovered("org-1", AutomationDiscoveredData{
			AutomationID: "auto-" + string(rune('a'+i)), Name: "bot", Platform: "slack", RiskLevel: "high", At: time.Now(),
		})
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	var discovered int
	deadline := time.After(2 * time.Second)
drain:
	for {
		select {
		case ev := <-ch:
			if ev.Type == KindAutomationDiscovered {
				discovered++
			}
		case <-deadline:
			break drain
		}
	}
	assert.Equal(t, 3, discovered, "automation:discovered must never be dropped")
}

func TestLocalBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewLocalBus(testLogger())
	ch, unsub := bus.Subscribe("org-1")
	unsub()

	ev, _ := NewSystemNotification("org-1", SystemNotificationData{Level: "info", Message: "hi", At: time.Now()})
	require.NoError(t, bus.Publish(context.Background(), ev))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestLocalBusSubscriberCount(t *testing.T) {
	bus := NewLocalBus(testLogger())
	_, unsub1 := bus.Subscribe("org-1")
	_, unsub2 := bus.Subscribe("org-1")
	defer unsub1()
	defer unsub2()

	assert.Equal(t, 2, bus.SubscriberCount("org-1"))
	assert.Equal(t, 0, bus.SubscriberCount("org-2"))
}
