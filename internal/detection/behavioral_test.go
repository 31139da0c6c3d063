package detection

import (
	"testing"
	"time"

	"github.com/shadowatlas/discovery-core/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventsAt(times ...time.Time) []connector.NormalizedAuditEvent {
	var out []connector.NormalizedAuditEvent
	for _, tm := range times {
		out = append(out, connector.NormalizedAuditEvent{Action: "call", OccurredAt: tm})
	}
	return out
}

func TestVelocityDetectorFlagsBurst(t *testing.T) {
	cfg := DefaultDetectorConfiguration()
	cfg.VelocityThreshold = 5
	cfg.VelocityWindow = time.Minute

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	var times []time.Time
	for i := 0; i < 6; i++ {
		times = append(times, base.Add(time.Duration(i)*5*time.Second))
	}

	factors := VelocityDetector(eventsAt(times...), cfg)
	require.Len(t, factors, 1)
	assert.Equal(t, "velocity_burst", factors[0].Code)
}

func TestVelocityDetectorIgnoresSparseEvents(t *testing.T) {
	cfg := DefaultDetectorConfiguration()
	cfg.VelocityThreshold = 5
	cfg.VelocityWindow = time.Minute

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}

	factors := VelocityDetector(eventsAt(times...), cfg)
	assert.Empty(t, factors)
}

func TestBatchDetectorFlagsLargeTargetSet(t *testing.T) {
	cfg := DefaultDetectorConfiguration()
	cfg.BatchThreshold = 50

	targets := make([]string, 60)
	for i := range targets {
		targets[i] = "file-" + string(rune('a'+i%26))
	}
	event := connector.NormalizedAuditEvent{Action: "bulk_delete", TargetIDs: targets, OccurredAt: time.Now()}

	factors := BatchDetector([]connector.NormalizedAuditEvent{event}, cfg)
	require.Len(t, factors, 1)
	assert.Equal(t, "batch_operation", factors[0].Code)
}

func TestOffHoursDetectorFlagsWeekendActivity(t *testing.T) {
	cfg := DefaultDetectorConfiguration()
	saturday := time.Date(2026, 8, 1, 14, 0, 0, 0, time.UTC) // a Saturday
	require.Equal(t, time.Saturday, saturday.Weekday())

	factors := OffHoursDetector(eventsAt(saturday), cfg)
	require.Len(t, factors, 1)
	assert.Equal(t, "off_hours_activity", factors[0].Code)
}

func TestOffHoursDetectorIgnoresBusinessHours(t *testing.T) {
	cfg := DefaultDetectorConfiguration()
	tuesdayNoon := time.Date(2026, 8, 4, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Tuesday, tuesdayNoon.Weekday())

	factors := OffHoursDetector(eventsAt(tuesdayNoon), cfg)
	assert.Empty(t, factors)
}
