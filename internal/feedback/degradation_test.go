package feedback

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDegradationLogger() *log.Logger {
	return log.New(os.Stderr, "[TEST] ", 0)
}

func TestDegradationDetectorFirstObservationEstablishesBaseline(t *testing.T) {
	var fired []DegradationEvent
	d := NewDegradationDetector(DefaultDegradationConfig(), testDegradationLogger(), func(e DegradationEvent) {
		fired = append(fired, e)
	})

	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 9, FalsePositives: 1})
	assert.Empty(t, fired)
}

func TestDegradationDetectorFiresAfterSustainedDrop(t *testing.T) {
	var fired []DegradationEvent
	cfg := DefaultDegradationConfig()
	cfg.SustainedWindows = 2
	cfg.PrecisionDropAlert = 0.1
	d := NewDegradationDetector(cfg, testDegradationLogger(), func(e DegradationEvent) {
		fired = append(fired, e)
	})

	now := time.Now()
	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 9, FalsePositives: 1, WindowEnd: now}) // baseline 0.9
	assert.Empty(t, fired)

	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 6, FalsePositives: 4, WindowEnd: now}) // 0.6, drop 1
	assert.Empty(t, fired)

	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 6, FalsePositives: 4, WindowEnd: now}) // 0.6, drop 2 -> fires
	require.Len(t, fired, 1)
	assert.Equal(t, "org-1", fired[0].OrganizationID)
	assert.Equal(t, 2, fired[0].ConsecutiveDrops)
}

func TestDegradationDetectorResetsOnRecovery(t *testing.T) {
	var fired []DegradationEvent
	cfg := DefaultDegradationConfig()
	cfg.SustainedWindows = 2
	d := NewDegradationDetector(cfg, testDegradationLogger(), func(e DegradationEvent) { fired = append(fired, e) })

	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 9, FalsePositives: 1}) // baseline 0.9
	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 6, FalsePositives: 4}) // drop 1 (0.6)
	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 9, FalsePositives: 1}) // recovers, resets streak
	d.Observe(Metrics{OrganizationID: "org-1", TruePositives: 6, FalsePositives: 4}) // drop 1 again, not 3

	assert.Empty(t, fired)
}
