package feedback

import (
	"log"
	"sync"
	"time"
)

// DegradationEvent is raised when precision has dropped and stayed down
// across consecutive rolling windows (spec.md §4.6: "sustained drop in
// precision -> raises a system notification").
type DegradationEvent struct {
	OrganizationID  string
	Metric          string
	CurrentValue    float64
	BaselineValue   float64
	ConsecutiveDrops int
	At              time.Time
}

// DegradationConfig mirrors internal/security/continuous_eval.go's
// ContinuousEvalConfig shape: a sweep cadence plus the thresholds that
// decide when a drift is "sustained" rather than noise.
type DegradationConfig struct {
	SweepInterval       time.Duration
	PrecisionDropAlert  float64 // absolute precision drop vs baseline that counts as a "drop"
	SustainedWindows    int     // consecutive windows a drop must persist before alerting
}

// DefaultDegradationConfig matches internal/config's Feedback section
// defaults.
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		SweepInterval:      time.Hour,
		PrecisionDropAlert: 0.15,
		SustainedWindows:   3,
	}
}

// organizationState tracks one organization's rolling precision baseline
// and how many consecutive windows it has been depressed, the same
// per-key running-state shape continuous_eval.go keeps per session.
type organizationState struct {
	baseline         float64
	consecutiveDrops int
}

// DegradationDetector watches each organization's rolling Metrics and
// raises a DegradationEvent once a precision drop persists across
// SustainedWindows consecutive aggregation cycles, directly modeled on
// ContinuousAccessEvaluator's sweep-and-threshold-check loop.
type DegradationDetector struct {
	mu     sync.Mutex
	state  map[string]*organizationState
	cfg    DegradationConfig
	logger *log.Logger
	notify func(DegradationEvent)
}

// NewDegradationDetector constructs a detector. notify is called
// (synchronously, from the caller's goroutine) whenever a sustained drop
// is confirmed -- in production this publishes a system:notification
// event onto the Event Bus.
func NewDegradationDetector(cfg DegradationConfig, logger *log.Logger, notify func(DegradationEvent)) *DegradationDetector {
	return &DegradationDetector{
		state:  make(map[string]*organizationState),
		cfg:    cfg,
		logger: logger,
		notify: notify,
	}
}

// Observe feeds one rolling-window Metrics computation through the
// detector. The first observation for an organization establishes its
// baseline rather than comparing against zero.
func (d *DegradationDetector) Observe(m Metrics) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.state[m.OrganizationID]
	if !ok {
		d.state[m.OrganizationID] = &organizationState{baseline: m.Precision()}
		return
	}

	precision := m.Precision()
	if st.baseline-precision >= d.cfg.PrecisionDropAlert {
		st.consecutiveDrops++
	} else {
		st.consecutiveDrops = 0
		// A recovered or improved precision becomes the new baseline so
		// the detector tracks drift relative to recent performance, not
		// a value from months ago.
		st.baseline = precision
	}

	if st.consecutiveDrops >= d.cfg.SustainedWindows {
		event := DegradationEvent{
			OrganizationID:   m.OrganizationID,
			Metric:           "precision",
			CurrentValue:     precision,
			BaselineValue:    st.baseline,
			ConsecutiveDrops: st.consecutiveDrops,
			At:               m.WindowEnd,
		}
		d.logger.Printf("precision degradation for org %s: %.2f -> %.2f over %d windows",
			m.OrganizationID, st.baseline, precision, st.consecutiveDrops)
		if d.notify != nil {
			d.notify(event)
		}
		// Reset so repeated notifications require a fresh run of drops
		// rather than firing every subsequent cycle.
		st.consecutiveDrops = 0
		st.baseline = precision
	}
}
