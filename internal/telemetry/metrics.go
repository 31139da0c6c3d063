package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments shared across the pipeline,
// following the one-struct-per-domain pattern the teacher uses in
// internal/escrow/metrics.go.
type Metrics struct {
	JobsEnqueued  *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobsStalled   *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec

	AutomationsDiscovered *prometheus.CounterVec
	DetectionConfidence   *prometheus.HistogramVec

	EventBusSubscribers *prometheus.GaugeVec
	EventBusCoalesced   *prometheus.CounterVec
}

// New creates and registers all metrics against the default registry.
func New() *Metrics {
	return &Metrics{
		JobsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_jobs_enqueued_total",
			Help: "Total jobs enqueued, by queue.",
		}, []string{"queue"}),
		JobsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_jobs_completed_total",
			Help: "Total jobs completed, by queue.",
		}, []string{"queue"}),
		JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_jobs_failed_total",
			Help: "Total jobs terminally failed, by queue.",
		}, []string{"queue"}),
		JobsStalled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_jobs_stalled_total",
			Help: "Total jobs declared stalled, by queue.",
		}, []string{"queue"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "discovery_job_duration_seconds",
			Help:    "Job execution duration in seconds, by queue.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		AutomationsDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_automations_discovered_total",
			Help: "Total automations discovered, by platform.",
		}, []string{"platform"}),
		DetectionConfidence: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "discovery_detection_confidence",
			Help:    "AI-provider detection confidence distribution.",
			Buckets: []float64{0.1, 0.25, 0.4, 0.5, 0.6, 0.75, 0.9, 0.95, 1.0},
		}, []string{"provider"}),
		EventBusSubscribers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "discovery_event_bus_subscribers",
			Help: "Active event bus subscribers, by tenant.",
		}, []string{"organization_id"}),
		EventBusCoalesced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_event_bus_coalesced_total",
			Help: "Progress events coalesced under back-pressure.",
		}, []string{"organization_id"}),
	}
}
