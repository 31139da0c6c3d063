package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the Risk Engine emits against,
// grounded on internal/escrow/metrics.go's one-struct-per-domain,
// promauto-registered shape.
type Metrics struct {
	RiskScore      *prometheus.GaugeVec
	Recomputations *prometheus.CounterVec
	FactorCount    *prometheus.HistogramVec
}

// NewMetrics registers and returns the Risk Engine's metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RiskScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "discovery_risk_score",
				Help: "Current risk score for an automation",
			},
			[]string{"organization_id", "automation_id"},
		),
		Recomputations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_risk_recomputations_total",
				Help: "Total number of risk assessment recomputations",
			},
			[]string{"organization_id", "overall_risk"},
		),
		FactorCount: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_risk_factor_count",
				Help:    "Number of risk factors contributing to an assessment",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"organization_id"},
		),
	}
}

// Record updates the gauge/counter/histogram instruments for one
// computed Assessment.
func (m *Metrics) Record(organizationID, automationID string, a Assessment) {
	m.RiskScore.WithLabelValues(organizationID, automationID).Set(float64(a.RiskScore))
	m.Recomputations.WithLabelValues(organizationID, string(a.OverallRisk)).Inc()
	m.FactorCount.WithLabelValues(organizationID).Observe(float64(len(a.RiskFactors)))
}
