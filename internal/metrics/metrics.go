// Package metrics provides Prometheus instrumentation for the fraud engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Baseline update results.
const (
	ResultApplied  = "applied"
	ResultFailed   = "failed"
	ResultRejected = "rejected"

	// ResultSkipped counts repeated approvals already in the baseline.
	ResultSkipped = "skipped"
)

// Metrics provides observability for the fraud engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Assessments by routing decision and risk level
	Assessments *prometheus.CounterVec

	// Detector findings by detector and tri-state status
	DetectorFindings *prometheus.CounterVec

	// Detector run latencies by detector
	DetectorLatency *prometheus.HistogramVec

	// Full assessment latency
	AssessLatency prometheus.Histogram

	// Baseline updates by result
	BaselineUpdates *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. A nil reg registers on
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Assessments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_assessments_total",
			Help: "Total invoice assessments by decision and risk level",
		}, []string{"decision", "risk_level"}),

		DetectorFindings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_detector_findings_total",
			Help: "Total detector findings by detector and status",
		}, []string{"detector", "status"}), // status: "triggered", "not_triggered", "degraded"

		DetectorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_detector_duration_seconds",
			Help:    "Duration of a single detector run including its lookups",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"detector"}),

		AssessLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_assess_duration_seconds",
			Help:    "Duration of a full invoice assessment",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		BaselineUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_baseline_updates_total",
			Help: "Total baseline update attempts by result",
		}, []string{"result"}),
	}
}

// IncrementAssessment records a completed assessment.
func (m *Metrics) IncrementAssessment(decision, riskLevel string) {
	if m != nil {
		m.Assessments.WithLabelValues(decision, riskLevel).Inc()
	}
}

// IncrementFinding records one detector finding.
func (m *Metrics) IncrementFinding(detector, status string) {
	if m != nil {
		m.DetectorFindings.WithLabelValues(detector, status).Inc()
	}
}

// ObserveDetectorLatency records the duration of one detector run.
func (m *Metrics) ObserveDetectorLatency(detector string, d time.Duration) {
	if m != nil {
		m.DetectorLatency.WithLabelValues(detector).Observe(d.Seconds())
	}
}

// ObserveAssessLatency records the total assessment duration.
func (m *Metrics) ObserveAssessLatency(d time.Duration) {
	if m != nil {
		m.AssessLatency.Observe(d.Seconds())
	}
}

// IncrementBaselineUpdate records a baseline update attempt.
func (m *Metrics) IncrementBaselineUpdate(result string) {
	if m != nil {
		m.BaselineUpdates.WithLabelValues(result).Inc()
	}
}
