package model

import "time"

// RiskLevel is the discretized band of the overall fraud score.
type RiskLevel string

// Risk level constants.
const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Decision is the routing outcome for an assessed invoice.
type Decision string

// Decision constants.
const (
	DecisionApprove Decision = "approve"
	DecisionReview  Decision = "review"
	DecisionBlock   Decision = "block"
)

// Severity orders decisions so policies can enforce a minimum.
func (d Decision) Severity() int {
	switch d {
	case DecisionApprove:
		return 0
	case DecisionReview:
		return 1
	case DecisionBlock:
		return 2
	default:
		return 1
	}
}

// AtLeast returns d or min, whichever is more severe.
func (d Decision) AtLeast(minimum Decision) Decision {
	if d.Severity() < minimum.Severity() {
		return minimum
	}
	return d
}

// FraudAssessment is the result of assessing one invoice. It is built once
// and never modified afterwards; a re-assessment produces a new value.
type FraudAssessment struct {
	AssessedAt   time.Time `json:"assessed_at"`
	InvoiceID    string    `json:"invoice_id"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Decision     Decision  `json:"decision"`
	Findings     []Finding `json:"findings"`
	Triggered    []Finding `json:"triggered"`
	Anomalies    []string  `json:"anomalies,omitempty"`
	OverallScore float64   `json:"overall_score"`
	// DataQuality rates the completeness of the extracted invoice from 0
	// to 1. It does not affect the score.
	DataQuality float64 `json:"data_quality"`
	Partial     bool    `json:"partial"`
}

// Flags returns the fraud flags raised by the triggered findings.
func (a *FraudAssessment) Flags() []string {
	flags := make([]string, 0, len(a.Triggered))
	for _, f := range a.Triggered {
		flags = append(flags, f.Detector.Flag())
	}
	return flags
}

// Finding returns the finding of the named detector, if present.
func (a *FraudAssessment) Finding(name DetectorName) (Finding, bool) {
	for _, f := range a.Findings {
		if f.Detector == name {
			return f, true
		}
	}
	return Finding{}, false
}
