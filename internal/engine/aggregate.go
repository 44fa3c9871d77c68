package engine

import (
	"cmp"
	"slices"
	"time"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/similarity"
)

// Risk band lower bounds.
const (
	mediumRiskFloor   = 0.3
	highRiskFloor     = 0.6
	criticalRiskFloor = 0.8
)

// Aggregator combines detector findings into an assessment.
type Aggregator struct {
	weights        Weights
	highConfidence float64
}

// NewAggregator creates an aggregator. The weights are normalized to sum
// to 1.
func NewAggregator(weights Weights, highConfidence float64) (*Aggregator, error) {
	normalized, err := weights.Normalized()
	if err != nil {
		return nil, err
	}
	return &Aggregator{weights: normalized, highConfidence: highConfidence}, nil
}

// Aggregate builds the assessment for one invoice. Findings are reported in
// canonical detector order; degraded findings contribute nothing to the
// score and mark the assessment partial.
func (a *Aggregator) Aggregate(invoiceID string, findings []model.Finding, anomalies []string, at time.Time) *model.FraudAssessment {
	ordered := slices.Clone(findings)
	slices.SortStableFunc(ordered, func(x, y model.Finding) int {
		return cmp.Compare(x.Detector.Order(), y.Detector.Order())
	})

	score := 0.0
	partial := false
	triggered := make([]model.Finding, 0, len(ordered))
	for _, f := range ordered {
		if f.Degraded() {
			partial = true
			continue
		}
		score += a.weights.For(f.Detector) * similarity.Clamp01(f.Score)
		if f.Triggered() {
			triggered = append(triggered, f)
		}
	}
	score = similarity.Clamp01(score)

	slices.SortStableFunc(triggered, func(x, y model.Finding) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		return cmp.Compare(x.Detector.Order(), y.Detector.Order())
	})

	level := ClassifyRisk(score)
	return &model.FraudAssessment{
		InvoiceID:    invoiceID,
		OverallScore: score,
		RiskLevel:    level,
		Findings:     ordered,
		Triggered:    triggered,
		Decision:     Decide(level, triggered, partial, a.highConfidence),
		Partial:      partial,
		Anomalies:    anomalies,
		AssessedAt:   at,
	}
}

// ClassifyRisk maps an overall score to its risk band. Bands are closed at
// the bottom and open at the top, except critical which includes 1.
func ClassifyRisk(score float64) model.RiskLevel {
	switch {
	case score >= criticalRiskFloor:
		return model.RiskCritical
	case score >= highRiskFloor:
		return model.RiskHigh
	case score >= mediumRiskFloor:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// Decide applies the routing policy. A partial assessment is never
// auto-approved.
func Decide(level model.RiskLevel, triggered []model.Finding, partial bool, highConfidence float64) model.Decision {
	decision := model.DecisionApprove
	switch {
	case level == model.RiskCritical:
		decision = model.DecisionBlock
	case level == model.RiskHigh:
		decision = model.DecisionReview
	case anyConfident(triggered, highConfidence):
		decision = model.DecisionReview
	case level == model.RiskMedium:
		decision = model.DecisionReview
	case len(triggered) > 0:
		// Low score, but a detector still raised its flag.
		decision = model.DecisionReview
	}

	if partial {
		decision = decision.AtLeast(model.DecisionReview)
	}
	return decision
}

func anyConfident(findings []model.Finding, minConfidence float64) bool {
	for _, f := range findings {
		if f.Triggered() && f.Confidence >= minConfidence {
			return true
		}
	}
	return false
}
