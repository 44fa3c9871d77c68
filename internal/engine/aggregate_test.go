package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/model"
)

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		want  model.RiskLevel
		score float64
	}{
		{score: 0, want: model.RiskLow},
		{score: 0.2999, want: model.RiskLow},
		{score: 0.3, want: model.RiskMedium},
		{score: 0.5999, want: model.RiskMedium},
		{score: 0.6, want: model.RiskHigh},
		{score: 0.7999, want: model.RiskHigh},
		{score: 0.8, want: model.RiskCritical},
		{score: 1, want: model.RiskCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRisk(tt.score), "score %v", tt.score)
	}
}

func TestDecide(t *testing.T) {
	weak := model.Finding{Detector: model.DetectorGhostVendor, Status: model.StatusTriggered, Score: 0.7, Confidence: 0.5}
	confident := model.Finding{Detector: model.DetectorDuplicate, Status: model.StatusTriggered, Score: 0.9, Confidence: 0.9}

	tests := []struct {
		name      string
		level     model.RiskLevel
		want      model.Decision
		triggered []model.Finding
		partial   bool
	}{
		{name: "critical blocks", level: model.RiskCritical, want: model.DecisionBlock},
		{name: "critical partial still blocks", level: model.RiskCritical, partial: true, want: model.DecisionBlock},
		{name: "high reviews", level: model.RiskHigh, want: model.DecisionReview},
		{name: "medium reviews", level: model.RiskMedium, want: model.DecisionReview},
		{name: "low with confident finding reviews", level: model.RiskLow, triggered: []model.Finding{confident}, want: model.DecisionReview},
		{name: "low with weak finding reviews", level: model.RiskLow, triggered: []model.Finding{weak}, want: model.DecisionReview},
		{name: "low and quiet approves", level: model.RiskLow, want: model.DecisionApprove},
		{name: "low partial reviews", level: model.RiskLow, partial: true, want: model.DecisionReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.level, tt.triggered, tt.partial, 0.8))
		})
	}
}

func TestAggregator_Aggregate(t *testing.T) {
	at := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	t.Run("weighted score in canonical order", func(t *testing.T) {
		a, err := NewAggregator(Weights{Duplicate: 1, Inflation: 1, GhostVendor: 1, SplitBilling: 1}, 0.8)
		require.NoError(t, err)

		findings := []model.Finding{
			{Detector: model.DetectorSplitBilling, Status: model.StatusTriggered, Score: 0.6, Confidence: 1},
			{Detector: model.DetectorGhostVendor, Status: model.StatusNotTriggered, Score: 0.4, Confidence: 1},
			{Detector: model.DetectorInflation, Status: model.StatusTriggered, Score: 0.9, Confidence: 1},
			{Detector: model.DetectorDuplicate, Status: model.StatusTriggered, Score: 0.9, Confidence: 0.9},
		}

		got := a.Aggregate("inv-1", findings, []string{"round_amount"}, at)

		assert.Equal(t, "inv-1", got.InvoiceID)
		assert.InDelta(t, 0.7, got.OverallScore, 1e-9)
		assert.Equal(t, model.RiskHigh, got.RiskLevel)
		assert.Equal(t, model.DecisionReview, got.Decision)
		assert.False(t, got.Partial)
		assert.Equal(t, at, got.AssessedAt)
		assert.Equal(t, []string{"round_amount"}, got.Anomalies)

		order := make([]model.DetectorName, 0, len(got.Findings))
		for _, f := range got.Findings {
			order = append(order, f.Detector)
		}
		assert.Equal(t, model.Detectors, order)

		// Ties on score fall back to canonical detector order.
		assert.Equal(t, []string{"duplicate", "inflated_expense", "split_billing"}, got.Flags())
	})

	t.Run("degraded findings contribute nothing", func(t *testing.T) {
		a, err := NewAggregator(DefaultConfig().Weights, 0.8)
		require.NoError(t, err)

		findings := []model.Finding{
			model.DegradedFinding(model.DetectorDuplicate, errors.New("history offline")),
			{Detector: model.DetectorInflation, Status: model.StatusNotTriggered, Score: 0.2, Confidence: 1},
			{Detector: model.DetectorGhostVendor, Status: model.StatusNotTriggered, Confidence: 1},
			model.DegradedFinding(model.DetectorSplitBilling, errors.New("history offline")),
		}

		got := a.Aggregate("inv-2", findings, nil, at)

		assert.InDelta(t, 0.05, got.OverallScore, 1e-9)
		assert.Equal(t, model.RiskLow, got.RiskLevel)
		assert.True(t, got.Partial)
		assert.Equal(t, model.DecisionReview, got.Decision, "partial assessments are never approved")
		assert.NotNil(t, got.Triggered)
		assert.Empty(t, got.Triggered)
		assert.Len(t, got.Findings, 4)
	})

	t.Run("weights are normalized", func(t *testing.T) {
		a, err := NewAggregator(Weights{Duplicate: 3, Inflation: 1}, 0.8)
		require.NoError(t, err)

		findings := []model.Finding{
			{Detector: model.DetectorDuplicate, Status: model.StatusTriggered, Score: 1, Confidence: 0.9},
			{Detector: model.DetectorInflation, Status: model.StatusNotTriggered, Score: 0, Confidence: 1},
			{Detector: model.DetectorGhostVendor, Status: model.StatusTriggered, Score: 1, Confidence: 1},
			{Detector: model.DetectorSplitBilling, Status: model.StatusNotTriggered, Confidence: 1},
		}

		got := a.Aggregate("inv-3", findings, nil, at)

		assert.InDelta(t, 0.75, got.OverallScore, 1e-9)
		assert.Equal(t, model.RiskHigh, got.RiskLevel)
		assert.Len(t, got.Triggered, 2, "zero weight still reports the flag")
	})

	t.Run("zero weights are rejected", func(t *testing.T) {
		_, err := NewAggregator(Weights{}, 0.8)
		require.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}
