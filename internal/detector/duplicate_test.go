package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/testutil"
)

func TestDuplicate_IdenticalInvoiceTriggers(t *testing.T) {
	original := testutil.NewInvoice("inv-a").Amount(1250).Items("Consulting", "Travel").Build()
	resubmitted := testutil.NewInvoice("inv-b").Amount(1250).Items("Consulting", "Travel").Build()

	d := NewDuplicate(testutil.NewHistory(original), DefaultDuplicateConfig(), nil)
	f := d.Detect(context.Background(), resubmitted)

	assert.Equal(t, model.DetectorDuplicate, f.Detector)
	assert.True(t, f.Triggered())
	assert.GreaterOrEqual(t, f.Score, 0.95)
	assert.InDelta(t, 1.0, f.Confidence, 1e-9)
	assert.Equal(t, []string{"inv-a"}, f.Evidence.MatchedInvoiceIDs)
	assert.Equal(t, 1, f.Evidence.CandidateCount)
	assert.False(t, f.Evidence.ExactMatch)
}

func TestDuplicate_ExactMatchOnSameInvoiceNumber(t *testing.T) {
	original := testutil.NewInvoice("inv-a").Number("INV-77").Build()
	resubmitted := testutil.NewInvoice("inv-b").Number("inv-77").Build()

	d := NewDuplicate(testutil.NewHistory(original), DefaultDuplicateConfig(), nil)
	f := d.Detect(context.Background(), resubmitted)

	assert.True(t, f.Triggered())
	assert.True(t, f.Evidence.ExactMatch)
}

func TestDuplicate_TiesBrokenByEarliestID(t *testing.T) {
	history := testutil.NewHistory(
		testutil.NewInvoice("inv-3").Build(),
		testutil.NewInvoice("inv-1").Build(),
		testutil.NewInvoice("inv-2").Amount(999).Build(),
	)

	d := NewDuplicate(history, DefaultDuplicateConfig(), nil)
	f := d.Detect(context.Background(), testutil.NewInvoice("inv-9").Build())

	assert.Equal(t, []string{"inv-1", "inv-3"}, f.Evidence.MatchedInvoiceIDs)
	assert.Equal(t, 3, f.Evidence.CandidateCount)
	assert.Contains(t, f.Reason, "inv-1")
}

func TestDuplicate_Candidates(t *testing.T) {
	tests := []struct {
		name          string
		history       []model.InvoiceRecord
		wantScore     float64
		wantTriggered bool
	}{
		{
			name:    "no history",
			history: nil,
		},
		{
			name:    "invoice itself is excluded",
			history: []model.InvoiceRecord{testutil.NewInvoice("inv-x").Build()},
		},
		{
			name:    "other vendor is ignored",
			history: []model.InvoiceRecord{testutil.NewInvoice("inv-a").Vendor("Globex").Build()},
		},
		{
			name:    "outside lookback window",
			history: []model.InvoiceRecord{testutil.NewInvoice("inv-a").DaysAfter(-91).Build()},
		},
		{
			name:          "at the edge of the lookback window",
			history:       []model.InvoiceRecord{testutil.NewInvoice("inv-a").DaysAfter(-90).Build()},
			wantScore:     0.85,
			wantTriggered: true,
		},
		{
			name:      "different amount",
			history:   []model.InvoiceRecord{testutil.NewInvoice("inv-a").Amount(500).Build()},
			wantScore: 0.65,
		},
		{
			name:          "fifteen days apart",
			history:       []model.InvoiceRecord{testutil.NewInvoice("inv-a").DaysAfter(-15).Build()},
			wantScore:     0.925,
			wantTriggered: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDuplicate(testutil.NewHistory(tt.history...), DefaultDuplicateConfig(), nil)
			f := d.Detect(context.Background(), testutil.NewInvoice("inv-x").Build())

			assert.InDelta(t, tt.wantScore, f.Score, 1e-9)
			assert.Equal(t, tt.wantTriggered, f.Triggered())
			assert.False(t, f.Degraded())
		})
	}
}

func TestDuplicate_MissingFieldPenalty(t *testing.T) {
	bare := func(id string) model.InvoiceRecord {
		return testutil.NewInvoice(id).Number("").Build()
	}

	d := NewDuplicate(testutil.NewHistory(bare("inv-a")), DefaultDuplicateConfig(), nil)
	f := d.Detect(context.Background(), bare("inv-b"))

	// No line items and no invoice number on either side.
	assert.InDelta(t, 0.8, f.Confidence, 1e-9)
	assert.True(t, f.Triggered())
}

func TestDuplicate_HistoryUnavailable(t *testing.T) {
	history := testutil.NewHistory()
	history.Err = errors.New("connection refused")

	d := NewDuplicate(history, DefaultDuplicateConfig(), nil)
	f := d.Detect(context.Background(), testutil.NewInvoice("inv-a").Build())

	require.True(t, f.Degraded())
	assert.Zero(t, f.Score)
	assert.Zero(t, f.Confidence)
	assert.False(t, f.Triggered())
	assert.Contains(t, f.Degradation, "history lookup failed")
	assert.Contains(t, f.Degradation, "connection refused")
}

func TestDuplicate_ThresholdIsConfigurable(t *testing.T) {
	cfg := DefaultDuplicateConfig()
	cfg.Threshold = 0.6

	history := testutil.NewHistory(testutil.NewInvoice("inv-a").Amount(500).Build())
	f := NewDuplicate(history, cfg, nil).Detect(context.Background(), testutil.NewInvoice("inv-b").Build())

	assert.True(t, f.Triggered())
}
