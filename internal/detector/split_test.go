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

func splitConfig(threshold float64) SplitConfig {
	cfg := DefaultSplitConfig()
	cfg.ApprovalThreshold = threshold
	return cfg
}

func TestSplitBilling_ChunkedInvoicesTrigger(t *testing.T) {
	history := testutil.NewHistory(
		testutil.NewInvoice("s-1").Amount(400).DaysAfter(0).Build(),
		testutil.NewInvoice("s-2").Amount(400).DaysAfter(2).Build(),
	)
	current := testutil.NewInvoice("s-3").Amount(400).DaysAfter(5).Build()

	f := NewSplitBilling(history, splitConfig(1000), nil).Detect(context.Background(), current)

	assert.Equal(t, model.DetectorSplitBilling, f.Detector)
	assert.True(t, f.Triggered())
	assert.Equal(t, []string{"s-1", "s-2", "s-3"}, f.Evidence.MemberInvoiceIDs)
	require.NotNil(t, f.Evidence.CombinedAmount)
	assert.InDelta(t, 1200, *f.Evidence.CombinedAmount, 1e-9)
	assert.InDelta(t, 0.7, f.Score, 1e-9)
	assert.InDelta(t, 1.0, f.Confidence, 1e-9)
}

func TestSplitBilling_Cases(t *testing.T) {
	tests := []struct {
		name          string
		history       []model.InvoiceRecord
		current       model.InvoiceRecord
		wantTriggered bool
		wantMembers   []string
		wantReason    string
	}{
		{
			name:       "sum stays below threshold",
			history:    []model.InvoiceRecord{testutil.NewInvoice("s-1").Amount(400).Build()},
			current:    testutil.NewInvoice("s-2").Amount(500).DaysAfter(1).Build(),
			wantReason: "below the approval threshold",
		},
		{
			name:       "sum equal to threshold does not exceed it",
			history:    []model.InvoiceRecord{testutil.NewInvoice("s-1").Amount(500).Build()},
			current:    testutil.NewInvoice("s-2").Amount(500).DaysAfter(1).Build(),
			wantReason: "below the approval threshold",
		},
		{
			name:       "member alone reaches threshold",
			history:    []model.InvoiceRecord{testutil.NewInvoice("s-1").Amount(1000).Build()},
			current:    testutil.NewInvoice("s-2").Amount(300).DaysAfter(1).Build(),
			wantReason: "alone reaches",
		},
		{
			name: "prefix completed before the current invoice",
			history: []model.InvoiceRecord{
				testutil.NewInvoice("s-1").Amount(600).Build(),
				testutil.NewInvoice("s-2").Amount(600).DaysAfter(1).Build(),
			},
			current:    testutil.NewInvoice("s-3").Amount(100).DaysAfter(2).Build(),
			wantReason: "already exceeded",
		},
		{
			name: "members outside the window are ignored",
			history: []model.InvoiceRecord{
				testutil.NewInvoice("s-1").Amount(400).DaysAfter(-8).Build(),
				testutil.NewInvoice("s-2").Amount(400).DaysAfter(-1).Build(),
			},
			current:    testutil.NewInvoice("s-3").Amount(400).Build(),
			wantReason: "below the approval threshold",
		},
		{
			name: "window start is inclusive",
			history: []model.InvoiceRecord{
				testutil.NewInvoice("s-1").Amount(400).DaysAfter(-7).Build(),
				testutil.NewInvoice("s-2").Amount(400).DaysAfter(-1).Build(),
			},
			current:       testutil.NewInvoice("s-3").Amount(400).Build(),
			wantTriggered: true,
			wantMembers:   []string{"s-1", "s-2", "s-3"},
		},
		{
			name: "current invoice in history is counted once",
			history: []model.InvoiceRecord{
				testutil.NewInvoice("s-1").Amount(600).Build(),
				testutil.NewInvoice("s-2").Amount(450).Build(),
			},
			current:       testutil.NewInvoice("s-2").Amount(450).Build(),
			wantTriggered: true,
			wantMembers:   []string{"s-1", "s-2"},
		},
		{
			name: "same day ordered by id",
			history: []model.InvoiceRecord{
				testutil.NewInvoice("s-b").Amount(600).Build(),
			},
			current:       testutil.NewInvoice("s-a").Amount(600).Build(),
			wantTriggered: true,
			wantMembers:   []string{"s-a", "s-b"},
		},
		{
			name: "other vendors do not count",
			history: []model.InvoiceRecord{
				testutil.NewInvoice("s-1").Vendor("Globex").Amount(900).Build(),
			},
			current:    testutil.NewInvoice("s-2").Amount(400).Build(),
			wantReason: "below the approval threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewSplitBilling(testutil.NewHistory(tt.history...), splitConfig(1000), nil)
			f := d.Detect(context.Background(), tt.current)

			assert.Equal(t, tt.wantTriggered, f.Triggered())
			assert.Equal(t, tt.wantMembers, f.Evidence.MemberInvoiceIDs)
			if !tt.wantTriggered {
				assert.Zero(t, f.Score)
				assert.Contains(t, f.Reason, tt.wantReason)
			}
		})
	}
}

func TestSplitBilling_ScoreSaturates(t *testing.T) {
	history := testutil.NewHistory(testutil.NewInvoice("s-1").Amount(999).Build())
	current := testutil.NewInvoice("s-2").Amount(999).DaysAfter(1).Build()

	f := NewSplitBilling(history, splitConfig(1000), nil).Detect(context.Background(), current)

	assert.InDelta(t, 1.0, f.Score, 1e-9)
}

func TestSplitBilling_DefaultThreshold(t *testing.T) {
	history := testutil.NewHistory(testutil.Series("s", "Acme Supplies", 3, 1800)...)
	current := testutil.NewInvoice("s-4").Amount(1800).DaysAfter(3).Build()

	f := NewSplitBilling(history, DefaultSplitConfig(), nil).Detect(context.Background(), current)

	assert.False(t, f.Triggered(), "5400 is exceeded by the third invoice, before the current one")

	f = NewSplitBilling(testutil.NewHistory(testutil.Series("s", "Acme Supplies", 2, 1800)...), DefaultSplitConfig(), nil).
		Detect(context.Background(), testutil.NewInvoice("s-3").Amount(1800).DaysAfter(2).Build())
	assert.True(t, f.Triggered())
	assert.InDelta(t, 5400.0/5000.0-0.5, f.Score, 1e-9)
}

func TestSplitBilling_HistoryUnavailable(t *testing.T) {
	history := testutil.NewHistory()
	history.Err = errors.New("timeout")

	f := NewSplitBilling(history, DefaultSplitConfig(), nil).Detect(context.Background(), testutil.NewInvoice("s-1").Build())

	assert.True(t, f.Degraded())
	assert.Zero(t, f.Confidence)
	assert.Nil(t, f.Evidence.MemberInvoiceIDs)
}
