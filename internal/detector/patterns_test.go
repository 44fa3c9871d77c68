package detector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/testutil"
)

func TestNewPatternMatcher(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		patterns []Pattern
		wantErr  bool
	}{
		{
			name:     "default patterns compile",
			patterns: DefaultPatterns(),
		},
		{
			name: "invalid regex",
			patterns: []Pattern{
				{Name: "broken", Target: TargetVendorName, Regex: `[invalid regex`, Priority: 1},
			},
			wantErr: true,
			errMsg:  "failed to compile pattern broken",
		},
		{
			name:     "empty patterns",
			patterns: []Pattern{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm, err := NewPatternMatcher(tt.patterns)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.patterns), pm.PatternCount())
		})
	}
}

func TestPatternMatcher_Match(t *testing.T) {
	pm := MustPatternMatcher(DefaultPatterns())

	tests := []struct {
		name    string
		target  PatternTarget
		text    string
		want    string
		matched bool
	}{
		{name: "cash vendor", target: TargetVendorName, text: "Cash Vendor", want: "cash", matched: true},
		{name: "petty cash", target: TargetVendorName, text: "PETTY CASH", want: "cash", matched: true},
		{name: "numeric only", target: TargetVendorName, text: "100234", want: "numeric_only", matched: true},
		{name: "numeric with separators", target: TargetVendorName, text: "#4471-22", want: "numeric_only", matched: true},
		{name: "personal", target: TargetVendorName, text: "Family Catering", want: "personal", matched: true},
		{name: "placeholder", target: TargetVendorName, text: "Test Vendor", want: "placeholder", matched: true},
		{name: "generic", target: TargetVendorName, text: "Misc Services", want: "generic", matched: true},
		{name: "word boundary respected", target: TargetVendorName, text: "Cashmere Textiles"},
		{name: "legitimate vendor", target: TargetVendorName, text: "Acme Supplies Inc"},
		{name: "digits inside a name", target: TargetVendorName, text: "3M Company"},
		{name: "empty", target: TargetVendorName, text: "  "},
		{name: "sequential invoice number", target: TargetInvoiceNumber, text: "INV-2024-0042", want: "sequential", matched: true},
		{name: "target is respected", target: TargetInvoiceNumber, text: "Cash Vendor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pm.Match(tt.target, tt.text)
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternMatcher_PriorityOrder(t *testing.T) {
	pm := MustPatternMatcher([]Pattern{
		{Name: "low", Target: TargetVendorName, Regex: `vendor`, Priority: 1},
		{Name: "high", Target: TargetVendorName, Regex: `cash`, Priority: 10},
	})

	got, ok := pm.Match(TargetVendorName, "cash vendor")
	require.True(t, ok)
	assert.Equal(t, "high", got)
}

func TestPatternMatcher_Concurrent(t *testing.T) {
	pm := MustPatternMatcher(append(DefaultPatterns(),
		Pattern{Name: "shell", Target: TargetVendorName, Regex: `holdings`, Priority: 5}))
	assert.Equal(t, len(DefaultPatterns())+1, pm.PatternCount())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, ok := pm.Match(TargetVendorName, "Offshore Holdings")
			assert.True(t, ok)
			assert.Equal(t, "shell", got)
		}()
	}
	wg.Wait()
}

func TestAnomalyDetector_Detect(t *testing.T) {
	a := NewAnomalyDetector(nil, nil, DefaultAnomalyConfig(), nil)

	tests := []struct {
		name string
		inv  model.InvoiceRecord
		want []string
	}{
		{
			name: "clean invoice",
			inv:  testutil.NewInvoice("inv-1").Amount(104.37).Build(),
		},
		{
			name: "round amount",
			inv:  testutil.NewInvoice("inv-1").Amount(2500).Build(),
			want: []string{AnomalyRoundAmount},
		},
		{
			name: "sequential invoice number",
			inv:  testutil.NewInvoice("inv-1").Amount(10.5).Number("INV-2024-0001").Build(),
			want: []string{AnomalySequentialInvoiceNumber},
		},
		{
			name: "zero amount",
			inv:  testutil.NewInvoice("inv-1").Amount(0).Build(),
			want: []string{AnomalyVerySmallAmount},
		},
		{
			name: "very large amount",
			inv:  testutil.NewInvoice("inv-1").Amount(25000.5).Build(),
			want: []string{AnomalyVeryLargeAmount},
		},
		{
			name: "missing fields and low confidence",
			inv:  testutil.NewInvoice("inv-1").Amount(12.5).Number("").Category("").Confidence(0.2).Build(),
			want: []string{AnomalyMissingInvoiceNumber, AnomalyMissingCategory, AnomalyLowExtraction},
		},
		{
			name: "line items disagree with total",
			inv: testutil.NewInvoice("inv-1").Amount(90.5).Items("Paper").With(func(r *model.InvoiceRecord) {
				r.Amount = model.NewMoney(99.5, "")
			}).Build(),
			want: []string{AnomalyLineItemsMismatch},
		},
		{
			name: "line items agree with total",
			inv:  testutil.NewInvoice("inv-1").Amount(90.5).Items("Paper", "Toner").Build(),
		},
		{
			name: "dated after today",
			inv:  testutil.NewInvoice("inv-1").Amount(90.5).DaysAfter(1).Build(),
			want: []string{AnomalyFutureDate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := testutil.Epoch.Add(23 * time.Hour)
			assert.Equal(t, tt.want, a.Detect(context.Background(), tt.inv, now))
		})
	}
}

func TestAnomalyDetector_CustomInvoiceNumberPattern(t *testing.T) {
	pm := MustPatternMatcher(append(DefaultPatterns(),
		Pattern{Name: "draft", Target: TargetInvoiceNumber, Regex: `^draft`, Priority: 1}))
	a := NewAnomalyDetector(pm, nil, DefaultAnomalyConfig(), nil)

	got := a.Detect(context.Background(), testutil.NewInvoice("inv-1").Amount(10.5).Number("DRAFT-7").Build(), testutil.Epoch)
	assert.Equal(t, []string{AnomalySuspiciousInvoiceNumber}, got)
}

func TestAnomalyDetector_HighFrequencyVendor(t *testing.T) {
	tests := []struct {
		name    string
		prior   int
		spacing int
		want    bool
	}{
		{name: "ten earlier invoices", prior: 10, spacing: 1},
		{name: "eleven earlier invoices", prior: 11, spacing: 1, want: true},
		{name: "eleven spread beyond the window", prior: 11, spacing: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := testutil.NewHistory()
			for i := 1; i <= tt.prior; i++ {
				history.Add(testutil.NewInvoice(fmt.Sprintf("old-%d", i)).Amount(10.5).DaysAfter(-i * tt.spacing).Build())
			}
			current := testutil.NewInvoice("inv-1").Amount(10.5).Build()
			// A stored copy of the invoice being assessed is not counted.
			history.Add(current)

			a := NewAnomalyDetector(nil, history, DefaultAnomalyConfig(), nil)
			got := a.Detect(context.Background(), current, testutil.Epoch)
			assert.Equal(t, tt.want, slices.Contains(got, AnomalyHighFrequencyVendor), got)
		})
	}
}

func TestAnomalyDetector_HistoryFailure(t *testing.T) {
	history := testutil.NewHistory()
	history.Err = errors.New("connection refused")
	a := NewAnomalyDetector(nil, history, DefaultAnomalyConfig(), nil)

	got := a.Detect(context.Background(), testutil.NewInvoice("inv-1").Amount(10.5).Build(), testutil.Epoch)
	assert.Empty(t, got)
}

func TestDataQuality(t *testing.T) {
	tests := []struct {
		name string
		inv  model.InvoiceRecord
		want float64
	}{
		{
			name: "complete",
			inv:  testutil.NewInvoice("inv-1").Items("Paper").Build(),
			want: 1,
		},
		{
			name: "no description",
			inv:  testutil.NewInvoice("inv-1").Build(),
			want: 0.9,
		},
		{
			name: "extracted text counts as a description",
			inv: testutil.NewInvoice("inv-1").With(func(r *model.InvoiceRecord) {
				r.ExtractedText = "Invoice for paper"
			}).Build(),
			want: 1,
		},
		{
			name: "everything optional missing",
			inv:  testutil.NewInvoice("inv-1").Amount(0).Number("").Category("").Build(),
			want: 0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DataQuality(tt.inv), 1e-9)
		})
	}
}
