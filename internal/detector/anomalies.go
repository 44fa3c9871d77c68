package detector

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

// Anomaly names reported on assessments.
const (
	AnomalyRoundAmount             = "round_amount"
	AnomalySequentialInvoiceNumber = "sequential_invoice_number"
	AnomalySuspiciousInvoiceNumber = "suspicious_invoice_number"
	AnomalyVerySmallAmount         = "very_small_amount"
	AnomalyVeryLargeAmount         = "very_large_amount"
	AnomalyMissingInvoiceNumber    = "missing_invoice_number"
	AnomalyMissingCategory         = "missing_category"
	AnomalyLowExtraction           = "low_extraction_confidence"
	AnomalyLineItemsMismatch       = "line_items_mismatch"
	AnomalyFutureDate              = "future_date"
	AnomalyHighFrequencyVendor     = "high_frequency_vendor"
)

// sequentialPattern is the built-in invoice number pattern reported as
// AnomalySequentialInvoiceNumber.
const sequentialPattern = "sequential"

// AnomalyConfig holds the bounds used by AnomalyDetector.
type AnomalyConfig struct {
	MinAmount               float64 `mapstructure:"min_amount" validate:"gte=0"`
	MaxAmount               float64 `mapstructure:"max_amount" validate:"gte=0"`
	MinExtractionConfidence float64 `mapstructure:"min_extraction_confidence" validate:"gte=0,lte=1"`
	LineItemTolerance       float64 `mapstructure:"line_item_tolerance" validate:"gte=0"`
	// HighFrequencyCount is the number of other same-vendor invoices within
	// FrequencyWindowDays above which the vendor is flagged. 0 disables it.
	HighFrequencyCount  int `mapstructure:"high_frequency_count" validate:"gte=0"`
	FrequencyWindowDays int `mapstructure:"frequency_window_days" validate:"gte=1"`
}

// DefaultAnomalyConfig returns the default anomaly bounds.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		MinAmount:               0.01,
		MaxAmount:               10000,
		MinExtractionConfidence: 0.5,
		LineItemTolerance:       0.01,
		HighFrequencyCount:      10,
		FrequencyWindowDays:     30,
	}
}

// AnomalyDetector lists informational irregularities of an invoice. Anomalies
// are never scored.
type AnomalyDetector struct {
	patterns *PatternMatcher
	history  service.HistoryLookup
	logger   *slog.Logger
	cfg      AnomalyConfig
}

// NewAnomalyDetector creates an anomaly detector. A nil matcher uses
// DefaultPatterns; a nil history skips the vendor frequency check.
func NewAnomalyDetector(patterns *PatternMatcher, history service.HistoryLookup, cfg AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	if patterns == nil {
		patterns = MustPatternMatcher(DefaultPatterns())
	}
	return &AnomalyDetector{patterns: patterns, history: history, cfg: cfg, logger: loggerOrDefault(logger)}
}

// Detect returns the anomalies of inv in a fixed order. Dates are judged
// against now. A failed history lookup only drops the frequency check.
func (a *AnomalyDetector) Detect(ctx context.Context, inv model.InvoiceRecord, now time.Time) []string {
	var anomalies []string
	amount := inv.Amount.Amount

	if amount.IsPositive() && amount.Equal(amount.Truncate(0)) {
		anomalies = append(anomalies, AnomalyRoundAmount)
	}
	if name, ok := a.patterns.Match(TargetInvoiceNumber, inv.InvoiceNumber); ok {
		if name == sequentialPattern {
			anomalies = append(anomalies, AnomalySequentialInvoiceNumber)
		} else {
			anomalies = append(anomalies, AnomalySuspiciousInvoiceNumber)
		}
	}
	switch {
	case amount.LessThan(decimal.NewFromFloat(a.cfg.MinAmount)):
		anomalies = append(anomalies, AnomalyVerySmallAmount)
	case a.cfg.MaxAmount > 0 && amount.GreaterThan(decimal.NewFromFloat(a.cfg.MaxAmount)):
		anomalies = append(anomalies, AnomalyVeryLargeAmount)
	}
	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		anomalies = append(anomalies, AnomalyMissingInvoiceNumber)
	}
	if strings.TrimSpace(inv.Category) == "" {
		anomalies = append(anomalies, AnomalyMissingCategory)
	}
	if inv.ExtractionConfidence < a.cfg.MinExtractionConfidence {
		anomalies = append(anomalies, AnomalyLowExtraction)
	}
	if len(inv.LineItems) > 0 {
		diff := inv.LineItemTotal().Sub(amount).Abs()
		if diff.GreaterThan(decimal.NewFromFloat(a.cfg.LineItemTolerance)) {
			anomalies = append(anomalies, AnomalyLineItemsMismatch)
		}
	}
	if inv.Day().After(model.CalendarDate(now)) {
		anomalies = append(anomalies, AnomalyFutureDate)
	}
	if a.highFrequency(ctx, inv) {
		anomalies = append(anomalies, AnomalyHighFrequencyVendor)
	}

	return anomalies
}

// highFrequency reports whether the vendor billed more than
// HighFrequencyCount other invoices in the window ending on the invoice date.
func (a *AnomalyDetector) highFrequency(ctx context.Context, inv model.InvoiceRecord) bool {
	if a.history == nil || a.cfg.HighFrequencyCount <= 0 {
		return false
	}

	to := inv.Day()
	from := to.AddDate(0, 0, -a.cfg.FrequencyWindowDays)
	history, err := a.history.InvoicesByVendor(ctx, inv.VendorKey(), from, to)
	if err != nil {
		a.logger.WarnContext(ctx, "Vendor frequency check skipped",
			"invoice_id", inv.ID,
			"vendor_key", inv.VendorKey(),
			"error", err)
		return false
	}

	others := len(windowMembers(inv, history, from, to)) - 1
	return others > a.cfg.HighFrequencyCount
}

// DataQuality rates how complete the extracted invoice is, from 0 to 1. Each
// missing invoice number, amount, description or category costs 0.1.
func DataQuality(inv model.InvoiceRecord) float64 {
	missing := 0
	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		missing++
	}
	if inv.Amount.Amount.IsZero() {
		missing++
	}
	if !hasDescription(inv) {
		missing++
	}
	if strings.TrimSpace(inv.Category) == "" {
		missing++
	}
	return float64(max(0, 10-missing)) / 10
}

func hasDescription(inv model.InvoiceRecord) bool {
	if strings.TrimSpace(inv.ExtractedText) != "" {
		return true
	}
	for _, li := range inv.LineItems {
		if strings.TrimSpace(li.Description) != "" {
			return true
		}
	}
	return false
}
