package detector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

// splitScoreOffset is the score of a prefix that exceeds the threshold by
// an infinitesimal amount.
const splitScoreOffset = 0.5

// SplitConfig tunes the split billing detector.
type SplitConfig struct {
	// WindowDays is the length of the sliding window ending on the invoice date.
	WindowDays int `mapstructure:"window_days" validate:"gte=0"`
	// ApprovalThreshold is the amount that requires approval on its own.
	ApprovalThreshold float64 `mapstructure:"approval_threshold" validate:"gt=0"`
	// TriggerScore is the score at or above which the finding triggers.
	TriggerScore float64 `mapstructure:"trigger_score" validate:"gt=0,lte=1"`
}

// DefaultSplitConfig returns the default split billing detector settings.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		WindowDays:        7,
		ApprovalThreshold: 5000,
		TriggerScore:      0.5,
	}
}

// SplitBilling flags runs of same-vendor invoices that together exceed the
// approval threshold while each stays below it.
type SplitBilling struct {
	history service.HistoryLookup
	logger  *slog.Logger
	cfg     SplitConfig
}

// NewSplitBilling creates a split billing detector backed by history.
func NewSplitBilling(history service.HistoryLookup, cfg SplitConfig, logger *slog.Logger) *SplitBilling {
	return &SplitBilling{history: history, cfg: cfg, logger: loggerOrDefault(logger)}
}

// Name implements Detector.
func (d *SplitBilling) Name() model.DetectorName {
	return model.DetectorSplitBilling
}

// Detect implements Detector.
func (d *SplitBilling) Detect(ctx context.Context, inv model.InvoiceRecord) model.Finding {
	vendorKey := inv.VendorKey()
	to := inv.Day()
	from := to.AddDate(0, 0, -d.cfg.WindowDays)

	history, err := d.history.InvoicesByVendor(ctx, vendorKey, from, to)
	if err != nil {
		return degraded(ctx, d.logger, d.Name(), inv, "history", err)
	}

	members := windowMembers(inv, history, from, to)
	notTriggered := func(reason string) model.Finding {
		return model.Finding{
			Detector:   d.Name(),
			Status:     model.StatusNotTriggered,
			Confidence: 1,
			Reason:     reason,
			Evidence:   model.Evidence{CandidateCount: len(members)},
		}
	}

	if d.cfg.ApprovalThreshold <= 0 {
		return notTriggered("no approval threshold configured")
	}
	threshold := decimal.NewFromFloat(d.cfg.ApprovalThreshold)

	sum := decimal.Zero
	prefix := -1
	for i, m := range members {
		if m.Amount.Amount.GreaterThanOrEqual(threshold) {
			return notTriggered(fmt.Sprintf("invoice %s alone reaches the approval threshold", m.ID))
		}
		sum = sum.Add(m.Amount.Amount)
		if sum.GreaterThan(threshold) {
			prefix = i
			break
		}
	}
	if prefix < 0 {
		return notTriggered(fmt.Sprintf("%d invoices in %d days total %s, below the approval threshold",
			len(members), d.cfg.WindowDays, sum.StringFixed(2)))
	}

	ids := make([]string, 0, prefix+1)
	includesCurrent := false
	for _, m := range members[:prefix+1] {
		ids = append(ids, m.ID)
		if m.ID == inv.ID {
			includesCurrent = true
		}
	}
	if !includesCurrent {
		return notTriggered("approval threshold was already exceeded by earlier invoices")
	}

	combined := sum.InexactFloat64()
	score := clamp01(combined/d.cfg.ApprovalThreshold - 1 + splitScoreOffset)
	triggered := score >= d.cfg.TriggerScore

	return model.Finding{
		Detector:   d.Name(),
		Status:     status(triggered),
		Score:      score,
		Confidence: 1,
		Reason: fmt.Sprintf("%d invoices within %d days total %s, above the approval threshold %.2f",
			len(ids), d.cfg.WindowDays, sum.StringFixed(2), d.cfg.ApprovalThreshold),
		Evidence: model.Evidence{
			MemberInvoiceIDs: ids,
			CombinedAmount:   floatPtr(combined),
			CandidateCount:   len(members),
		},
	}
}

// windowMembers merges the current invoice into the same-vendor history
// within [from, to], de-duplicated by ID and ordered by date then ID.
func windowMembers(inv model.InvoiceRecord, history []model.InvoiceRecord, from, to time.Time) []model.InvoiceRecord {
	vendorKey := inv.VendorKey()
	byID := make(map[string]model.InvoiceRecord, len(history)+1)
	for _, h := range history {
		day := h.Day()
		if h.VendorKey() != vendorKey || day.Before(from) || day.After(to) {
			continue
		}
		byID[h.ID] = h
	}
	byID[inv.ID] = inv

	members := make([]model.InvoiceRecord, 0, len(byID))
	for _, m := range byID {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b model.InvoiceRecord) int {
		if c := a.Day().Compare(b.Day()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return members
}
