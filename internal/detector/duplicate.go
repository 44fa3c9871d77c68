package detector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
	"github.com/Veraticus/invoice-sentinel/internal/similarity"
)

// Duplicate similarity weights; they sum to 1.
const (
	duplicateNameWeight     = 0.25
	duplicateAmountWeight   = 0.35
	duplicateDateWeight     = 0.15
	duplicateLineItemWeight = 0.25

	// missingFieldPenalty is subtracted from confidence for each comparable
	// field an invoice lacks.
	missingFieldPenalty = 0.1

	scoreTolerance = 1e-9
)

// DuplicateConfig tunes the duplicate detector.
type DuplicateConfig struct {
	// Threshold is the similarity at or above which the finding triggers.
	Threshold float64 `mapstructure:"threshold" validate:"gt=0,lte=1"`
	// LookbackDays bounds how far back candidates are searched.
	LookbackDays int `mapstructure:"lookback_days" validate:"gt=0"`
	// AmountEpsilon is the difference still treated as the same amount.
	AmountEpsilon float64 `mapstructure:"amount_epsilon" validate:"gte=0"`
	// DateWindowDays is the distance at which date proximity reaches 0.
	DateWindowDays int `mapstructure:"date_window_days" validate:"gt=0"`
}

// DefaultDuplicateConfig returns the default duplicate detector settings.
func DefaultDuplicateConfig() DuplicateConfig {
	return DuplicateConfig{
		Threshold:      0.8,
		LookbackDays:   90,
		AmountEpsilon:  0.01,
		DateWindowDays: 30,
	}
}

// Duplicate flags invoices that closely resemble a prior invoice from the
// same vendor.
type Duplicate struct {
	history service.HistoryLookup
	logger  *slog.Logger
	cfg     DuplicateConfig
}

// NewDuplicate creates a duplicate detector backed by history.
func NewDuplicate(history service.HistoryLookup, cfg DuplicateConfig, logger *slog.Logger) *Duplicate {
	return &Duplicate{history: history, cfg: cfg, logger: loggerOrDefault(logger)}
}

// Name implements Detector.
func (d *Duplicate) Name() model.DetectorName {
	return model.DetectorDuplicate
}

// Detect implements Detector.
func (d *Duplicate) Detect(ctx context.Context, inv model.InvoiceRecord) model.Finding {
	vendorKey := inv.VendorKey()
	to := inv.Day()
	from := to.AddDate(0, 0, -d.cfg.LookbackDays)

	history, err := d.history.InvoicesByVendor(ctx, vendorKey, from, to)
	if err != nil {
		return degraded(ctx, d.logger, d.Name(), inv, "history", err)
	}

	candidates := make([]model.InvoiceRecord, 0, len(history))
	for _, c := range history {
		if c.ID == inv.ID || c.VendorKey() != vendorKey {
			continue
		}
		day := c.Day()
		if day.Before(from) || day.After(to) {
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return model.Finding{
			Detector:   d.Name(),
			Status:     model.StatusNotTriggered,
			Confidence: clamp01(1 - fieldPenalty(inv)),
			Reason:     "no prior invoices from this vendor in the lookback window",
		}
	}

	best := -1.0
	var matched []model.InvoiceRecord
	for _, c := range candidates {
		score := d.similarity(inv, c)
		d.logger.DebugContext(ctx, "Duplicate candidate scored",
			"invoice_id", inv.ID,
			"candidate_id", c.ID,
			"score", score)
		switch {
		case score > best+scoreTolerance:
			best = score
			matched = []model.InvoiceRecord{c}
		case math.Abs(score-best) <= scoreTolerance:
			matched = append(matched, c)
		}
	}
	slices.SortFunc(matched, func(a, b model.InvoiceRecord) int {
		return strings.Compare(a.ID, b.ID)
	})

	ids := make([]string, 0, len(matched))
	exact := false
	fingerprint := inv.Fingerprint()
	for _, m := range matched {
		ids = append(ids, m.ID)
		if m.InvoiceNumber != "" && m.Fingerprint() == fingerprint {
			exact = true
		}
	}

	score := clamp01(best)
	triggered := score >= d.cfg.Threshold
	confidence := clamp01(1 - (fieldPenalty(inv)+fieldPenalty(matched[0]))/2)

	reason := fmt.Sprintf("closest prior invoice %s is %.0f%% similar", ids[0], score*100)
	if triggered {
		reason = fmt.Sprintf("likely duplicate of invoice %s (%.0f%% similar)", ids[0], score*100)
	}

	return model.Finding{
		Detector:   d.Name(),
		Status:     status(triggered),
		Score:      score,
		Confidence: confidence,
		Reason:     reason,
		Evidence: model.Evidence{
			MatchedInvoiceIDs: ids,
			CandidateCount:    len(candidates),
			ExactMatch:        exact,
		},
	}
}

func (d *Duplicate) similarity(inv, c model.InvoiceRecord) float64 {
	eps := d.cfg.AmountEpsilon
	name := similarity.TextSimilarity(inv.VendorName, c.VendorName)
	amount := similarity.AmountCloseness(inv.Amount.Float64(), c.Amount.Float64(), eps)
	date := similarity.DateProximity(inv.Date, c.Date, d.cfg.DateWindowDays)
	items := similarity.TokenJaccard(inv.LineItemDescriptions(), c.LineItemDescriptions())

	return duplicateNameWeight*name +
		duplicateAmountWeight*amount +
		duplicateDateWeight*date +
		duplicateLineItemWeight*items
}

// fieldPenalty totals the confidence penalty for comparable fields the
// invoice is missing.
func fieldPenalty(inv model.InvoiceRecord) float64 {
	penalty := 0.0
	if len(inv.LineItems) == 0 {
		penalty += missingFieldPenalty
	}
	if strings.TrimSpace(inv.InvoiceNumber) == "" {
		penalty += missingFieldPenalty
	}
	return penalty
}
