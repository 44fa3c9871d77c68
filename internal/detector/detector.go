// Package detector implements the four fraud detectors: duplicate, inflation,
// ghost vendor, and split billing. Each detector turns one invoice plus a
// read-only view of historical data into a Finding and never returns an
// error; lookup failures are reported as degraded findings.
package detector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/similarity"
)

// Detector produces a Finding for an invoice.
type Detector interface {
	Name() model.DetectorName
	Detect(ctx context.Context, inv model.InvoiceRecord) model.Finding
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// degraded logs a lookup failure and folds it into a degraded finding.
func degraded(ctx context.Context, logger *slog.Logger, name model.DetectorName, inv model.InvoiceRecord, lookup string, err error) model.Finding {
	cause := fmt.Errorf("%s lookup failed: %w: %w", lookup, common.ErrDegradedData, err)
	logger.WarnContext(ctx, "Detector degraded",
		"detector", name,
		"invoice_id", inv.ID,
		"vendor_key", inv.VendorKey(),
		"error", err)
	return model.DegradedFinding(name, cause)
}

func status(triggered bool) model.FindingStatus {
	if triggered {
		return model.StatusTriggered
	}
	return model.StatusNotTriggered
}

func floatPtr(v float64) *float64 {
	return &v
}

var clamp01 = similarity.Clamp01
