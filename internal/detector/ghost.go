package detector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

// Ghost vendor signal weights; they sum to 1.
const (
	noveltyWeight     = 0.4
	namePatternWeight = 0.35
	contactWeight     = 0.25

	// A vendor with fewer invoices than noveltyFloor is fully novel; novelty
	// reaches 0 at noveltyCeiling invoices.
	noveltyFloor   = 3
	noveltyCeiling = 10
)

// GhostConfig tunes the ghost vendor detector.
type GhostConfig struct {
	// Threshold is the weighted signal score at or above which the finding
	// triggers.
	Threshold float64 `mapstructure:"threshold" validate:"gt=0,lte=1"`
}

// DefaultGhostConfig returns the default ghost vendor detector settings.
func DefaultGhostConfig() GhostConfig {
	return GhostConfig{Threshold: 0.7}
}

// GhostVendor flags vendors lacking legitimacy signals.
type GhostVendor struct {
	profiles service.VendorProfileLookup
	patterns *PatternMatcher
	logger   *slog.Logger
	cfg      GhostConfig
}

// NewGhostVendor creates a ghost vendor detector. A nil matcher uses
// DefaultPatterns.
func NewGhostVendor(profiles service.VendorProfileLookup, patterns *PatternMatcher, cfg GhostConfig, logger *slog.Logger) *GhostVendor {
	if patterns == nil {
		patterns = MustPatternMatcher(DefaultPatterns())
	}
	return &GhostVendor{profiles: profiles, patterns: patterns, cfg: cfg, logger: loggerOrDefault(logger)}
}

// Name implements Detector.
func (d *GhostVendor) Name() model.DetectorName {
	return model.DetectorGhostVendor
}

// Detect implements Detector.
func (d *GhostVendor) Detect(ctx context.Context, inv model.InvoiceRecord) model.Finding {
	profile, err := d.profiles.VendorProfile(ctx, inv.VendorKey())
	if err != nil {
		return degraded(ctx, d.logger, d.Name(), inv, "vendor profile", err)
	}

	count := 0
	if profile != nil {
		count = profile.TotalInvoiceCount
	}

	var (
		signals []string
		details []string
		score   float64
	)

	if n := Novelty(count); n > 0 {
		score += noveltyWeight * n
		signals = append(signals, model.SignalNovelty)
		details = append(details, fmt.Sprintf("%d prior invoices", count))
	}

	if pattern, ok := d.patterns.Match(TargetVendorName, inv.VendorName); ok {
		score += namePatternWeight
		signals = append(signals, model.SignalNamePattern)
		details = append(details, fmt.Sprintf("name matches %s pattern", pattern))
	} else if profile.Unregistered() {
		score += namePatternWeight
		signals = append(signals, model.SignalNamePattern)
		details = append(details, "no registry entry")
	}

	hasTaxID := strings.TrimSpace(inv.VendorTaxID) != "" || (profile != nil && profile.HasTaxID)
	hasAddress := strings.TrimSpace(inv.VendorAddress) != "" || (profile != nil && profile.HasAddress)
	if !hasTaxID || !hasAddress {
		score += contactWeight
		signals = append(signals, model.SignalContact)
		switch {
		case !hasTaxID && !hasAddress:
			details = append(details, "no tax id or address")
		case !hasTaxID:
			details = append(details, "no tax id")
		default:
			details = append(details, "no address")
		}
	}

	score = clamp01(score)
	triggered := score >= d.cfg.Threshold

	reason := "vendor shows no ghost vendor signals"
	if len(details) > 0 {
		reason = "vendor signals: " + strings.Join(details, "; ")
	}

	return model.Finding{
		Detector:   d.Name(),
		Status:     status(triggered),
		Score:      score,
		Confidence: 1,
		Reason:     reason,
		Evidence: model.Evidence{
			Signals:     signals,
			SampleCount: count,
		},
	}
}

// Novelty maps a vendor's historical invoice count to a novelty signal:
// 1 below noveltyFloor, decaying linearly to 0 at noveltyCeiling.
func Novelty(count int) float64 {
	switch {
	case count < noveltyFloor:
		return 1
	case count >= noveltyCeiling:
		return 0
	default:
		return float64(noveltyCeiling-count) / float64(noveltyCeiling-noveltyFloor)
	}
}
