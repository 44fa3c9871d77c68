package detector

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

// zCapMultiplier converts the inflation threshold into the z-score at which
// the anomaly score saturates.
const zCapMultiplier = 4.0

// InflationConfig tunes the inflation detector.
type InflationConfig struct {
	// Threshold scales the saturation point: score = z / (Threshold × 4).
	Threshold float64 `mapstructure:"threshold" validate:"gt=0"`
	// TriggerScore is the anomaly score at or above which the finding triggers.
	TriggerScore float64 `mapstructure:"trigger_score" validate:"gt=0,lte=1"`
	// MinSamples is the baseline size below which no judgement is made.
	MinSamples int `mapstructure:"min_samples" validate:"gte=1"`
	// StdDevFloor keeps z finite for baselines with (near) zero spread.
	StdDevFloor float64 `mapstructure:"stddev_floor" validate:"gt=0"`
}

// DefaultInflationConfig returns the default inflation detector settings.
func DefaultInflationConfig() InflationConfig {
	return InflationConfig{
		Threshold:    1.5,
		TriggerScore: 0.5,
		MinSamples:   5,
		StdDevFloor:  1.0,
	}
}

// ZCap returns the z-score mapped to an anomaly score of 1.
func (c InflationConfig) ZCap() float64 {
	return c.Threshold * zCapMultiplier
}

// Inflation flags amounts far above the vendor/category baseline.
type Inflation struct {
	baselines service.BaselineLookup
	logger    *slog.Logger
	cfg       InflationConfig
}

// NewInflation creates an inflation detector backed by baselines.
func NewInflation(baselines service.BaselineLookup, cfg InflationConfig, logger *slog.Logger) *Inflation {
	return &Inflation{baselines: baselines, cfg: cfg, logger: loggerOrDefault(logger)}
}

// Name implements Detector.
func (d *Inflation) Name() model.DetectorName {
	return model.DetectorInflation
}

// Detect implements Detector.
func (d *Inflation) Detect(ctx context.Context, inv model.InvoiceRecord) model.Finding {
	baseline, err := d.baselines.Baseline(ctx, inv.VendorKey(), inv.Category)
	if err != nil {
		return degraded(ctx, d.logger, d.Name(), inv, "baseline", err)
	}

	count := 0
	if baseline != nil {
		count = baseline.Count
	}
	if baseline == nil || count < d.cfg.MinSamples {
		reason := fmt.Errorf("%w: %d of %d samples", common.ErrInsufficientBaseline, count, d.cfg.MinSamples)
		return model.Finding{
			Detector: d.Name(),
			Status:   model.StatusNotTriggered,
			Reason:   reason.Error(),
			Evidence: model.Evidence{SampleCount: count},
		}
	}

	stddev := math.Max(baseline.StdDev(), d.cfg.StdDevFloor)
	amount := inv.Amount.Float64()
	z := (amount - baseline.Mean) / stddev

	score := 0.0
	if zCap := d.cfg.ZCap(); z > 0 && zCap > 0 {
		score = clamp01(z / zCap)
	}
	triggered := score >= d.cfg.TriggerScore

	reason := fmt.Sprintf("amount %.2f is %.1f standard deviations from the baseline mean %.2f", amount, z, baseline.Mean)
	if triggered {
		reason = fmt.Sprintf("amount %.2f is inflated: %.1f standard deviations above the baseline mean %.2f", amount, z, baseline.Mean)
	}

	return model.Finding{
		Detector:   d.Name(),
		Status:     status(triggered),
		Score:      score,
		Confidence: clamp01(float64(count) / (zCapMultiplier * float64(d.cfg.MinSamples))),
		Reason:     reason,
		Evidence: model.Evidence{
			ZScore:       floatPtr(z),
			BaselineMean: floatPtr(baseline.Mean),
			SampleCount:  count,
		},
	}
}
