package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/detector"
	"github.com/Veraticus/invoice-sentinel/internal/model"
)

// Weights sets how much each detector contributes to the overall score.
// They are normalized to sum to 1 before use.
type Weights struct {
	Duplicate    float64 `mapstructure:"duplicate" validate:"gte=0"`
	Inflation    float64 `mapstructure:"inflation" validate:"gte=0"`
	GhostVendor  float64 `mapstructure:"ghost_vendor" validate:"gte=0"`
	SplitBilling float64 `mapstructure:"split_billing" validate:"gte=0"`
}

// For returns the weight of the named detector.
func (w Weights) For(name model.DetectorName) float64 {
	switch name {
	case model.DetectorDuplicate:
		return w.Duplicate
	case model.DetectorInflation:
		return w.Inflation
	case model.DetectorGhostVendor:
		return w.GhostVendor
	case model.DetectorSplitBilling:
		return w.SplitBilling
	default:
		return 0
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Duplicate + w.Inflation + w.GhostVendor + w.SplitBilling
}

// Normalized scales the weights to sum to 1.
func (w Weights) Normalized() (Weights, error) {
	sum := w.Sum()
	if sum <= 0 {
		return Weights{}, fmt.Errorf("%w: detector weights must sum to a positive value", common.ErrInvalidConfig)
	}
	return Weights{
		Duplicate:    w.Duplicate / sum,
		Inflation:    w.Inflation / sum,
		GhostVendor:  w.GhostVendor / sum,
		SplitBilling: w.SplitBilling / sum,
	}, nil
}

// Config holds every tunable of the fraud engine.
type Config struct {
	// Weights of each detector in the overall score. Default 0.25 each.
	Weights Weights `mapstructure:"weights"`
	// Duplicate detector: threshold 0.8, lookback 90 days, epsilon 0.01,
	// date window 30 days.
	Duplicate detector.DuplicateConfig `mapstructure:"duplicate"`
	// Inflation detector: threshold 1.5 (saturation at z = 6), trigger
	// score 0.5, minimum 5 samples, standard deviation floor 1.0.
	Inflation detector.InflationConfig `mapstructure:"inflation"`
	// Ghost vendor detector: threshold 0.7.
	Ghost detector.GhostConfig `mapstructure:"ghost_vendor"`
	// Split billing detector: 7 day window, approval threshold 5000,
	// trigger score 0.5.
	Split detector.SplitConfig `mapstructure:"split_billing"`
	// Informational anomaly bounds.
	Anomalies detector.AnomalyConfig `mapstructure:"anomalies"`
	// Patterns are suspicious vendor name or invoice number patterns added
	// to the built-in ones.
	Patterns []detector.Pattern `mapstructure:"patterns" validate:"dive"`
	// HighConfidence is the finding confidence at which a triggered finding
	// alone forces review. Default 0.8.
	HighConfidence float64 `mapstructure:"high_confidence" validate:"gte=0,lte=1"`
	// Workers bounds concurrent assessments in AssessBatch. Default 4.
	Workers int `mapstructure:"workers" validate:"gte=1"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Duplicate:    0.25,
			Inflation:    0.25,
			GhostVendor:  0.25,
			SplitBilling: 0.25,
		},
		Duplicate:      detector.DefaultDuplicateConfig(),
		Inflation:      detector.DefaultInflationConfig(),
		Ghost:          detector.DefaultGhostConfig(),
		Split:          detector.DefaultSplitConfig(),
		Anomalies:      detector.DefaultAnomalyConfig(),
		HighConfidence: 0.8,
		Workers:        4,
	}
}

var configValidator = newValidator("mapstructure")

// Validate reports the first invalid option, wrapped in
// common.ErrInvalidConfig.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s %s", common.ErrInvalidConfig, configPath(fe.Namespace()), describeTag(fe.Tag(), fe.Param()))
		}
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if _, err := c.Weights.Normalized(); err != nil {
		return err
	}
	if _, err := detector.NewPatternMatcher(c.Patterns); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return nil
}

// configPath turns a validator namespace ("Config.duplicate.threshold") into
// the option path used in configuration files ("duplicate.threshold").
func configPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}
