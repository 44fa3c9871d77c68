// Package engine implements the fraud detection engine: it runs the four
// detectors over an invoice, aggregates their findings into an assessment,
// and feeds approved invoices back into the vendor baselines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/detector"
	"github.com/Veraticus/invoice-sentinel/internal/metrics"
	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

// Dependencies are the external collaborators the engine reads from and
// writes to.
type Dependencies struct {
	History   service.HistoryLookup
	Baselines service.BaselineLookup
	Profiles  service.VendorProfileLookup

	// Invoices, Updater and Outcomes are needed by RecordOutcome only.
	Invoices service.InvoiceLookup
	Updater  service.BaselineUpdater
	Outcomes service.OutcomeRecorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock sets the source of assessment timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine assesses invoices for fraud. It is safe for concurrent use; Assess
// never writes to shared state.
type Engine struct {
	deps       Dependencies
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	aggregator *Aggregator
	anomalies  *detector.AnomalyDetector
	detectors  []detector.Detector
	cfg        Config
}

// New creates an engine. It fails if the configuration is invalid or a
// lookup needed by Assess is missing.
func New(deps Dependencies, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.History == nil:
		return nil, fmt.Errorf("%w: history lookup", common.ErrMissingConfig)
	case deps.Baselines == nil:
		return nil, fmt.Errorf("%w: baseline lookup", common.ErrMissingConfig)
	case deps.Profiles == nil:
		return nil, fmt.Errorf("%w: vendor profile lookup", common.ErrMissingConfig)
	}

	aggregator, err := NewAggregator(cfg.Weights, cfg.HighConfidence)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		deps:       deps,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
		aggregator: aggregator,
	}
	for _, opt := range opts {
		opt(e)
	}

	patterns, err := detector.NewPatternMatcher(append(detector.DefaultPatterns(), cfg.Patterns...))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	e.anomalies = detector.NewAnomalyDetector(patterns, deps.History, cfg.Anomalies, e.logger)
	e.detectors = []detector.Detector{
		detector.NewDuplicate(deps.History, cfg.Duplicate, e.logger),
		detector.NewInflation(deps.Baselines, cfg.Inflation, e.logger),
		detector.NewGhostVendor(deps.Profiles, patterns, cfg.Ghost, e.logger),
		detector.NewSplitBilling(deps.History, cfg.Split, e.logger),
	}
	e.logger.Debug("Fraud engine ready", "patterns", patterns.PatternCount(), "workers", cfg.Workers)

	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Assess scores one invoice. Only a *common.ValidationError or a context
// error is ever returned; lookup failures produce a partial assessment.
func (e *Engine) Assess(ctx context.Context, inv model.InvoiceRecord) (*model.FraudAssessment, error) {
	start := time.Now()

	if err := ValidateInvoice(inv); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := e.now()
	findings := make([]model.Finding, len(e.detectors))
	var anomalies []string
	var g errgroup.Group
	for i, d := range e.detectors {
		g.Go(func() error {
			detectStart := time.Now()
			findings[i] = d.Detect(ctx, inv)
			e.metrics.ObserveDetectorLatency(string(d.Name()), time.Since(detectStart))
			return nil
		})
	}
	g.Go(func() error {
		anomalies = e.anomalies.Detect(ctx, inv, now)
		return nil
	})
	_ = g.Wait() // detectors report failures as degraded findings

	// A cancelled caller gets no assessment rather than one built from
	// aborted lookups.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assessment := e.aggregator.Aggregate(inv.ID, findings, anomalies, now)
	assessment.DataQuality = detector.DataQuality(inv)

	for _, f := range assessment.Findings {
		e.metrics.IncrementFinding(string(f.Detector), string(f.Status))
	}
	e.metrics.IncrementAssessment(string(assessment.Decision), string(assessment.RiskLevel))
	e.metrics.ObserveAssessLatency(time.Since(start))

	e.logger.InfoContext(ctx, "Invoice assessed",
		"invoice_id", inv.ID,
		"vendor_key", inv.VendorKey(),
		"score", assessment.OverallScore,
		"risk_level", assessment.RiskLevel,
		"decision", assessment.Decision,
		"flags", assessment.Flags(),
		"partial", assessment.Partial)

	return assessment, nil
}

// RecordOutcome records the final decision for a stored invoice. Approval
// folds the invoice amount into its vendor/category baseline exactly once,
// however often it is repeated; rejection leaves baselines untouched. An
// approved invoice cannot be rejected afterwards. Store failures are
// returned as retryable errors.
func (e *Engine) RecordOutcome(ctx context.Context, invoiceID string, approved bool) error {
	switch {
	case e.deps.Invoices == nil:
		return fmt.Errorf("%w: invoice lookup", common.ErrMissingConfig)
	case e.deps.Outcomes == nil:
		return fmt.Errorf("%w: outcome recorder", common.ErrMissingConfig)
	case approved && e.deps.Updater == nil:
		return fmt.Errorf("%w: baseline updater", common.ErrMissingConfig)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	inv, err := e.deps.Invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("invoice %s: %w", invoiceID, err)
		}
		return common.NewRetryableError(fmt.Errorf("failed to load invoice %s: %w", invoiceID, err))
	}

	outcome := service.OutcomeRejected
	if approved {
		outcome = service.OutcomeApproved
	}

	if err := e.deps.Outcomes.SetInvoiceOutcome(ctx, invoiceID, outcome, e.now()); err != nil {
		if errors.Is(err, common.ErrOutcomeFinal) || errors.Is(err, common.ErrNotFound) {
			return err
		}
		return common.NewRetryableError(fmt.Errorf("failed to record outcome for invoice %s: %w", invoiceID, err))
	}

	if approved {
		if err := e.applyBaseline(ctx, inv); err != nil {
			return err
		}
	} else {
		e.metrics.IncrementBaselineUpdate(metrics.ResultRejected)
	}

	e.logger.InfoContext(ctx, "Outcome recorded",
		"invoice_id", invoiceID,
		"vendor_key", inv.VendorKey(),
		"category", inv.Category,
		"outcome", outcome)

	return nil
}

// applyBaseline folds an approved invoice into its baseline unless an
// earlier approval already did.
func (e *Engine) applyBaseline(ctx context.Context, inv *model.InvoiceRecord) error {
	claimed, err := e.deps.Outcomes.ClaimBaseline(ctx, inv.ID)
	if err != nil {
		return common.NewRetryableError(fmt.Errorf("failed to claim baseline for invoice %s: %w", inv.ID, err))
	}
	if !claimed {
		e.metrics.IncrementBaselineUpdate(metrics.ResultSkipped)
		e.logger.DebugContext(ctx, "Baseline already includes invoice", "invoice_id", inv.ID)
		return nil
	}

	err = e.deps.Updater.UpdateBaseline(ctx, inv.VendorKey(), inv.Category, inv.Amount.Float64(), inv.Day())
	if err == nil {
		e.metrics.IncrementBaselineUpdate(metrics.ResultApplied)
		return nil
	}

	e.metrics.IncrementBaselineUpdate(metrics.ResultFailed)
	if releaseErr := e.deps.Outcomes.ReleaseBaseline(context.WithoutCancel(ctx), inv.ID); releaseErr != nil {
		e.logger.ErrorContext(ctx, "Failed to release baseline claim",
			"invoice_id", inv.ID,
			"error", releaseErr)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return common.NewRetryableError(fmt.Errorf("failed to update baseline for invoice %s: %w", inv.ID, err))
}
