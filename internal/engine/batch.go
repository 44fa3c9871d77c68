package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/invoice-sentinel/internal/model"
)

// BatchOptions configures AssessBatch.
type BatchOptions struct {
	// Progress is called once per finished invoice, from worker goroutines.
	Progress func(BatchResult)
	// ParallelWorkers overrides Config.Workers when positive.
	ParallelWorkers int
}

// BatchResult is the outcome of assessing one invoice of a batch.
type BatchResult struct {
	Error      error
	Assessment *model.FraudAssessment
	InvoiceID  string
	Index      int
}

// BatchSummary contains statistics about a batch run.
type BatchSummary struct {
	Decisions      map[model.Decision]int
	Total          int
	Failed         int
	Partial        int
	ProcessingTime time.Duration
}

// AssessBatch assesses invoices concurrently with a bounded worker pool.
// Results are returned in input order; a failed invoice carries its error
// and does not stop the others.
func (e *Engine) AssessBatch(ctx context.Context, invoices []model.InvoiceRecord, opts BatchOptions) ([]BatchResult, *BatchSummary) {
	startTime := time.Now()

	workers := opts.ParallelWorkers
	if workers <= 0 {
		workers = e.cfg.Workers
	}

	results := make([]BatchResult, len(invoices))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, inv := range invoices {
		g.Go(func() error {
			assessment, err := e.Assess(ctx, inv)
			results[i] = BatchResult{
				Index:      i,
				InvoiceID:  inv.ID,
				Assessment: assessment,
				Error:      err,
			}
			if err != nil {
				e.logger.Warn("Failed to assess invoice", "invoice_id", inv.ID, "error", err)
			}
			if opts.Progress != nil {
				opts.Progress(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summarize(results)
	summary.ProcessingTime = time.Since(startTime)

	e.logger.Info("Batch assessment complete",
		"total", summary.Total,
		"failed", summary.Failed,
		"partial", summary.Partial,
		"duration", summary.ProcessingTime.Round(time.Millisecond))

	return results, summary
}

// Summarize tallies batch results.
func Summarize(results []BatchResult) *BatchSummary {
	s := &BatchSummary{
		Total:     len(results),
		Decisions: make(map[model.Decision]int),
	}
	for _, r := range results {
		if r.Error != nil || r.Assessment == nil {
			s.Failed++
			continue
		}
		s.Decisions[r.Assessment.Decision]++
		if r.Assessment.Partial {
			s.Partial++
		}
	}
	return s
}

// GetDisplay returns a JSON representation of the summary.
func (s *BatchSummary) GetDisplay() string {
	if s.Total == 0 {
		return `{"message":"No invoices to assess"}`
	}

	type summaryJSON struct {
		ProcessingTime string `json:"processing_time"`
		Total          int    `json:"total"`
		Approved       int    `json:"approved"`
		Review         int    `json:"review"`
		Blocked        int    `json:"blocked"`
		Partial        int    `json:"partial"`
		Failed         int    `json:"failed"`
	}

	data := summaryJSON{
		Total:          s.Total,
		Approved:       s.Decisions[model.DecisionApprove],
		Review:         s.Decisions[model.DecisionReview],
		Blocked:        s.Decisions[model.DecisionBlock],
		Partial:        s.Partial,
		Failed:         s.Failed,
		ProcessingTime: s.ProcessingTime.Round(time.Millisecond).String(),
	}

	bytes, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal batch summary", "error", err)
		return fmt.Sprintf(`{"error":"Failed to marshal summary: %v"}`, err)
	}

	return string(bytes)
}
