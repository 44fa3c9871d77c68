package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/invoice-sentinel/internal/cli"
	"github.com/Veraticus/invoice-sentinel/internal/engine"
	"github.com/Veraticus/invoice-sentinel/internal/model"
)

func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess <file.json|->",
		Short: "Assess invoices for fraud",
		Long: `Run every fraud detector over one invoice or a JSON array of invoices
and print the risk score, risk level, and routing decision of each.

Assessing never changes baselines. Use --save to keep the assessed invoices
as history, then record the reviewer's decision with "sentinel outcome".
With --json the batch summary is written to stderr as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: runAssess,
	}

	cmd.Flags().Bool("json", false, "Print assessments as JSON")
	cmd.Flags().Bool("save", false, "Store the assessed invoices as history")
	cmd.Flags().Int("workers", 0, "Concurrent assessments (default from engine.workers)")
	cmd.Flags().String("metrics-textfile", "", "Write Prometheus metrics to this file")

	return cmd
}

type assessOutput struct {
	Assessment *model.FraudAssessment `json:"assessment,omitempty"`
	InvoiceID  string                 `json:"invoice_id"`
	Error      string                 `json:"error,omitempty"`
}

func runAssess(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	save, _ := cmd.Flags().GetBool("save")
	workers, _ := cmd.Flags().GetInt("workers")
	metricsPath, _ := cmd.Flags().GetString("metrics-textfile")

	invoices, err := readInvoices(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	eng, err := a.newEngine(workers)
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := interrupts.HandleInterrupts(cmd.Context())
	defer stop()

	if len(invoices) > 1 {
		if err := a.store.WarmProfileCache(ctx); err != nil {
			slog.Warn("Failed to warm vendor profile cache", "error", err)
		}
	}

	var bar *progressbar.ProgressBar
	if len(invoices) > 1 && !asJSON {
		bar = cli.NewProgressBar(cmd.ErrOrStderr(), len(invoices), "Assessing invoices...")
	}

	var done atomic.Int64
	results, summary := eng.AssessBatch(ctx, invoices, engine.BatchOptions{
		ParallelWorkers: workers,
		Progress: func(engine.BatchResult) {
			interrupts.SetProgress(int(done.Add(1)), len(invoices))
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})
	if interrupts.WasInterrupted() {
		return ctx.Err()
	}

	if err := a.writeMetrics(metricsPath); err != nil {
		return err
	}

	if asJSON {
		if err := printAssessmentsJSON(cmd, results); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), summary.GetDisplay())
	} else {
		printAssessments(cmd, results, summary)
	}

	if save {
		assessed := make([]model.InvoiceRecord, 0, len(results))
		for _, r := range results {
			if r.Error == nil {
				assessed = append(assessed, invoices[r.Index])
			}
		}
		if len(assessed) > 0 {
			if err := a.store.SaveInvoices(cmd.Context(), assessed); err != nil {
				return fmt.Errorf("failed to save invoices: %w", err)
			}
		}
		if !asJSON {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved %d invoice(s)", len(assessed))))
		}
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d invoice(s) could not be assessed", summary.Failed, summary.Total)
	}
	return nil
}

func printAssessments(cmd *cobra.Command, results []engine.BatchResult, summary *engine.BatchSummary) {
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatError(fmt.Sprintf("Invoice %s: %v", r.InvoiceID, r.Error)))
			continue
		}
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatAssessment(r.Assessment))
	}
	if len(results) > 1 {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSummary(summary))
	}
}

func printAssessmentsJSON(cmd *cobra.Command, results []engine.BatchResult) error {
	out := make([]assessOutput, 0, len(results))
	for _, r := range results {
		o := assessOutput{InvoiceID: r.InvoiceID, Assessment: r.Assessment}
		if r.Error != nil {
			o.Error = r.Error.Error()
		}
		out = append(out, o)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode assessments: %w", err)
	}
	return nil
}
