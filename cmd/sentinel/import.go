package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/invoice-sentinel/internal/cli"
	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/engine"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json|->",
		Short: "Import historical invoices",
		Long: `Store invoices as history for future assessments.

The file holds one invoice or a JSON array of invoices. Invoices without an
id are given one. With --approved every imported invoice is also recorded as
approved, which builds the vendor baselines. Importing the same approved
invoices again does not count them twice.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("approved", false, "Record the imported invoices as approved")

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	approved, _ := cmd.Flags().GetBool("approved")
	ctx := cmd.Context()

	invoices, err := readInvoices(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	for _, inv := range invoices {
		if err := engine.ValidateInvoice(inv); err != nil {
			return fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	if approved {
		if err := a.requireDurableBaselines(); err != nil {
			return err
		}
	}

	if err := a.store.SaveInvoices(ctx, invoices); err != nil {
		return fmt.Errorf("failed to save invoices: %w", err)
	}
	slog.Info("Imported invoices", "count", len(invoices), "approved", approved)

	if approved {
		eng, err := a.newEngine(0)
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			err := common.WithRetry(ctx, func() error {
				return eng.RecordOutcome(ctx, inv.ID, true)
			}, service.RetryOptions{MaxAttempts: 5})
			if err != nil {
				return fmt.Errorf("failed to approve invoice %s: %w", inv.ID, err)
			}
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Imported %d invoice(s)", len(invoices))))
	return nil
}
