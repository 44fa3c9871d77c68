package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/invoice-sentinel/internal/cli"
	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

func outcomeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcome <invoice-id>",
		Short: "Record the final decision for an invoice",
		Long: `Record whether a stored invoice was approved or rejected.

Approving an invoice adds its amount to the baseline of its vendor and
category, once. Approval is final. Rejected invoices never affect baselines
and may still be approved later.`,
		Args: cobra.ExactArgs(1),
		RunE: runOutcome,
	}

	cmd.Flags().Bool("approve", false, "Approve the invoice")
	cmd.Flags().Bool("reject", false, "Reject the invoice")
	cmd.MarkFlagsMutuallyExclusive("approve", "reject")
	cmd.MarkFlagsOneRequired("approve", "reject")

	return cmd
}

func runOutcome(cmd *cobra.Command, args []string) error {
	approve, _ := cmd.Flags().GetBool("approve")
	invoiceID := args[0]
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	if err := a.requireDurableBaselines(); err != nil {
		return err
	}

	eng, err := a.newEngine(0)
	if err != nil {
		return err
	}

	err = common.WithRetry(ctx, func() error {
		return eng.RecordOutcome(ctx, invoiceID, approve)
	}, service.RetryOptions{MaxAttempts: 5})
	switch {
	case errors.Is(err, common.ErrNotFound):
		return common.NewUserError(fmt.Sprintf("No stored invoice with id %q. Import or assess it with --save first.", invoiceID), err)
	case errors.Is(err, common.ErrOutcomeFinal):
		return common.NewUserError(fmt.Sprintf("Invoice %q is already approved and cannot be rejected.", invoiceID), err)
	}
	if err != nil {
		return err
	}

	verb := "Rejected"
	if approve {
		verb = "Approved"
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s invoice %s", verb, invoiceID)))
	return nil
}
