package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/invoice-sentinel/internal/cli"
)

func baselinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baselines",
		Short: "Inspect vendor amount baselines",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every vendor/category baseline",
		RunE:  runBaselinesList,
	}
	list.Flags().Bool("json", false, "Print baselines as JSON")
	cmd.AddCommand(list)

	return cmd
}

func runBaselinesList(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	baselines, err := a.baselines.ListBaselines(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list baselines: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(baselines)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatBaselines(baselines))
	return nil
}
