package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/invoice-sentinel/internal/cli"
	"github.com/Veraticus/invoice-sentinel/internal/model"
)

func vendorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Inspect and maintain vendor profiles",
		Long: `Vendor profiles tell the ghost vendor detector what is known about a
vendor: how many invoices it has sent, and whether its tax ID, address, and
business registration are on record.`,
	}

	cmd.AddCommand(vendorsListCmd())
	cmd.AddCommand(vendorsShowCmd())
	cmd.AddCommand(vendorsSetCmd())

	return cmd
}

func vendorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all vendors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			profiles, err := a.store.GetAllVendorProfiles(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatProfiles(profiles))
			return nil
		},
	}
}

func vendorsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <vendor>",
		Short: "Show a vendor profile",
		Long:  `Show a vendor profile by vendor key ("id:..." or "name:...") or by vendor name.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			key := resolveVendorKey(args[0])
			profile, err := a.store.VendorProfile(cmd.Context(), key)
			if err != nil {
				return err
			}
			if profile == nil {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("Unknown vendor %s", key)))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatProfile(profile))
			return nil
		},
	}
}

func vendorsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <vendor>",
		Short: "Record what is known about a vendor",
		Long: `Record vendor details that invoices do not carry. Only the flags given
are changed. --registered records the result of a business registry lookup.`,
		Args: cobra.ExactArgs(1),
		RunE: runVendorsSet,
	}

	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().Bool("tax-id", false, "The vendor's tax ID is on record")
	cmd.Flags().Bool("address", false, "The vendor's address is on record")
	cmd.Flags().Bool("registered", false, "The vendor was found in a business registry")

	return cmd
}

func runVendorsSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	key := resolveVendorKey(args[0])
	profile, err := a.store.VendorProfile(ctx, key)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &model.VendorProfile{VendorKey: key, DisplayName: args[0]}
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		profile.DisplayName, _ = flags.GetString("name")
	}
	if flags.Changed("tax-id") {
		profile.HasTaxID, _ = flags.GetBool("tax-id")
	}
	if flags.Changed("address") {
		profile.HasAddress, _ = flags.GetBool("address")
	}
	if flags.Changed("registered") {
		profile.RegistryChecked = true
		profile.Registered, _ = flags.GetBool("registered")
	}
	profile.Source = model.SourceManual
	profile.LastUpdated = time.Time{}

	if err := a.store.SaveVendorProfile(ctx, profile); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated vendor %s", key)))
	return nil
}
