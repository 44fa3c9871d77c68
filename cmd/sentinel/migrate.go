package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/invoice-sentinel/internal/cli"
	"github.com/Veraticus/invoice-sentinel/internal/config"
	"github.com/Veraticus/invoice-sentinel/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the tables and indexes
needed to store invoices, vendor profiles, and baselines.`,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")

	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	dbPath := settings.Database.Path

	slog.Info("Starting database migration",
		"database", dbPath,
		"status_only", status)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if status {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTitle("Database Migration Status"))
		fmt.Fprintf(cmd.OutOrStdout(), "Database:        %s\n", dbPath)
		fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d\n", current)
		fmt.Fprintf(cmd.OutOrStdout(), "Latest version:  %d\n", storage.ExpectedSchemaVersion)
		if current < storage.ExpectedSchemaVersion {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("%d migration(s) pending", storage.ExpectedSchemaVersion-current)))
			return nil
		}
		count, err := store.GetInvoiceCount(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Invoices:        %d\n", count)
		return nil
	}

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	count, err := store.GetInvoiceCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Database at schema version %d with %d invoice(s)", storage.ExpectedSchemaVersion, count)))
	return nil
}
