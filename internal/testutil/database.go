// Package testutil provides fixtures and in-memory collaborators for testing
// the fraud engine and its stores.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
	"github.com/Veraticus/invoice-sentinel/internal/storage"
)

// TestDB represents a migrated in-memory database with associated test
// helpers.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup func(context.Context, service.Storage) error
	Invoices    []model.InvoiceRecord
	Profiles    []model.VendorProfile
	// Approved lists invoice IDs whose approval is folded into the
	// baselines during setup.
	Approved       []string
	SkipMigrations bool
}

// SetupTestDB creates a new in-memory test database seeded with invoices.
// It automatically handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.Series("acme", "Acme Supplies", 6, 100)...)
//	db.Approve(ctx, "acme-1", "acme-2")
func SetupTestDB(t *testing.T, invoices ...model.InvoiceRecord) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Invoices: invoices})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	db := &TestDB{Storage: store, t: t}

	if len(opts.Invoices) > 0 {
		if err := store.SaveInvoices(ctx, opts.Invoices); err != nil {
			t.Fatalf("failed to seed invoices: %v", err)
		}
	}
	for i := range opts.Profiles {
		if err := store.SaveVendorProfile(ctx, &opts.Profiles[i]); err != nil {
			t.Fatalf("failed to seed profile %q: %v", opts.Profiles[i].VendorKey, err)
		}
	}
	db.Approve(ctx, opts.Approved...)

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// Approve marks stored invoices approved and folds their amounts into the
// baselines, failing the test on any error.
func (db *TestDB) Approve(ctx context.Context, ids ...string) {
	db.t.Helper()
	for _, id := range ids {
		inv, err := db.Storage.GetInvoice(ctx, id)
		if err != nil {
			db.t.Fatalf("failed to load invoice %q: %v", id, err)
		}
		if err := db.Storage.SetInvoiceOutcome(ctx, id, service.OutcomeApproved, inv.Day()); err != nil {
			db.t.Fatalf("failed to approve invoice %q: %v", id, err)
		}
		claimed, err := db.Storage.ClaimBaseline(ctx, id)
		if err != nil {
			db.t.Fatalf("failed to claim baseline for %q: %v", id, err)
		}
		if !claimed {
			continue
		}
		if err := db.Storage.UpdateBaseline(ctx, inv.VendorKey(), inv.Category, inv.Amount.Float64(), inv.Day()); err != nil {
			db.t.Fatalf("failed to update baseline for %q: %v", id, err)
		}
	}
}

// IDs returns the IDs of the given invoices.
func IDs(invoices []model.InvoiceRecord) []string {
	ids := make([]string, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
	}
	return ids
}
