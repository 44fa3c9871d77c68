// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/invoice-sentinel/internal/model"
)

// HistoryLookup returns historical invoices for a vendor whose dates fall in
// [from, to], both inclusive.
type HistoryLookup interface {
	InvoicesByVendor(ctx context.Context, vendorKey string, from, to time.Time) ([]model.InvoiceRecord, error)
}

// BaselineLookup returns the baseline for a (vendor, category) pair.
// A missing baseline is reported as (nil, nil).
type BaselineLookup interface {
	Baseline(ctx context.Context, vendorKey, category string) (*model.VendorBaseline, error)
}

// VendorProfileLookup returns what is known about a vendor.
// An unknown vendor is reported as (nil, nil).
type VendorProfileLookup interface {
	VendorProfile(ctx context.Context, vendorKey string) (*model.VendorProfile, error)
}

// BaselineUpdater folds one approved amount into a baseline. Implementations
// serialize updates per (vendor, category) key and publish the new baseline
// atomically.
type BaselineUpdater interface {
	UpdateBaseline(ctx context.Context, vendorKey, category string, amount float64, at time.Time) error
}

// BaselineStore is a baseline backend readable and writable by the engine.
type BaselineStore interface {
	BaselineLookup
	BaselineUpdater
	ListBaselines(ctx context.Context) ([]model.VendorBaseline, error)
}

// InvoiceLookup fetches a single invoice by ID.
// A missing invoice is reported with common.ErrNotFound.
type InvoiceLookup interface {
	GetInvoice(ctx context.Context, id string) (*model.InvoiceRecord, error)
}

// Outcome is the human decision recorded for an invoice.
type Outcome string

// Outcome constants.
const (
	OutcomePending  Outcome = "pending"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// OutcomeRecorder persists the final approval decision of an invoice and
// tracks whether an approved invoice's amount is part of its baseline.
// Approval is final; changing it again must fail.
type OutcomeRecorder interface {
	SetInvoiceOutcome(ctx context.Context, invoiceID string, outcome Outcome, at time.Time) error
	// ClaimBaseline reports true at most once per approved invoice. The
	// caller that wins the claim folds the amount into the baseline.
	ClaimBaseline(ctx context.Context, invoiceID string) (bool, error)
	// ReleaseBaseline returns a claim whose baseline update failed.
	ReleaseBaseline(ctx context.Context, invoiceID string) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	HistoryLookup
	VendorProfileLookup
	InvoiceLookup
	OutcomeRecorder
	BaselineStore

	// Invoice operations
	SaveInvoices(ctx context.Context, invoices []model.InvoiceRecord) error
	GetInvoiceOutcome(ctx context.Context, invoiceID string) (Outcome, error)
	GetInvoiceCount(ctx context.Context) (int, error)

	// Vendor operations
	SaveVendorProfile(ctx context.Context, profile *model.VendorProfile) error
	GetAllVendorProfiles(ctx context.Context) ([]model.VendorProfile, error)
	WarmProfileCache(ctx context.Context) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
