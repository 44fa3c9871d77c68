// Package storage provides the SQLite persistence layer for invoices, vendor
// profiles, and baselines.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrEmptySlice       = errors.New("slice cannot be empty")
	ErrInvalidDateRange = errors.New("start date must be before end date")
	ErrInvalidInvoice   = errors.New("invalid invoice")
	ErrInvalidProfile   = errors.New("invalid vendor profile")
	ErrInvalidOutcome   = errors.New("invalid outcome")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateInvoices validates a slice of invoices.
func validateInvoices(invoices []model.InvoiceRecord) error {
	if invoices == nil {
		return fmt.Errorf("%w: invoices", ErrNilParameter)
	}
	if len(invoices) == 0 {
		return fmt.Errorf("%w: invoices", ErrEmptySlice)
	}

	for i := range invoices {
		if err := validateInvoice(&invoices[i]); err != nil {
			return fmt.Errorf("invoice at index %d: %w", i, err)
		}
	}
	return nil
}

// validateInvoice checks the fields the schema requires.
func validateInvoice(inv *model.InvoiceRecord) error {
	if inv == nil {
		return fmt.Errorf("%w: invoice", ErrNilParameter)
	}
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidInvoice)
	}
	if strings.TrimSpace(inv.VendorName) == "" {
		return fmt.Errorf("%w: missing vendor name", ErrInvalidInvoice)
	}
	if inv.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidInvoice)
	}
	return nil
}

// validateProfile validates a vendor profile.
func validateProfile(profile *model.VendorProfile) error {
	if profile == nil {
		return fmt.Errorf("%w: profile", ErrNilParameter)
	}
	if strings.TrimSpace(profile.VendorKey) == "" {
		return fmt.Errorf("%w: missing vendor key", ErrInvalidProfile)
	}
	switch profile.Source {
	case "", model.SourceAuto, model.SourceManual:
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidProfile, profile.Source)
	}
	return nil
}

// validateOutcome rejects unknown outcomes.
func validateOutcome(outcome service.Outcome) error {
	switch outcome {
	case service.OutcomeApproved, service.OutcomeRejected, service.OutcomePending:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}
}
