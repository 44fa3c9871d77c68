package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

const dateLayout = "2006-01-02"

const invoiceColumns = `
	id, vendor_name, vendor_id, invoice_number, amount, currency, date,
	category, extracted_text, vendor_tax_id, vendor_address, extraction_confidence`

// SaveInvoices stores invoices and their line items. Saving an invoice that
// already exists replaces its data but keeps its recorded outcome.
func (s *SQLiteStorage) SaveInvoices(ctx context.Context, invoices []model.InvoiceRecord) error {
	// Validate inputs
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateInvoices(invoices); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.saveInvoicesTx(ctx, tx, invoices); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoices: %w", classifyError(err))
	}

	// Invoice counts feed vendor profiles.
	s.invalidateProfileCache()
	return nil
}

func (s *SQLiteStorage) saveInvoicesTx(ctx context.Context, tx *sql.Tx, invoices []model.InvoiceRecord) error {
	invoiceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO invoices (
			vendor_key,`+invoiceColumns+`
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vendor_key = excluded.vendor_key,
			vendor_name = excluded.vendor_name,
			vendor_id = excluded.vendor_id,
			invoice_number = excluded.invoice_number,
			amount = excluded.amount,
			currency = excluded.currency,
			date = excluded.date,
			category = excluded.category,
			extracted_text = excluded.extracted_text,
			vendor_tax_id = excluded.vendor_tax_id,
			vendor_address = excluded.vendor_address,
			extraction_confidence = excluded.extraction_confidence
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = invoiceStmt.Close() }()

	itemStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO line_items (invoice_id, position, description, amount)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = itemStmt.Close() }()

	for i := range invoices {
		inv := &invoices[i]
		currency := inv.Amount.Currency
		if currency == "" {
			currency = model.DefaultCurrency
		}

		_, err := invoiceStmt.ExecContext(ctx,
			inv.VendorKey(),
			inv.ID,
			inv.VendorName,
			inv.VendorID,
			inv.InvoiceNumber,
			inv.Amount.Amount.String(),
			currency,
			inv.Day().Format(dateLayout),
			inv.Category,
			inv.ExtractedText,
			inv.VendorTaxID,
			inv.VendorAddress,
			inv.ExtractionConfidence,
		)
		if err != nil {
			return fmt.Errorf("failed to save invoice %s: %w", inv.ID, classifyError(err))
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE invoice_id = ?`, inv.ID); err != nil {
			return fmt.Errorf("failed to clear line items for %s: %w", inv.ID, classifyError(err))
		}
		for pos, li := range inv.LineItems {
			if _, err := itemStmt.ExecContext(ctx, inv.ID, pos, li.Description, li.Amount.String()); err != nil {
				return fmt.Errorf("failed to save line item %d of %s: %w", pos, inv.ID, classifyError(err))
			}
		}
	}

	return nil
}

// GetInvoice implements service.InvoiceLookup.
func (s *SQLiteStorage) GetInvoice(ctx context.Context, id string) (*model.InvoiceRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT`+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", classifyError(err))
	}

	items, err := s.lineItems(ctx, s.db, `SELECT invoice_id, description, amount FROM line_items WHERE invoice_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	inv.LineItems = items[id]

	return inv, nil
}

// InvoicesByVendor implements service.HistoryLookup. Invoices are returned in
// date order.
func (s *SQLiteStorage) InvoicesByVendor(ctx context.Context, vendorKey string, from, to time.Time) ([]model.InvoiceRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, to, from)
	}

	fromDay := model.CalendarDate(from).Format(dateLayout)
	toDay := model.CalendarDate(to).Format(dateLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+invoiceColumns+`
		FROM invoices
		WHERE vendor_key = ? AND date BETWEEN ? AND ?
		ORDER BY date, id
	`, vendorKey, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", classifyError(err))
	}
	defer func() { _ = rows.Close() }()

	var invoices []model.InvoiceRecord
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	items, err := s.lineItems(ctx, s.db, `
		SELECT li.invoice_id, li.description, li.amount
		FROM line_items li
		JOIN invoices i ON i.id = li.invoice_id
		WHERE i.vendor_key = ? AND i.date BETWEEN ? AND ?
		ORDER BY li.invoice_id, li.position
	`, vendorKey, fromDay, toDay)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].LineItems = items[invoices[i].ID]
	}

	return invoices, nil
}

// SetInvoiceOutcome implements service.OutcomeRecorder. Recording the same
// outcome twice is a no-op. An approved invoice is final: any other outcome
// fails with common.ErrOutcomeFinal.
func (s *SQLiteStorage) SetInvoiceOutcome(ctx context.Context, invoiceID string, outcome service.Outcome, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(invoiceID, "invoiceID"); err != nil {
		return err
	}
	if err := validateOutcome(outcome); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET outcome = ?, outcome_at = ?
		WHERE id = ? AND outcome NOT IN (?, ?)
	`, string(outcome), at.UTC(), invoiceID, string(outcome), string(service.OutcomeApproved))
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", classifyError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		current, err := s.GetInvoiceOutcome(ctx, invoiceID)
		if err != nil {
			return err
		}
		if current == outcome {
			return nil
		}
		return fmt.Errorf("invoice %s: %w", invoiceID, common.ErrOutcomeFinal)
	}

	// Rejected invoices leave the vendor's history.
	s.invalidateProfileCache()
	return nil
}

// ClaimBaseline implements service.OutcomeRecorder. Only the first claim on
// an approved invoice succeeds.
func (s *SQLiteStorage) ClaimBaseline(ctx context.Context, invoiceID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET baseline_applied = 1
		WHERE id = ? AND outcome = ? AND baseline_applied = 0
	`, invoiceID, string(service.OutcomeApproved))
	if err != nil {
		return false, fmt.Errorf("failed to claim baseline: %w", classifyError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ReleaseBaseline implements service.OutcomeRecorder.
func (s *SQLiteStorage) ReleaseBaseline(ctx context.Context, invoiceID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE invoices SET baseline_applied = 0 WHERE id = ?`, invoiceID); err != nil {
		return fmt.Errorf("failed to release baseline claim: %w", classifyError(err))
	}
	return nil
}

// GetInvoiceOutcome returns the recorded outcome of an invoice.
func (s *SQLiteStorage) GetInvoiceOutcome(ctx context.Context, invoiceID string) (service.Outcome, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	var outcome string
	err := s.db.QueryRowContext(ctx, `SELECT outcome FROM invoices WHERE id = ?`, invoiceID).Scan(&outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("invoice %s: %w", invoiceID, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get outcome: %w", classifyError(err))
	}
	return service.Outcome(outcome), nil
}

// GetInvoiceCount returns the number of stored invoices.
func (s *SQLiteStorage) GetInvoiceCount(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", classifyError(err))
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*model.InvoiceRecord, error) {
	var (
		inv      model.InvoiceRecord
		amount   string
		currency string
		date     string
	)
	err := row.Scan(
		&inv.ID,
		&inv.VendorName,
		&inv.VendorID,
		&inv.InvoiceNumber,
		&amount,
		&currency,
		&date,
		&inv.Category,
		&inv.ExtractedText,
		&inv.VendorTaxID,
		&inv.VendorAddress,
		&inv.ExtractionConfidence,
	)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invoice %s has malformed amount %q: %w", inv.ID, amount, err)
	}
	inv.Amount = model.Money{Amount: value, Currency: currency}

	inv.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invoice %s has malformed date %q: %w", inv.ID, date, err)
	}

	return &inv, nil
}

// lineItems runs query and groups the resulting line items by invoice ID.
func (s *SQLiteStorage) lineItems(ctx context.Context, q queryable, query string, args ...any) (map[string][]model.LineItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", classifyError(err))
	}
	defer func() { _ = rows.Close() }()

	items := make(map[string][]model.LineItem)
	for rows.Next() {
		var invoiceID, description, amount string
		if err := rows.Scan(&invoiceID, &description, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("line item of %s has malformed amount %q: %w", invoiceID, amount, err)
		}
		items[invoiceID] = append(items[invoiceID], model.LineItem{Description: description, Amount: value})
	}

	return items, rows.Err()
}
