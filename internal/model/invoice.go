// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/invoice-sentinel/internal/similarity"
)

// DefaultCurrency is assumed when an extracted invoice carries no currency code.
const DefaultCurrency = "USD"

// Money is a decimal amount tagged with its ISO-4217 currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
}

// NewMoney builds a Money value from a float, rounding to cents.
func NewMoney(amount float64, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: decimal.NewFromFloat(amount).Round(2), Currency: currency}
}

// Float64 returns the amount as a float for statistical use.
func (m Money) Float64() float64 {
	return m.Amount.InexactFloat64()
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// LineItem is a single billed line on an invoice.
type LineItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceRecord is a normalized invoice as handed over by the extraction
// pipeline. It is treated as immutable once constructed.
type InvoiceRecord struct {
	Date                 time.Time  `json:"date" validate:"required"`
	Amount               Money      `json:"amount"`
	ID                   string     `json:"id" validate:"required"`
	VendorName           string     `json:"vendor_name" validate:"required"`
	VendorID             string     `json:"vendor_id,omitempty"`
	InvoiceNumber        string     `json:"invoice_number,omitempty"`
	Category             string     `json:"category,omitempty"`
	ExtractedText        string     `json:"extracted_text,omitempty"`
	VendorTaxID          string     `json:"vendor_tax_id,omitempty"`
	VendorAddress        string     `json:"vendor_address,omitempty"`
	LineItems            []LineItem `json:"line_items,omitempty"`
	ExtractionConfidence float64    `json:"extraction_confidence" validate:"gte=0,lte=1"`
}

// VendorKey identifies the vendor: the vendor ID when present, otherwise the
// normalized vendor name.
func (r *InvoiceRecord) VendorKey() string {
	return VendorKeyFor(r.VendorID, r.VendorName)
}

// VendorKeyFor builds a vendor key from an optional vendor ID and a name.
func VendorKeyFor(vendorID, vendorName string) string {
	if id := strings.TrimSpace(vendorID); id != "" {
		return "id:" + id
	}
	return "name:" + similarity.Normalize(vendorName)
}

// CalendarDate truncates t to midnight UTC of its calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Day returns the invoice date as a calendar date.
func (r *InvoiceRecord) Day() time.Time {
	return CalendarDate(r.Date)
}

// LineItemDescriptions returns the raw line item descriptions in order.
func (r *InvoiceRecord) LineItemDescriptions() []string {
	out := make([]string, 0, len(r.LineItems))
	for _, li := range r.LineItems {
		out = append(out, li.Description)
	}
	return out
}

// LineItemTotal sums the line item amounts.
func (r *InvoiceRecord) LineItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range r.LineItems {
		total = total.Add(li.Amount)
	}
	return total
}

// Fingerprint creates a content hash for exact duplicate detection.
func (r *InvoiceRecord) Fingerprint() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		r.Day().Format("2006-01-02"),
		r.Amount.Amount.StringFixed(2),
		r.VendorKey(),
		strings.ToLower(strings.TrimSpace(r.InvoiceNumber)))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
