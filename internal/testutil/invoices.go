package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/invoice-sentinel/internal/model"
)

// Epoch is the reference date used by test fixtures.
var Epoch = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

// InvoiceBuilder provides a fluent interface for constructing test invoices.
//
// Example:
//
//	inv := testutil.NewInvoice("inv-1").
//		Vendor("Acme Supplies").
//		Amount(400).
//		DaysAfter(2).
//		Items("Paper", "Toner").
//		Build()
type InvoiceBuilder struct {
	inv model.InvoiceRecord
}

// NewInvoice starts a complete, valid invoice dated Epoch.
func NewInvoice(id string) *InvoiceBuilder {
	return &InvoiceBuilder{inv: model.InvoiceRecord{
		ID:                   id,
		VendorName:           "Acme Supplies",
		InvoiceNumber:        "A-" + id,
		Amount:               model.NewMoney(100, model.DefaultCurrency),
		Date:                 Epoch,
		Category:             "office",
		ExtractionConfidence: 0.95,
		VendorTaxID:          "12-3456789",
		VendorAddress:        "1 Main St, Springfield",
	}}
}

// Vendor sets the vendor name.
func (b *InvoiceBuilder) Vendor(name string) *InvoiceBuilder {
	b.inv.VendorName = name
	return b
}

// VendorID sets the vendor ID.
func (b *InvoiceBuilder) VendorID(id string) *InvoiceBuilder {
	b.inv.VendorID = id
	return b
}

// Number sets the invoice number.
func (b *InvoiceBuilder) Number(number string) *InvoiceBuilder {
	b.inv.InvoiceNumber = number
	return b
}

// Amount sets the invoice total.
func (b *InvoiceBuilder) Amount(amount float64) *InvoiceBuilder {
	b.inv.Amount = model.NewMoney(amount, b.inv.Amount.Currency)
	return b
}

// On sets the invoice date.
func (b *InvoiceBuilder) On(date time.Time) *InvoiceBuilder {
	b.inv.Date = date
	return b
}

// DaysAfter dates the invoice n days after Epoch; n may be negative.
func (b *InvoiceBuilder) DaysAfter(n int) *InvoiceBuilder {
	b.inv.Date = Epoch.AddDate(0, 0, n)
	return b
}

// Category sets the category.
func (b *InvoiceBuilder) Category(category string) *InvoiceBuilder {
	b.inv.Category = category
	return b
}

// Items replaces the line items, splitting the invoice amount evenly.
func (b *InvoiceBuilder) Items(descriptions ...string) *InvoiceBuilder {
	b.inv.LineItems = nil
	if len(descriptions) == 0 {
		return b
	}
	share := b.inv.Amount.Amount.Div(decimal.NewFromInt(int64(len(descriptions)))).Round(2)
	for _, d := range descriptions {
		b.inv.LineItems = append(b.inv.LineItems, model.LineItem{Description: d, Amount: share})
	}
	return b
}

// NoContact clears the extracted tax ID and address.
func (b *InvoiceBuilder) NoContact() *InvoiceBuilder {
	b.inv.VendorTaxID = ""
	b.inv.VendorAddress = ""
	return b
}

// Confidence sets the extraction confidence.
func (b *InvoiceBuilder) Confidence(c float64) *InvoiceBuilder {
	b.inv.ExtractionConfidence = c
	return b
}

// With applies an arbitrary mutation.
func (b *InvoiceBuilder) With(fn func(*model.InvoiceRecord)) *InvoiceBuilder {
	fn(&b.inv)
	return b
}

// Build returns a copy of the invoice.
func (b *InvoiceBuilder) Build() model.InvoiceRecord {
	inv := b.inv
	inv.LineItems = append([]model.LineItem(nil), b.inv.LineItems...)
	return inv
}

// Series builds n invoices from the same vendor with IDs prefix-1..prefix-n,
// one per day starting at Epoch.
func Series(prefix, vendor string, n int, amount float64) []model.InvoiceRecord {
	out := make([]model.InvoiceRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, NewInvoice(fmt.Sprintf("%s-%d", prefix, i)).
			Vendor(vendor).
			Amount(amount).
			DaysAfter(i-1).
			Build())
	}
	return out
}
