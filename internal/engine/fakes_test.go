package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/invoice-sentinel/internal/common"
	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

// fakeInvoices is an InvoiceLookup over a fixed set of invoices.
type fakeInvoices struct {
	err      error
	invoices map[string]model.InvoiceRecord
}

func newFakeInvoices(invoices ...model.InvoiceRecord) *fakeInvoices {
	f := &fakeInvoices{invoices: make(map[string]model.InvoiceRecord)}
	for _, inv := range invoices {
		f.invoices[inv.ID] = inv
	}
	return f
}

func (f *fakeInvoices) GetInvoice(_ context.Context, id string) (*model.InvoiceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &inv, nil
}

type baselineUpdate struct {
	at        time.Time
	vendorKey string
	category  string
	amount    float64
}

// fakeUpdater records baseline updates.
type fakeUpdater struct {
	err     error
	updates []baselineUpdate
	mu      sync.Mutex
}

func (f *fakeUpdater) UpdateBaseline(_ context.Context, vendorKey, category string, amount float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, baselineUpdate{vendorKey: vendorKey, category: category, amount: amount, at: at})
	return nil
}

func (f *fakeUpdater) calls() []baselineUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]baselineUpdate(nil), f.updates...)
}

// fakeOutcomes records outcomes and baseline claims by invoice ID.
type fakeOutcomes struct {
	err      error
	claimErr error
	outcomes map[string]service.Outcome
	claimed  map[string]bool
	releases int
	mu       sync.Mutex
}

func newFakeOutcomes() *fakeOutcomes {
	return &fakeOutcomes{
		outcomes: make(map[string]service.Outcome),
		claimed:  make(map[string]bool),
	}
}

func (f *fakeOutcomes) SetInvoiceOutcome(_ context.Context, invoiceID string, outcome service.Outcome, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if prev := f.outcomes[invoiceID]; prev == service.OutcomeApproved && outcome != prev {
		return common.ErrOutcomeFinal
	}
	f.outcomes[invoiceID] = outcome
	return nil
}

func (f *fakeOutcomes) ClaimBaseline(_ context.Context, invoiceID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.outcomes[invoiceID] != service.OutcomeApproved || f.claimed[invoiceID] {
		return false, nil
	}
	f.claimed[invoiceID] = true
	return true, nil
}

func (f *fakeOutcomes) ReleaseBaseline(_ context.Context, invoiceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed[invoiceID] = false
	f.releases++
	return nil
}

func (f *fakeOutcomes) get(invoiceID string) (service.Outcome, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.outcomes[invoiceID]
	return o, ok
}

func (f *fakeOutcomes) isClaimed(invoiceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed[invoiceID]
}
