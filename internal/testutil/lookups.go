package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/invoice-sentinel/internal/model"
)

// History is an in-memory HistoryLookup. Set Err to simulate an unavailable
// backing store.
type History struct {
	Err      error
	invoices []model.InvoiceRecord
	calls    int
	mu       sync.Mutex
}

// NewHistory creates a history lookup seeded with invoices.
func NewHistory(invoices ...model.InvoiceRecord) *History {
	return &History{invoices: invoices}
}

// Add appends invoices to the history.
func (h *History) Add(invoices ...model.InvoiceRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invoices = append(h.invoices, invoices...)
}

// InvoicesByVendor implements service.HistoryLookup.
func (h *History) InvoicesByVendor(_ context.Context, vendorKey string, from, to time.Time) ([]model.InvoiceRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++

	if h.Err != nil {
		return nil, h.Err
	}

	var out []model.InvoiceRecord
	for i := range h.invoices {
		inv := h.invoices[i]
		day := inv.Day()
		if inv.VendorKey() == vendorKey && !day.Before(from) && !day.After(to) {
			out = append(out, inv)
		}
	}
	return out, nil
}

// Calls returns how many lookups were made.
func (h *History) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// Baselines is an in-memory BaselineLookup.
type Baselines struct {
	Err       error
	baselines map[string]model.VendorBaseline
	mu        sync.RWMutex
}

// NewBaselines creates an empty baseline lookup.
func NewBaselines() *Baselines {
	return &Baselines{baselines: make(map[string]model.VendorBaseline)}
}

// Set stores a baseline under its own key.
func (b *Baselines) Set(baseline model.VendorBaseline) *Baselines {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baselines[baseline.Key()] = baseline
	return b
}

// Baseline implements service.BaselineLookup.
func (b *Baselines) Baseline(_ context.Context, vendorKey, category string) (*model.VendorBaseline, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.Err != nil {
		return nil, b.Err
	}
	baseline, ok := b.baselines[model.BaselineKey(vendorKey, category)]
	if !ok {
		return nil, nil //nolint:nilnil // absent baseline is a valid result
	}
	return &baseline, nil
}

// Profiles is an in-memory VendorProfileLookup.
type Profiles struct {
	Err      error
	profiles map[string]model.VendorProfile
	mu       sync.RWMutex
}

// NewProfiles creates an empty profile lookup.
func NewProfiles() *Profiles {
	return &Profiles{profiles: make(map[string]model.VendorProfile)}
}

// Set stores a profile under its vendor key.
func (p *Profiles) Set(profile model.VendorProfile) *Profiles {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.VendorKey] = profile
	return p
}

// VendorProfile implements service.VendorProfileLookup.
func (p *Profiles) VendorProfile(_ context.Context, vendorKey string) (*model.VendorProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.Err != nil {
		return nil, p.Err
	}
	profile, ok := p.profiles[vendorKey]
	if !ok {
		return nil, nil //nolint:nilnil // unknown vendor is a valid result
	}
	return &profile, nil
}

// EstablishedVendor returns a profile for a long-standing vendor with full
// contact details on file.
func EstablishedVendor(vendorKey string) model.VendorProfile {
	return model.VendorProfile{
		VendorKey:         vendorKey,
		TotalInvoiceCount: 50,
		HasTaxID:          true,
		HasAddress:        true,
		RegistryChecked:   true,
		Registered:        true,
		Source:            model.SourceManual,
	}
}

// BaselineOf builds a baseline with the given sample count, mean, and sample
// standard deviation.
func BaselineOf(vendorKey, category string, count int, mean, stddev float64) model.VendorBaseline {
	m2 := 0.0
	if count > 1 {
		m2 = stddev * stddev * float64(count-1)
	}
	return model.VendorBaseline{
		VendorKey: vendorKey,
		Category:  category,
		Count:     count,
		Mean:      mean,
		M2:        m2,
	}
}
