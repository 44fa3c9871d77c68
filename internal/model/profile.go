package model

import "time"

// ProfileSource indicates how a vendor profile was created.
type ProfileSource string

const (
	// SourceAuto indicates the profile was derived from imported invoices.
	SourceAuto ProfileSource = "AUTO"
	// SourceManual indicates the profile was edited via the CLI.
	SourceManual ProfileSource = "MANUAL"
)

// VendorProfile is what the engine knows about a vendor's legitimacy.
type VendorProfile struct {
	LastUpdated       time.Time
	VendorKey         string
	DisplayName       string
	Source            ProfileSource
	TotalInvoiceCount int
	HasTaxID          bool
	HasAddress        bool
	// RegistryChecked is true once the vendor was looked up in a business
	// registry; Registered is only meaningful when it is set.
	RegistryChecked bool
	Registered      bool
}

// Unregistered reports whether a registry lookup found no entry.
func (p *VendorProfile) Unregistered() bool {
	return p != nil && p.RegistryChecked && !p.Registered
}
