package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/invoice-sentinel/internal/model"
)

// Profiles combine what was entered for a vendor with what its invoices show.
// Rejected invoices do not count towards a vendor's history.
const profileSelect = `
	SELECT
		k.vendor_key,
		COALESCE(NULLIF(p.display_name, ''), i.vendor_name, ''),
		COALESCE(p.source, 'AUTO'),
		COALESCE(p.has_tax_id, 0) OR COALESCE(i.has_tax_id, 0),
		COALESCE(p.has_address, 0) OR COALESCE(i.has_address, 0),
		COALESCE(p.registry_checked, 0),
		COALESCE(p.registered, 0),
		COALESCE(i.invoice_count, 0),
		p.last_updated
	FROM (
		SELECT vendor_key FROM vendor_profiles
		UNION
		SELECT vendor_key FROM invoices
	) k
	LEFT JOIN vendor_profiles p ON p.vendor_key = k.vendor_key
	LEFT JOIN (
		SELECT
			vendor_key,
			MAX(vendor_name) AS vendor_name,
			COUNT(*) AS invoice_count,
			MAX(vendor_tax_id != '') AS has_tax_id,
			MAX(vendor_address != '') AS has_address
		FROM invoices
		WHERE outcome != 'rejected'
		GROUP BY vendor_key
	) i ON i.vendor_key = k.vendor_key`

// VendorProfile implements service.VendorProfileLookup.
func (s *SQLiteStorage) VendorProfile(ctx context.Context, vendorKey string) (*model.VendorProfile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return nil, err
	}

	// Check cache first
	if profile := s.getCachedProfile(vendorKey); profile != nil {
		out := *profile
		return &out, nil
	}

	row := s.db.QueryRowContext(ctx, profileSelect+` WHERE k.vendor_key = ?`, vendorKey)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // unknown vendor is a valid result
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor profile: %w", classifyError(err))
	}

	// Update cache
	s.cacheProfile(profile)

	out := *profile
	return &out, nil
}

// SaveVendorProfile saves or updates the manually maintained part of a vendor
// profile. TotalInvoiceCount is derived from stored invoices and ignored.
func (s *SQLiteStorage) SaveVendorProfile(ctx context.Context, profile *model.VendorProfile) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProfile(profile); err != nil {
		return err
	}

	if profile.LastUpdated.IsZero() {
		profile.LastUpdated = s.now()
	}
	if profile.Source == "" {
		profile.Source = model.SourceAuto
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_profiles (
			vendor_key, display_name, source, has_tax_id, has_address,
			registry_checked, registered, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vendor_key) DO UPDATE SET
			display_name = excluded.display_name,
			source = excluded.source,
			has_tax_id = excluded.has_tax_id,
			has_address = excluded.has_address,
			registry_checked = excluded.registry_checked,
			registered = excluded.registered,
			last_updated = excluded.last_updated
	`,
		profile.VendorKey,
		profile.DisplayName,
		string(profile.Source),
		profile.HasTaxID,
		profile.HasAddress,
		profile.RegistryChecked,
		profile.Registered,
		profile.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save vendor profile: %w", classifyError(err))
	}

	// The stored profile merges invoice data, so drop rather than overwrite.
	s.cacheMutex.Lock()
	delete(s.profileCache, profile.VendorKey)
	s.cacheMutex.Unlock()

	return nil
}

// GetAllVendorProfiles returns a profile for every vendor that has either a
// saved profile or stored invoices, ordered by vendor key.
func (s *SQLiteStorage) GetAllVendorProfiles(ctx context.Context) ([]model.VendorProfile, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, profileSelect+` ORDER BY k.vendor_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendor profiles: %w", classifyError(err))
	}
	defer func() { _ = rows.Close() }()

	var profiles []model.VendorProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor profile: %w", err)
		}
		profiles = append(profiles, *profile)
	}

	return profiles, rows.Err()
}

func scanProfile(row rowScanner) (*model.VendorProfile, error) {
	var (
		profile     model.VendorProfile
		source      string
		lastUpdated sql.NullString
	)
	err := row.Scan(
		&profile.VendorKey,
		&profile.DisplayName,
		&source,
		&profile.HasTaxID,
		&profile.HasAddress,
		&profile.RegistryChecked,
		&profile.Registered,
		&profile.TotalInvoiceCount,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}
	profile.Source = model.ProfileSource(source)

	if lastUpdated.Valid {
		profile.LastUpdated, err = parseTimestamp(lastUpdated.String)
		if err != nil {
			return nil, err
		}
	}
	return &profile, nil
}

// getCachedProfile retrieves a vendor profile from the cache.
func (s *SQLiteStorage) getCachedProfile(vendorKey string) *model.VendorProfile {
	s.cacheMutex.RLock()

	if s.now().After(s.cacheExpiry) {
		// Cache expired, needs to be cleared
		// Upgrade to write lock
		s.cacheMutex.RUnlock()
		s.cacheMutex.Lock()
		defer s.cacheMutex.Unlock()

		// Double-check after acquiring write lock
		if s.now().After(s.cacheExpiry) {
			s.profileCache = make(map[string]*model.VendorProfile)
		}
		return nil
	}

	profile := s.profileCache[vendorKey]
	s.cacheMutex.RUnlock()
	return profile
}

// cacheProfile adds a vendor profile to the cache.
func (s *SQLiteStorage) cacheProfile(profile *model.VendorProfile) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if len(s.profileCache) == 0 {
		// Set cache expiry on first entry
		s.cacheExpiry = s.now().Add(profileCacheTTL)
	}
	s.profileCache[profile.VendorKey] = profile
}

// invalidateProfileCache drops every cached profile.
func (s *SQLiteStorage) invalidateProfileCache() {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	s.profileCache = make(map[string]*model.VendorProfile)
}

// WarmProfileCache loads all vendor profiles into the cache.
func (s *SQLiteStorage) WarmProfileCache(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	profiles, err := s.GetAllVendorProfiles(ctx)
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.profileCache = make(map[string]*model.VendorProfile)
	for i := range profiles {
		s.profileCache[profiles[i].VendorKey] = &profiles[i]
	}

	s.cacheExpiry = s.now().Add(profileCacheTTL)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads a DATETIME column in any of the formats SQLite and
// the driver produce.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
