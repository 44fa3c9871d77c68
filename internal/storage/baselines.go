package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/invoice-sentinel/internal/model"
)

const baselineColumns = `vendor_key, category, count, mean, m2, first_seen, last_updated, vendor_total`

// Baseline implements service.BaselineLookup.
func (s *SQLiteStorage) Baseline(ctx context.Context, vendorKey, category string) (*model.VendorBaseline, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getBaselineTx(ctx, s.db, vendorKey, category)
}

func (s *SQLiteStorage) getBaselineTx(ctx context.Context, q queryable, vendorKey, category string) (*model.VendorBaseline, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+baselineColumns+`
		FROM baselines
		WHERE vendor_key = ? AND category = ?
	`, vendorKey, category)

	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absent baseline is a valid result
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", classifyError(err))
	}
	return b, nil
}

// UpdateBaseline implements service.BaselineUpdater. The read, the update,
// and the write happen in one SQL transaction while the key lock is held, so
// concurrent approvals for the same vendor and category are applied one at a
// time and none is lost.
func (s *SQLiteStorage) UpdateBaseline(ctx context.Context, vendorKey, category string, amount float64, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(vendorKey, "vendorKey"); err != nil {
		return err
	}

	unlock := s.baselineLocks.Lock(model.BaselineKey(vendorKey, category))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyError(err))
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.getBaselineTx(ctx, tx, vendorKey, category)
	if err != nil {
		return err
	}
	base := model.VendorBaseline{VendorKey: vendorKey, Category: category}
	if current != nil {
		base = *current
	}
	next := base.Observe(amount, at)

	var otherCategories int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM baselines WHERE vendor_key = ? AND category != ?
	`, vendorKey, category).Scan(&otherCategories)
	if err != nil {
		return fmt.Errorf("failed to total vendor baselines: %w", classifyError(err))
	}
	next.VendorTotal = otherCategories + next.Count

	_, err = tx.ExecContext(ctx, `
		INSERT INTO baselines (`+baselineColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(vendor_key, category) DO UPDATE SET
			count = excluded.count,
			mean = excluded.mean,
			m2 = excluded.m2,
			first_seen = excluded.first_seen,
			last_updated = excluded.last_updated,
			vendor_total = excluded.vendor_total
	`,
		next.VendorKey,
		next.Category,
		next.Count,
		next.Mean,
		next.M2,
		next.FirstSeen.UTC(),
		next.LastUpdated.UTC(),
		next.VendorTotal,
	)
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", classifyError(err))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE baselines SET vendor_total = ? WHERE vendor_key = ?
	`, next.VendorTotal, vendorKey); err != nil {
		return fmt.Errorf("failed to update vendor total: %w", classifyError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit baseline: %w", classifyError(err))
	}
	return nil
}

// ListBaselines returns every baseline ordered by vendor key and category.
func (s *SQLiteStorage) ListBaselines(ctx context.Context) ([]model.VendorBaseline, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+baselineColumns+`
		FROM baselines
		ORDER BY vendor_key, category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query baselines: %w", classifyError(err))
	}
	defer func() { _ = rows.Close() }()

	baselines := []model.VendorBaseline{}
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		baselines = append(baselines, *b)
	}

	return baselines, rows.Err()
}

func scanBaseline(row rowScanner) (*model.VendorBaseline, error) {
	var (
		b                     model.VendorBaseline
		firstSeen, lastUpdate sql.NullString
	)
	err := row.Scan(
		&b.VendorKey,
		&b.Category,
		&b.Count,
		&b.Mean,
		&b.M2,
		&firstSeen,
		&lastUpdate,
		&b.VendorTotal,
	)
	if err != nil {
		return nil, err
	}

	if firstSeen.Valid {
		if b.FirstSeen, err = parseTimestamp(firstSeen.String); err != nil {
			return nil, err
		}
	}
	if lastUpdate.Valid {
		if b.LastUpdated, err = parseTimestamp(lastUpdate.String); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
