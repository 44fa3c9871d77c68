package model

import (
	"math"
	"time"
)

// VendorBaseline holds running amount statistics for one (vendor, category)
// pair, maintained with Welford's online algorithm.
//
// A baseline value is never modified in place: Observe returns a new
// value so stores can publish updates by replacing the whole record.
type VendorBaseline struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
	VendorKey   string    `json:"vendor_key"`
	Category    string    `json:"category"`
	Count       int       `json:"count"`
	Mean        float64   `json:"mean"`
	M2          float64   `json:"m2"`
	// VendorTotal is the number of approved invoices for the vendor across
	// all categories at the time of the last update.
	VendorTotal int `json:"vendor_total"`
}

// BaselineKey joins a vendor key and category into a single store key.
func BaselineKey(vendorKey, category string) string {
	return vendorKey + "|" + category
}

// Key returns the store key of the baseline.
func (b VendorBaseline) Key() string {
	return BaselineKey(b.VendorKey, b.Category)
}

// Observe returns the baseline updated with one more amount.
func (b VendorBaseline) Observe(amount float64, at time.Time) VendorBaseline {
	next := b
	next.Count++
	delta := amount - b.Mean
	next.Mean = b.Mean + delta/float64(next.Count)
	next.M2 = b.M2 + delta*(amount-next.Mean)
	if next.FirstSeen.IsZero() || (!at.IsZero() && at.Before(next.FirstSeen)) {
		next.FirstSeen = at
	}
	if at.After(next.LastUpdated) {
		next.LastUpdated = at
	}
	return next
}

// Variance returns the sample variance, or 0 with fewer than two samples.
func (b VendorBaseline) Variance() float64 {
	if b.Count < 2 {
		return 0
	}
	return b.M2 / float64(b.Count-1)
}

// StdDev returns the sample standard deviation.
func (b VendorBaseline) StdDev() float64 {
	return math.Sqrt(b.Variance())
}
