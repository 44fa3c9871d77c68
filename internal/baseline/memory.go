package baseline

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/invoice-sentinel/internal/model"
	"github.com/Veraticus/invoice-sentinel/internal/service"
)

var _ service.BaselineStore = (*MemoryStore)(nil)

// MemoryStore keeps baselines in process memory. Each key maps to an
// immutable snapshot; an update builds a new snapshot under the key lock and
// swaps the pointer, so readers never see a half-applied update and never
// wait on a writer.
type MemoryStore struct {
	locks     *KeyedMutex
	baselines map[string]*model.VendorBaseline
	totals    map[string]int
	mu        sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:     NewKeyedMutex(),
		baselines: make(map[string]*model.VendorBaseline),
		totals:    make(map[string]int),
	}
}

// Load replaces the store contents, typically with baselines read from a
// persistent store at startup. Vendor totals are rebuilt from the counts.
func (s *MemoryStore) Load(baselines []model.VendorBaseline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baselines = make(map[string]*model.VendorBaseline, len(baselines))
	s.totals = make(map[string]int)
	for _, b := range baselines {
		snapshot := b
		s.baselines[b.Key()] = &snapshot
		s.totals[b.VendorKey] += b.Count
	}
}

// Baseline implements service.BaselineLookup.
func (s *MemoryStore) Baseline(ctx context.Context, vendorKey, category string) (*model.VendorBaseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	snapshot, ok := s.baselines[model.BaselineKey(vendorKey, category)]
	s.mu.RUnlock()

	if !ok {
		return nil, nil //nolint:nilnil // absent baseline is a valid result
	}
	out := *snapshot
	return &out, nil
}

// UpdateBaseline implements service.BaselineUpdater.
func (s *MemoryStore) UpdateBaseline(ctx context.Context, vendorKey, category string, amount float64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := model.BaselineKey(vendorKey, category)
	unlock := s.locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	current, ok := s.baselines[key]
	s.mu.RUnlock()

	base := model.VendorBaseline{VendorKey: vendorKey, Category: category}
	if ok {
		base = *current
	}
	next := base.Observe(amount, at)

	s.mu.Lock()
	s.totals[vendorKey]++
	next.VendorTotal = s.totals[vendorKey]
	s.baselines[key] = &next
	s.mu.Unlock()

	return nil
}

// ListBaselines returns every baseline ordered by vendor key and category.
func (s *MemoryStore) ListBaselines(ctx context.Context) ([]model.VendorBaseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]model.VendorBaseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		out = append(out, *b)
	}
	s.mu.RUnlock()

	sortBaselines(out)
	return out, nil
}

// VendorProfile implements service.VendorProfileLookup with invoice counts
// only; contact and registry details are unknown to this store.
func (s *MemoryStore) VendorProfile(ctx context.Context, vendorKey string) (*model.VendorProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	total, ok := s.totals[vendorKey]
	s.mu.RUnlock()

	if !ok {
		return nil, nil //nolint:nilnil // unknown vendor is a valid result
	}
	return &model.VendorProfile{
		VendorKey:         vendorKey,
		TotalInvoiceCount: total,
		Source:            model.SourceAuto,
	}, nil
}

func sortBaselines(baselines []model.VendorBaseline) {
	slices.SortFunc(baselines, func(a, b model.VendorBaseline) int {
		if c := cmp.Compare(a.VendorKey, b.VendorKey); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
}
