package registry

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/vendapro/vendapro-saas/platform/go/tenant"
)

// Memory is an in-memory Registry used by tests and local tooling.
type Memory struct {
	mu      sync.RWMutex
	byTaxID map[string]tenant.Record

	// Unavailable, when set, makes every call fail as if the master store
	// were unreachable.
	Unavailable bool
}

func NewMemory(records ...tenant.Record) *Memory {
	m := &Memory{byTaxID: make(map[string]tenant.Record, len(records))}
	for _, rec := range records {
		m.byTaxID[rec.TaxID] = rec
	}
	return m
}

// Put inserts or replaces a record, keyed by its normalized tax id.
func (m *Memory) Put(rec tenant.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTaxID[rec.TaxID] = rec
}

func (m *Memory) FindByTaxID(ctx context.Context, taxID string) (tenant.Record, error) {
	normalized, err := tenant.NormalizeTaxID(taxID)
	if err != nil {
		return tenant.Record{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return tenant.Record{}, tenant.ErrRegistryUnavailable
	}
	rec, ok := m.byTaxID[normalized]
	if !ok || rec.Status == tenant.StatusDisabled {
		return tenant.Record{}, tenant.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListActive(ctx context.Context) iter.Seq2[tenant.Record, error] {
	return func(yield func(tenant.Record, error) bool) {
		m.mu.RLock()
		if m.Unavailable {
			m.mu.RUnlock()
			yield(tenant.Record{}, tenant.ErrRegistryUnavailable)
			return
		}
		active := make([]tenant.Record, 0, len(m.byTaxID))
		for _, rec := range m.byTaxID {
			if rec.Status == tenant.StatusActive {
				active = append(active, rec)
			}
		}
		m.mu.RUnlock()

		sort.Slice(active, func(i, j int) bool { return active[i].TaxID < active[j].TaxID })
		for _, rec := range active {
			if !yield(rec, nil) {
				return
			}
		}
	}
}
