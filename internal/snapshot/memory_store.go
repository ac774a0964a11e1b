package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
)

// MemoryStore is a process-local archive, used for dry-run collection and tests
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]map[time.Time]*contracts.Snapshot
	unusual   map[string]map[time.Time][]contracts.UnusualActivityRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]map[time.Time]*contracts.Snapshot),
		unusual:   make(map[string]map[time.Time][]contracts.UnusualActivityRecord),
	}
}

// GetSnapshot implements Store
func (m *MemoryStore) GetSnapshot(ctx context.Context, symbol string, date time.Time) (*contracts.Snapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	day := contracts.Day(date)

	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[sym][day]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", contracts.ErrSnapshotNotFound, sym, day.Format(contracts.DateLayout))
	}
	return snap, nil
}

// LatestSnapshot implements Store
func (m *MemoryStore) LatestSnapshot(ctx context.Context, symbol string) (*contracts.Snapshot, error) {
	dates, err := m.AvailableDates(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no snapshots for %s", contracts.ErrSnapshotNotFound, symbol)
	}
	return m.GetSnapshot(ctx, symbol, dates[0])
}

// Range implements Store
func (m *MemoryStore) Range(ctx context.Context, symbol string, start, end time.Time) ([]*contracts.Snapshot, error) {
	dates, err := m.AvailableDates(ctx, symbol)
	if err != nil {
		return nil, err
	}
	sym, _ := NormalizeSymbol(symbol)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contracts.Snapshot
	for i := len(dates) - 1; i >= 0; i-- {
		if inRange(dates[i], start, end) {
			out = append(out, m.snapshots[sym][dates[i]])
		}
	}
	return out, nil
}

// UnusualActivity implements Store
func (m *MemoryStore) UnusualActivity(ctx context.Context, symbol string, date time.Time) ([]contracts.UnusualActivityRecord, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.unusual[sym][contracts.Day(date)]
	out := make([]contracts.UnusualActivityRecord, len(records))
	copy(out, records)
	return out, nil
}

// AvailableDates implements Store
func (m *MemoryStore) AvailableDates(ctx context.Context, symbol string) ([]time.Time, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	dates := make([]time.Time, 0, len(m.snapshots[sym]))
	for d := range m.snapshots[sym] {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// SaveSnapshot implements Writer
func (m *MemoryStore) SaveSnapshot(ctx context.Context, snap *contracts.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	if err := ValidateUnusual(snap.Unusual); err != nil {
		return err
	}
	sym, err := NormalizeSymbol(snap.Symbol)
	if err != nil {
		return err
	}
	day := contracts.Day(snap.Date)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.snapshots[sym][day]; exists {
		return fmt.Errorf("%w: %s %s", contracts.ErrSnapshotExists, sym, day.Format(contracts.DateLayout))
	}
	if m.snapshots[sym] == nil {
		m.snapshots[sym] = make(map[time.Time]*contracts.Snapshot)
		m.unusual[sym] = make(map[time.Time][]contracts.UnusualActivityRecord)
	}

	stored := *snap
	stored.Unusual = nil
	m.snapshots[sym][day] = &stored
	m.unusual[sym][day] = append([]contracts.UnusualActivityRecord(nil), snap.Unusual...)
	return nil
}
