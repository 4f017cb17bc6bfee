// ABOUTME: MemoryStore is the in-process secondary store read by views and exporters.
// ABOUTME: Consumers get a Reader; only the Synchronizer holds the setters.
package replica

import (
	"sync"

	"github.com/2389-research/kanbansync/board/core"
)

// Reader is the read-only face of the secondary store.
type Reader interface {
	Snapshot() core.Snapshot
	Version() uint64
}

// MemoryStore holds the last mirrored snapshot. Each setter bumps Version
// and counts the write per field.
type MemoryStore struct {
	mu      sync.RWMutex
	snap    core.Snapshot
	version uint64
	writes  map[Field]int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snap: core.Snapshot{
			Columns:          core.BoardMap{},
			FinalizedColumns: core.BoardMap{},
			Order:            []string{},
			FinalizedOrder:   []string{},
		},
		writes: make(map[Field]int),
	}
}

func (m *MemoryStore) set(f Field, fn func(*core.Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.snap)
	m.version++
	m.writes[f]++
}

func (m *MemoryStore) SetColumns(v core.BoardMap) {
	m.set(FieldColumns, func(s *core.Snapshot) { s.Columns = v })
}

func (m *MemoryStore) SetOrder(v []string) {
	m.set(FieldOrder, func(s *core.Snapshot) { s.Order = v })
}

func (m *MemoryStore) SetFinalizedColumns(v core.BoardMap) {
	m.set(FieldFinalizedColumns, func(s *core.Snapshot) { s.FinalizedColumns = v })
}

func (m *MemoryStore) SetFinalizedOrder(v []string) {
	m.set(FieldFinalizedOrder, func(s *core.Snapshot) { s.FinalizedOrder = v })
}

func (m *MemoryStore) SetCurrentView(v core.View) {
	m.set(FieldCurrentView, func(s *core.Snapshot) { s.CurrentView = v })
}

func (m *MemoryStore) SetSearchQuery(v string) {
	m.set(FieldSearchQuery, func(s *core.Snapshot) { s.SearchQuery = v })
}

// Snapshot returns a deep copy of the mirrored state.
func (m *MemoryStore) Snapshot() core.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return core.Snapshot{
		Columns:          m.snap.Columns.Clone(),
		Order:            append([]string{}, m.snap.Order...),
		FinalizedColumns: m.snap.FinalizedColumns.Clone(),
		FinalizedOrder:   append([]string{}, m.snap.FinalizedOrder...),
		CurrentView:      m.snap.CurrentView,
		SearchQuery:      m.snap.SearchQuery,
	}
}

// Version counts setter calls since creation.
func (m *MemoryStore) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Writes returns how many times f has been written.
func (m *MemoryStore) Writes(f Field) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes[f]
}
