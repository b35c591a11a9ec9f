package storage

import (
	"fmt"
	"sync"
)

// MemoryStore keeps the latest snapshot per series in process memory.
// It is safe for concurrent use. Contents are lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

// Put replaces the stored snapshot for s.Series.
func (m *MemoryStore) Put(s Snapshot) error {
	if s.Series == "" {
		return fmt.Errorf("series cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.Series] = cloneSnapshot(s)
	return nil
}

// GetLatest returns the stored snapshot for series.
func (m *MemoryStore) GetLatest(series string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[series]
	if !ok {
		return Snapshot{}, false, nil
	}
	return cloneSnapshot(s), true, nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	points := make([]Point, len(s.Points))
	copy(points, s.Points)
	s.Points = points
	return s
}
