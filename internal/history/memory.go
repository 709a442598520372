package history

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds a MemoryStore created with a non-positive capacity.
const DefaultMemoryCapacity = 1000

// MemoryStore keeps runs in process memory. When full, the oldest run is
// dropped. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     []Run
	capacity int
}

// NewMemoryStore returns a store holding at most capacity runs.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (m *MemoryStore) Record(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.runs) == m.capacity {
		m.runs = append(m.runs[:0], m.runs[1:]...)
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]Run, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *MemoryStore) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	kept := m.runs[:0]
	var purged int64
	for _, r := range m.runs {
		if r.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	m.runs = kept
	return purged, nil
}

// Len returns the number of runs held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}
