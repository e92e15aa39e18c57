package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory thread store for tests and examples.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]Checkpoint
	closed bool
}

// NewMemoryStore creates a new in-memory thread store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Checkpoint),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	cp, ok := m.data[threadID]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy the snapshot so callers can't mutate stored bytes.
	out := cp
	out.Snapshot = make([]byte, len(cp.Snapshot))
	copy(out.Snapshot, cp.Snapshot)
	return &out, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, threadID string, snapshot []byte, pendingStage string, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	current := int64(0)
	if cp, ok := m.data[threadID]; ok {
		current = cp.Version
	}
	if current != expectedVersion {
		return 0, ErrVersionConflict
	}

	stored := make([]byte, len(snapshot))
	copy(stored, snapshot)

	next := expectedVersion + 1
	m.data[threadID] = Checkpoint{
		ThreadID:     threadID,
		Version:      next,
		Snapshot:     stored,
		PendingStage: pendingStage,
		UpdatedAt:    time.Now().UTC(),
	}
	return next, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.data))
	for _, cp := range m.data {
		infos = append(infos, Info{
			ThreadID:     cp.ThreadID,
			Version:      cp.Version,
			PendingStage: cp.PendingStage,
			UpdatedAt:    cp.UpdatedAt,
			Size:         int64(len(cp.Snapshot)),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ThreadID < infos[j].ThreadID })
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
