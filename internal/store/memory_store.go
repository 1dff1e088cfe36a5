package store

import (
	"sync"

	"inkforge/pkg/domain"
)

// MemoryStore keeps creations in-process. Used by tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items []domain.Creation
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveCreation appends a creation record.
func (m *MemoryStore) SaveCreation(c domain.Creation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, c)
	return nil
}

// ListCreationsByUser returns a user's creations, newest first.
func (m *MemoryStore) ListCreationsByUser(userID string) ([]domain.Creation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Creation, 0, len(m.items))
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].UserID == userID {
			res = append(res, m.items[i])
		}
	}
	return res, nil
}

// ListPublishedCreations returns published image creations, newest first.
func (m *MemoryStore) ListPublishedCreations() ([]domain.Creation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Creation, 0, len(m.items))
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].Publish && m.items[i].Type == domain.TypeImage {
			res = append(res, m.items[i])
		}
	}
	return res, nil
}

// Creations returns a copy of all stored rows in insertion order.
func (m *MemoryStore) Creations() []domain.Creation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Creation, len(m.items))
	copy(out, m.items)
	return out
}
