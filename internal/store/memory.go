package store

import (
	"context"
	"sync"

	"shopsync/internal/model"
)

// MemoryStore keeps collections in process memory. Used for local
// development and tests; production deployments use RedisStore so
// sessions survive restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*model.Collection
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*model.Collection)}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string, kind model.Kind) (*model.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if col, ok := m.data[storeKey(sessionID, kind)]; ok {
		return col.Clone(), nil
	}
	return model.NewCollection(kind), nil
}

func (m *MemoryStore) Save(ctx context.Context, sessionID string, kind model.Kind, col *model.Collection) error {
	m.mu.Lock()
	m.data[storeKey(sessionID, kind)] = col.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string, kind model.Kind) error {
	m.mu.Lock()
	delete(m.data, storeKey(sessionID, kind))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func storeKey(sessionID string, kind model.Kind) string {
	return string(kind) + ":" + sessionID
}
