package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/project-tktt/go-scraper/internal/domain"
)

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*domain.StoredSnapshot
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*domain.StoredSnapshot)}
}

func (m *MemoryStore) Save(ctx context.Context, s *domain.StoredSnapshot) (string, error) {
	key := s.Key()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; ok {
		return "", ErrExists
	}
	m.items[key] = copySnapshot(s)
	return key, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*domain.StoredSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copySnapshot(s), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*domain.StoredSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*domain.StoredSnapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, copySnapshot(m.items[k]))
	}
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	m.items = make(map[string]*domain.StoredSnapshot)
	return n, nil
}

func copySnapshot(s *domain.StoredSnapshot) *domain.StoredSnapshot {
	return &domain.StoredSnapshot{
		ExtractionResult: *s.ExtractionResult.Clone(),
		Timestamp:        s.Timestamp,
		SourceURL:        s.SourceURL,
	}
}
