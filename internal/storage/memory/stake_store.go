package memory

import (
	"context"
	"sort"
	"sync"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// StakeStore is an in-memory implementation of storage.StakeStore.
type StakeStore struct {
	mu   sync.RWMutex
	data map[string]domain.StakePosition // keyed by account
}

// NewStakeStore creates a new in-memory stake store.
func NewStakeStore() *StakeStore {
	return &StakeStore{
		data: make(map[string]domain.StakePosition),
	}
}

// UpsertBulk writes the given positions atomically.
func (s *StakeStore) UpsertBulk(_ context.Context, positions []domain.StakePosition) error {
	for _, p := range positions {
		if p.Account == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range positions {
		s.data[p.Account] = p
	}
	return nil
}

// GetByAccount retrieves a position. Returns ErrNotFound if not exists.
func (s *StakeStore) GetByAccount(_ context.Context, account string) (*domain.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[account]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// List returns all positions ordered by account.
func (s *StakeStore) List(_ context.Context) ([]domain.StakePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StakePosition, 0, len(s.data))
	for _, p := range s.data {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Account < result[j].Account })
	return result, nil
}

// Compile-time interface check.
var _ storage.StakeStore = (*StakeStore)(nil)
