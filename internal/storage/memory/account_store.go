package memory

import (
	"context"
	"sort"
	"sync"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.RWMutex
	data map[string]domain.Account // keyed by account id
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[string]domain.Account),
	}
}

// UpsertBulk writes the latest balances of the given accounts atomically.
func (s *AccountStore) UpsertBulk(_ context.Context, accounts []domain.Account) error {
	for _, a := range accounts {
		if a.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range accounts {
		s.data[a.ID] = a
	}
	return nil
}

// GetByID retrieves an account. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

// List returns all accounts ordered by id.
func (s *AccountStore) List(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Account, 0, len(s.data))
	for _, a := range s.data {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)
