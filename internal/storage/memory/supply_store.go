package memory

import (
	"context"
	"sync"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// SupplyStore is an in-memory implementation of storage.SupplyStore.
type SupplyStore struct {
	mu     sync.RWMutex
	supply *domain.Supply
}

// NewSupplyStore creates a new in-memory supply store.
func NewSupplyStore() *SupplyStore {
	return &SupplyStore{}
}

// Save replaces the stored supply.
func (s *SupplyStore) Save(_ context.Context, supply domain.Supply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := supply.Clone()
	s.supply = &c
	return nil
}

// Load returns the stored supply. Returns ErrNotFound if never saved.
func (s *SupplyStore) Load(_ context.Context) (*domain.Supply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.supply == nil {
		return nil, storage.ErrNotFound
	}
	c := s.supply.Clone()
	return &c, nil
}

// Compile-time interface check.
var _ storage.SupplyStore = (*SupplyStore)(nil)
