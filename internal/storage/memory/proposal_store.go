package memory

import (
	"context"
	"sort"
	"sync"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// ProposalStore is an in-memory implementation of storage.ProposalStore.
type ProposalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Proposal // keyed by proposal id
}

// NewProposalStore creates a new in-memory proposal store.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{
		data: make(map[string]*domain.Proposal),
	}
}

// UpsertBulk writes the latest state of the given proposals atomically.
func (s *ProposalStore) UpsertBulk(_ context.Context, proposals []domain.Proposal) error {
	for i := range proposals {
		if proposals[i].ID == "" || !proposals[i].Status.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range proposals {
		s.data[proposals[i].ID] = proposals[i].Clone()
	}
	return nil
}

// GetByID retrieves a proposal. Returns ErrNotFound if not exists.
func (s *ProposalStore) GetByID(_ context.Context, id string) (*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns all proposals ordered by created_at ASC, id ASC.
func (s *ProposalStore) List(_ context.Context) ([]domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Proposal, 0, len(s.data))
	for _, p := range s.data {
		result = append(result, *p.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Compile-time interface check.
var _ storage.ProposalStore = (*ProposalStore)(nil)
