package memory

import (
	"context"
	"sort"
	"sync"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// JobStore is an in-memory implementation of storage.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Job // keyed by job id
}

// NewJobStore creates a new in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		data: make(map[string]*domain.Job),
	}
}

// UpsertBulk writes the latest state of the given jobs atomically.
func (s *JobStore) UpsertBulk(_ context.Context, jobs []domain.Job) error {
	for i := range jobs {
		if jobs[i].ID == "" || !jobs[i].State.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range jobs {
		s.data[jobs[i].ID] = jobs[i].Clone()
	}
	return nil
}

// GetByID retrieves a job. Returns ErrNotFound if not exists.
func (s *JobStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return j.Clone(), nil
}

func (s *JobStore) sorted(keep func(*domain.Job) bool) []domain.Job {
	var result []domain.Job
	for _, j := range s.data {
		if keep(j) {
			result = append(result, *j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Seq < result[k].Seq })
	return result
}

// GetByOwner returns the owner's jobs ordered by seq ASC.
func (s *JobStore) GetByOwner(_ context.Context, owner string) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(j *domain.Job) bool { return j.Owner == owner }), nil
}

// List returns all jobs ordered by seq ASC.
func (s *JobStore) List(_ context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(*domain.Job) bool { return true }), nil
}

// Compile-time interface check.
var _ storage.JobStore = (*JobStore)(nil)
