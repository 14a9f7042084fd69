package memory

import (
	"context"
	"sort"
	"sync"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
type TransactionStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.Transaction // keyed by seq
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		data: make(map[int64]*domain.Transaction),
	}
}

// InsertBulk appends transactions atomically. Fails entire batch on any duplicate seq.
func (s *TransactionStore) InsertBulk(_ context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: check for duplicates (existing + intra-batch)
	batch := make(map[int64]struct{}, len(txs))
	for _, tx := range txs {
		if tx == nil || tx.Seq <= 0 || !tx.Kind.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[tx.Seq]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[tx.Seq]; exists {
			return storage.ErrDuplicateKey
		}
		batch[tx.Seq] = struct{}{}
	}

	// Second pass: insert copies
	for _, tx := range txs {
		c := *tx
		s.data[tx.Seq] = &c
	}
	return nil
}

func (s *TransactionStore) sorted(keep func(*domain.Transaction) bool) []*domain.Transaction {
	var result []*domain.Transaction
	for _, tx := range s.data {
		if keep(tx) {
			c := *tx
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result
}

// GetByAccount returns the last limit transactions involving account, ordered by seq ASC.
func (s *TransactionStore) GetByAccount(_ context.Context, account string, limit int) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.sorted(func(tx *domain.Transaction) bool { return tx.Involves(account) })
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// GetBySeqRange returns transactions with seq in [from, to] (inclusive), ordered by seq ASC.
func (s *TransactionStore) GetBySeqRange(_ context.Context, from, to int64) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(func(tx *domain.Transaction) bool { return tx.Seq >= from && tx.Seq <= to }), nil
}

// List returns the whole log ordered by seq ASC.
func (s *TransactionStore) List(_ context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(func(*domain.Transaction) bool { return true }), nil
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)
