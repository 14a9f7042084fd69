package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// AccountStore implements storage.AccountStore on bbolt.
type AccountStore struct {
	db *DB
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db}
}

var _ storage.AccountStore = (*AccountStore)(nil)

// UpsertBulk writes the latest balances of the given accounts atomically.
// created_at is kept from the first write.
func (s *AccountStore) UpsertBulk(_ context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		for _, a := range accounts {
			if a.ID == "" {
				return fmt.Errorf("%w: empty account id", storage.ErrInvalidInput)
			}
			if prev := b.Get([]byte(a.ID)); prev != nil {
				var old domain.Account
				if err := json.Unmarshal(prev, &old); err != nil {
					return fmt.Errorf("decode account %s: %w", a.ID, err)
				}
				a.CreatedAt = old.CreatedAt
			}
			if err := put(b, []byte(a.ID), a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves an account. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByID(_ context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	if err := get(s.db.DB, bucketAccounts, []byte(id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns all accounts ordered by id.
func (s *AccountStore) List(_ context.Context) ([]domain.Account, error) {
	var result []domain.Account
	err := each(s.db.DB, bucketAccounts, func(a domain.Account) error {
		result = append(result, a)
		return nil
	})
	return result, err
}

// SupplyStore implements storage.SupplyStore on bbolt.
type SupplyStore struct {
	db *DB
}

// NewSupplyStore creates a new SupplyStore.
func NewSupplyStore(db *DB) *SupplyStore {
	return &SupplyStore{db: db}
}

var _ storage.SupplyStore = (*SupplyStore)(nil)

// Save replaces the stored supply.
func (s *SupplyStore) Save(_ context.Context, sup domain.Supply) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketSupply), supplyKey, sup)
	})
}

// Load returns the stored supply. Returns ErrNotFound if never saved.
func (s *SupplyStore) Load(_ context.Context) (*domain.Supply, error) {
	var sup domain.Supply
	if err := get(s.db.DB, bucketSupply, supplyKey, &sup); err != nil {
		return nil, err
	}
	return &sup, nil
}

// TransactionStore implements storage.TransactionStore on bbolt, keyed by seq.
type TransactionStore struct {
	db *DB
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(db *DB) *TransactionStore {
	return &TransactionStore{db: db}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// InsertBulk appends transactions atomically. Fails entire batch on any duplicate seq.
func (s *TransactionStore) InsertBulk(_ context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTransactions)
		for _, t := range txs {
			if t == nil || t.Seq <= 0 || !t.Kind.IsValid() {
				return storage.ErrInvalidInput
			}
			key := seqKey(t.Seq)
			if b.Get(key) != nil {
				return storage.ErrDuplicateKey
			}
			if err := put(b, key, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByAccount returns the last limit transactions involving account, ordered by seq ASC.
func (s *TransactionStore) GetByAccount(_ context.Context, account string, limit int) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTransactions).Cursor()
		for k, data := c.Last(); k != nil; k, data = c.Prev() {
			if limit > 0 && len(result) == limit {
				break
			}
			var t domain.Transaction
			if err := json.Unmarshal(data, &t); err != nil {
				return fmt.Errorf("decode transaction: %w", err)
			}
			if t.Involves(account) {
				result = append(result, &t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// GetBySeqRange returns transactions with seq in [from, to] (inclusive), ordered by seq ASC.
func (s *TransactionStore) GetBySeqRange(_ context.Context, from, to int64) ([]*domain.Transaction, error) {
	if from < 1 {
		from = 1
	}
	var result []*domain.Transaction
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTransactions).Cursor()
		for k, data := c.Seek(seqKey(from)); k != nil; k, data = c.Next() {
			var t domain.Transaction
			if err := json.Unmarshal(data, &t); err != nil {
				return fmt.Errorf("decode transaction: %w", err)
			}
			if t.Seq > to {
				break
			}
			result = append(result, &t)
		}
		return nil
	})
	return result, err
}

// List returns the whole log ordered by seq ASC.
func (s *TransactionStore) List(_ context.Context) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	err := each(s.db.DB, bucketTransactions, func(t domain.Transaction) error {
		result = append(result, &t)
		return nil
	})
	return result, err
}

// StakeStore implements storage.StakeStore on bbolt.
type StakeStore struct {
	db *DB
}

// NewStakeStore creates a new StakeStore.
func NewStakeStore(db *DB) *StakeStore {
	return &StakeStore{db: db}
}

var _ storage.StakeStore = (*StakeStore)(nil)

// UpsertBulk writes the given positions atomically.
func (s *StakeStore) UpsertBulk(_ context.Context, positions []domain.StakePosition) error {
	if len(positions) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketStakes)
		for _, p := range positions {
			if p.Account == "" {
				return fmt.Errorf("%w: empty stake account", storage.ErrInvalidInput)
			}
			if err := put(b, []byte(p.Account), p); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByAccount retrieves a position. Returns ErrNotFound if not exists.
func (s *StakeStore) GetByAccount(_ context.Context, account string) (*domain.StakePosition, error) {
	var p domain.StakePosition
	if err := get(s.db.DB, bucketStakes, []byte(account), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns all positions ordered by account.
func (s *StakeStore) List(_ context.Context) ([]domain.StakePosition, error) {
	var result []domain.StakePosition
	err := each(s.db.DB, bucketStakes, func(p domain.StakePosition) error {
		result = append(result, p)
		return nil
	})
	return result, err
}
