package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// UpsertBulk writes the latest balances of the given accounts atomically.
// created_at is kept from the first write.
func (s *AccountStore) UpsertBulk(ctx context.Context, accounts []domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	query := `
		INSERT INTO accounts (id, available, locked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			available = EXCLUDED.available,
			locked = EXCLUDED.locked,
			updated_at = EXCLUDED.updated_at
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, a := range accounts {
			if a.ID == "" {
				return fmt.Errorf("%w: empty account id", storage.ErrInvalidInput)
			}
			_, err := tx.Exec(ctx, query,
				a.ID, int64(a.Available), int64(a.Locked), a.CreatedAt, a.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert account %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// GetByID retrieves an account. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, available, locked, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	a, err := scanAccount(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// List returns all accounts ordered by id.
func (s *AccountStore) List(ctx context.Context) ([]domain.Account, error) {
	query := `
		SELECT id, available, locked, created_at, updated_at
		FROM accounts
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var result []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return result, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a                 domain.Account
		available, locked int64
	)
	if err := row.Scan(&a.ID, &available, &locked, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Available = domain.Amount(available)
	a.Locked = domain.Amount(locked)
	return &a, nil
}
