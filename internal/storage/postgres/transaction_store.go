package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	seq, timestamp, kind, account, counterparty, amount,
	burn_amount, treasury_amount, available_after, locked_after,
	counterparty_available_after, reason
`

// InsertBulk appends transactions atomically. Fails entire batch on any duplicate seq.
func (s *TransactionStore) InsertBulk(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, t := range txs {
			if t == nil || t.Seq <= 0 || !t.Kind.IsValid() {
				return storage.ErrInvalidInput
			}
			_, err := tx.Exec(ctx, query,
				t.Seq, t.Timestamp, string(t.Kind), t.Account, t.Counterparty, int64(t.Amount),
				int64(t.BurnAmount), int64(t.TreasuryAmount), int64(t.AvailableAfter), int64(t.LockedAfter),
				int64(t.CounterpartyAvailableAfter), t.Reason,
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert transaction %d: %w", t.Seq, err)
			}
		}
		return nil
	})
}

// GetByAccount returns the last limit transactions involving account, ordered by seq ASC.
func (s *TransactionStore) GetByAccount(ctx context.Context, account string, limit int) ([]*domain.Transaction, error) {
	if account == "" {
		return nil, nil
	}

	query := `
		SELECT ` + transactionColumns + ` FROM (
			SELECT ` + transactionColumns + `
			FROM transactions
			WHERE account = $1 OR (kind = 'transfer' AND counterparty = $1)
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`

	var lim *int64
	if limit > 0 {
		l := int64(limit)
		lim = &l
	}

	rows, err := s.pool.Query(ctx, query, account, lim)
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetBySeqRange returns transactions with seq in [from, to] (inclusive), ordered by seq ASC.
func (s *TransactionStore) GetBySeqRange(ctx context.Context, from, to int64) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE seq >= $1 AND seq <= $2
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query by seq range: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// List returns the whole log ordered by seq ASC.
func (s *TransactionStore) List(ctx context.Context) ([]*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	for rows.Next() {
		var (
			t                                     domain.Transaction
			kind                                  string
			amount, burn, treasury, avail, locked int64
			cpAvail                               int64
		)
		err := rows.Scan(
			&t.Seq, &t.Timestamp, &kind, &t.Account, &t.Counterparty, &amount,
			&burn, &treasury, &avail, &locked,
			&cpAvail, &t.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = domain.TxKind(kind)
		t.Amount = domain.Amount(amount)
		t.BurnAmount = domain.Amount(burn)
		t.TreasuryAmount = domain.Amount(treasury)
		t.AvailableAfter = domain.Amount(avail)
		t.LockedAfter = domain.Amount(locked)
		t.CounterpartyAvailableAfter = domain.Amount(cpAvail)
		result = append(result, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return result, nil
}
