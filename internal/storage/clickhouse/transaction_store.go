package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// TransactionStore implements storage.TransactionStore using ClickHouse.
// It mirrors the ledger log for reporting; the system of record stays in
// the primary store.
type TransactionStore struct {
	conn *Conn
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(conn *Conn) *TransactionStore {
	return &TransactionStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	seq, timestamp_ms, kind, account, counterparty, amount,
	burn_amount, treasury_amount, available_after, locked_after,
	counterparty_available_after, reason
`

// InsertBulk appends transactions. Fails entire batch on any duplicate seq.
func (s *TransactionStore) InsertBulk(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, len(txs))
	for _, tx := range txs {
		if tx == nil || tx.Seq <= 0 || !tx.Kind.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[tx.Seq]; exists {
			return storage.ErrDuplicateKey
		}
		seen[tx.Seq] = struct{}{}
	}

	// Check for duplicates against existing rows
	exists, err := s.anyExists(ctx, txs)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO transactions (`+transactionColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tx := range txs {
		err = batch.Append(
			uint64(tx.Seq), uint64(tx.Timestamp), string(tx.Kind), tx.Account, tx.Counterparty, int64(tx.Amount),
			int64(tx.BurnAmount), int64(tx.TreasuryAmount), int64(tx.AvailableAfter), int64(tx.LockedAfter),
			int64(tx.CounterpartyAvailableAfter), tx.Reason,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAccount returns the last limit transactions involving account, ordered by seq ASC.
func (s *TransactionStore) GetByAccount(ctx context.Context, account string, limit int) ([]*domain.Transaction, error) {
	if account == "" {
		return nil, nil
	}

	inner := `
		SELECT ` + transactionColumns + `
		FROM transactions FINAL
		WHERE account = ? OR (kind = 'transfer' AND counterparty = ?)
		ORDER BY seq DESC
	`
	args := []interface{}{account, account}
	if limit > 0 {
		inner += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, `SELECT * FROM (`+inner+`) ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetBySeqRange returns transactions with seq in [from, to] (inclusive), ordered by seq ASC.
func (s *TransactionStore) GetBySeqRange(ctx context.Context, from, to int64) ([]*domain.Transaction, error) {
	if to < 1 || from > to {
		return nil, nil
	}
	if from < 1 {
		from = 1
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions FINAL
		WHERE seq >= ? AND seq <= ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, uint64(from), uint64(to))
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
		FROM transactions FINAL
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// DailyFlow is the token flow of one transaction kind over one UTC day.
type DailyFlow struct {
	Day        time.Time
	Kind       domain.TxKind
	TxCount    uint64
	Amount     domain.Amount
	Burned     domain.Amount
	ToTreasury domain.Amount
}

// DailyFlows returns per-day, per-kind totals for days in [from, to], ordered by day then kind.
func (s *TransactionStore) DailyFlows(ctx context.Context, from, to time.Time) ([]DailyFlow, error) {
	query := `
		SELECT day, kind, tx_count, amount, burned, to_treasury
		FROM daily_flows
		WHERE day >= ? AND day <= ?
		ORDER BY day ASC, kind ASC
	`

	rows, err := s.conn.Query(ctx, query, from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query daily flows: %w", err)
	}
	defer rows.Close()

	var result []DailyFlow
	for rows.Next() {
		var (
			f                          DailyFlow
			kind                       string
			amount, burned, toTreasury int64
		)
		if err := rows.Scan(&f.Day, &kind, &f.TxCount, &amount, &burned, &toTreasury); err != nil {
			return nil, fmt.Errorf("scan daily flow row: %w", err)
		}
		f.Kind = domain.TxKind(kind)
		f.Amount = domain.Amount(amount)
		f.Burned = domain.Amount(burned)
		f.ToTreasury = domain.Amount(toTreasury)
		result = append(result, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily flow rows: %w", err)
	}

	return result, nil
}

// anyExists reports whether any seq of txs is already stored.
func (s *TransactionStore) anyExists(ctx context.Context, txs []*domain.Transaction) (bool, error) {
	placeholders := make([]string, len(txs))
	args := make([]interface{}, len(txs))
	for i, tx := range txs {
		placeholders[i] = "?"
		args[i] = uint64(tx.Seq)
	}

	query := `SELECT count(*) FROM transactions WHERE seq IN (` + strings.Join(placeholders, ", ") + `)`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanTransactions scans multiple rows into a slice.
func scanTransactions(rows driver.Rows) ([]*domain.Transaction, error) {
	var result []*domain.Transaction

	for rows.Next() {
		var (
			tx                                    domain.Transaction
			seq, ts                               uint64
			kind                                  string
			amount, burn, treasury, avail, locked int64
			cpAvail                               int64
		)
		err := rows.Scan(
			&seq, &ts, &kind, &tx.Account, &tx.Counterparty, &amount,
			&burn, &treasury, &avail, &locked,
			&cpAvail, &tx.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		tx.Seq = int64(seq)
		tx.Timestamp = int64(ts)
		tx.Kind = domain.TxKind(kind)
		tx.Amount = domain.Amount(amount)
		tx.BurnAmount = domain.Amount(burn)
		tx.TreasuryAmount = domain.Amount(treasury)
		tx.AvailableAfter = domain.Amount(avail)
		tx.LockedAfter = domain.Amount(locked)
		tx.CounterpartyAvailableAfter = domain.Amount(cpAvail)
		result = append(result, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return result, nil
}
