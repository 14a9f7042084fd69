// Package postgres is the PostgreSQL storage backend.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stakegate/internal/storage"
)

// Pool is the shared connection pool of every postgres store.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to dsn. Pool settings given in the DSN (pool_max_conns
// and friends) win over the defaults below.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if !strings.Contains(dsn, "pool_max_conn_idle_time") {
		config.MaxConnIdleTime = 5 * time.Minute
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = "stakegate"
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", config.ConnConfig.Host, err)
	}
	return &Pool{Pool: pool}, nil
}

// NewStores returns every store backed by pool. Closing the group closes the pool.
func NewStores(pool *Pool) storage.Stores {
	return storage.Stores{
		Accounts:     NewAccountStore(pool),
		Supply:       NewSupplyStore(pool),
		Transactions: NewTransactionStore(pool),
		Stakes:       NewStakeStore(pool),
		Proposals:    NewProposalStore(pool),
		Votes:        NewVoteStore(pool),
		Jobs:         NewJobStore(pool),
		Close: func() error {
			pool.Close()
			return nil
		},
	}
}

const pgErrUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// inTx runs fn in a transaction, committing on success.
func inTx(ctx context.Context, pool *Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
