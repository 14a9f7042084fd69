package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/inconshreveable/log15"
	"github.com/urfave/cli/v2"

	"stakegate/internal/storage"
	"stakegate/internal/storage/bolt"
	chstore "stakegate/internal/storage/clickhouse"
	"stakegate/internal/storage/memory"
	"stakegate/internal/storage/migrations"
	pgstore "stakegate/internal/storage/postgres"
)

// backend is the opened state store plus the optional analytics log.
type backend struct {
	name      string
	stores    storage.Stores
	analytics *chstore.TransactionStore
	chConn    *chstore.Conn
}

func (b *backend) Close() {
	if b.stores.Close != nil {
		_ = b.stores.Close()
	}
	if b.chConn != nil {
		_ = b.chConn.Close()
	}
}

// openBackend opens the store selected by --store. Postgres migrations run
// first when migrate is set; clickhouse migrations always run because they
// are idempotent.
func openBackend(ctx context.Context, c *cli.Context, migrate bool, logger log15.Logger) (*backend, error) {
	b := &backend{name: c.String("store")}

	switch b.name {
	case "memory":
		b.stores = memory.NewStores()
	case "postgres":
		dsn := c.String("postgres-dsn")
		if dsn == "" {
			return nil, errors.New("--postgres-dsn is required for the postgres store")
		}
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if migrate {
			applied, err := migrations.RunPostgresMigrations(ctx, pool)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied", "count", len(applied))
		}
		b.stores = pgstore.NewStores(pool)
	case "bolt":
		db, err := bolt.Open(c.String("bolt-dir"))
		if err != nil {
			return nil, err
		}
		b.stores = bolt.NewStores(db)
	default:
		return nil, fmt.Errorf("unknown store %q (memory, postgres, bolt)", b.name)
	}

	if dsn := c.String("clickhouse-dsn"); dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		b.chConn = conn
		b.analytics = chstore.NewTransactionStore(conn)
	}

	logger.Info("storage ready", "store", b.name, "analytics", b.analytics != nil)
	return b, nil
}
