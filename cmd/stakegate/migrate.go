package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"stakegate/internal/logging"
	"stakegate/internal/storage/migrations"
	pgstore "stakegate/internal/storage/postgres"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "apply postgres and clickhouse migrations",
		Action: migrate,
	}
}

func migrate(c *cli.Context) error {
	logger := logging.NewLog("migrate")
	ctx := c.Context
	pgDSN, chDSN := c.String("postgres-dsn"), c.String("clickhouse-dsn")
	if pgDSN == "" && chDSN == "" {
		return errors.New("nothing to migrate: set --postgres-dsn and/or --clickhouse-dsn")
	}

	if pgDSN != "" {
		pool, err := pgstore.NewPool(ctx, pgDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info("postgres migrated", "applied", applied)
	}

	if chDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, chDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		logger.Info("clickhouse migrated")
	}
	return nil
}
