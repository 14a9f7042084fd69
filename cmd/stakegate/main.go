// Command stakegate runs the token economy service and its maintenance tasks:
//   - serve: HTTP API, job runner, periodic persistence
//   - migrate: apply postgres and clickhouse schema migrations
//   - report: render an economy report from stored state
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"stakegate/internal/logging"
)

func main() {
	loadEnvFile(".env")

	flushSentry := func() {}
	app := &cli.App{
		Name:  "stakegate",
		Usage: "stake-gated token economy service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "economy YAML file, defaults built in when empty", EnvVars: []string{"ECONOMY_CONFIG"}},
			&cli.StringFlag{Name: "store", Value: "memory", Usage: "state backend: memory, postgres or bolt", EnvVars: []string{"STORE"}},
			&cli.StringFlag{Name: "postgres-dsn", Usage: "postgres connection string", EnvVars: []string{"POSTGRES_DSN"}},
			&cli.StringFlag{Name: "bolt-dir", Value: "./data/bolt", Usage: "bolt db dir path", EnvVars: []string{"BOLT_DIR"}},
			&cli.StringFlag{Name: "clickhouse-dsn", Usage: "clickhouse DSN for the analytics transaction log, optional", EnvVars: []string{"CLICKHOUSE_DSN"}},

			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Value: "logfmt", Usage: "logfmt, json or terminal", EnvVars: []string{"LOG_FORMAT"}},
			&cli.StringFlag{Name: "sentry-dsn", EnvVars: []string{"SENTRY_DSN"}},
			&cli.StringFlag{Name: "environment", Value: "development", EnvVars: []string{"ENVIRONMENT"}},
		},
		Before: func(c *cli.Context) error {
			flush, err := logging.Setup(c.String("log-level"), c.String("log-format"), c.String("sentry-dsn"), c.String("environment"))
			if err != nil {
				return err
			}
			flushSentry = flush
			return nil
		},
		After: func(*cli.Context) error {
			flushSentry()
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			reportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
