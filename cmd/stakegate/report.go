package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"stakegate/internal/config"
	"stakegate/internal/logging"
	"stakegate/internal/reporting"
)

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "render an economy report from stored state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "./reports", EnvVars: []string{"REPORT_DIR"}},
			&cli.IntFlag{Name: "top", Value: reporting.DefaultTopHolders, Usage: "holders to rank"},
			&cli.IntFlag{Name: "daily-days", Value: 14, Usage: "days of clickhouse daily flows, needs --clickhouse-dsn"},
		},
		Action: report,
	}
}

func report(c *cli.Context) error {
	logger := logging.NewLog("report")
	ctx := c.Context

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	be, err := openBackend(ctx, c, false, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	gen := reporting.NewGenerator(be.stores, cfg).WithTopHolders(c.Int("top"))
	if be.analytics != nil {
		gen = gen.WithDailyFlows(be.analytics, c.Int("daily-days"))
	}
	r, err := gen.Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	paths, err := reporting.WriteFiles(c.String("output"), r)
	if err != nil {
		return err
	}
	for _, p := range paths {
		logger.Info("wrote", "path", p)
	}
	if len(r.IntegrityErrors) > 0 {
		logger.Warn("stored state fails integrity checks", "errors", len(r.IntegrityErrors))
	}
	return nil
}
