package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"stakegate/internal/api"
	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/engine"
	"stakegate/internal/events"
	"stakegate/internal/executor"
	"stakegate/internal/governance"
	"stakegate/internal/logging"
	"stakegate/internal/persistence"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API, the job runner and state persistence",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", EnvVars: []string{"ADDR"}},
			&cli.BoolFlag{Name: "migrate", Value: true, Usage: "apply postgres migrations on start", EnvVars: []string{"MIGRATE"}},
			&cli.StringFlag{Name: "executor-url", Usage: "production service base URL; empty runs the in-process stub", EnvVars: []string{"EXECUTOR_URL"}},
			&cli.DurationFlag{Name: "stub-delay", Value: 2 * time.Second, Usage: "stub executor run time", EnvVars: []string{"STUB_DELAY"}},
			&cli.StringSliceFlag{Name: "kafka-brokers", Usage: "publish events to these brokers", EnvVars: []string{"KAFKA_BROKERS"}},
			&cli.StringFlag{Name: "kafka-topic", Value: "stakegate.events", EnvVars: []string{"KAFKA_TOPIC"}},
			&cli.StringFlag{Name: "admin-token", Usage: "token for mint and burn; empty disables them", EnvVars: []string{"ADMIN_TOKEN"}},
			&cli.IntFlag{Name: "rate-limit", Value: 600, Usage: "requests per rate-period per client, 0 disables", EnvVars: []string{"RATE_LIMIT"}},
			&cli.StringFlag{Name: "rate-period", Value: "M", Usage: "S, M, H or D", EnvVars: []string{"RATE_PERIOD"}},
			&cli.DurationFlag{Name: "sweep-interval", Value: time.Minute, Usage: "proposal resolution and invariant check period", EnvVars: []string{"SWEEP_INTERVAL"}},
			&cli.StringSliceFlag{Name: "governance-executors", Usage: "accounts allowed to execute proposals; empty allows anyone", EnvVars: []string{"GOVERNANCE_EXECUTORS"}},
			&cli.DurationFlag{Name: "shutdown-timeout", Value: 30 * time.Second, EnvVars: []string{"SHUTDOWN_TIMEOUT"}},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	logger := logging.NewLog("server")
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	be, err := openBackend(ctx, c, c.Bool("migrate"), logger)
	if err != nil {
		return err
	}
	defer be.Close()

	var sinks []events.Sink
	if brokers := c.StringSlice("kafka-brokers"); len(brokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(brokers, c.String("kafka-topic")))
		logger.Info("publishing events to kafka", "brokers", strings.Join(brokers, ","), "topic", c.String("kafka-topic"))
	}
	bus := events.NewBus(0, sinks...)
	defer bus.Close()

	var exec executor.Executor = &executor.Stub{Delay: c.Duration("stub-delay")}
	if url := c.String("executor-url"); url != "" {
		exec = executor.NewHTTPExecutor(url)
		logger.Info("using remote executor", "url", url)
	}

	eng, err := engine.New(engine.Options{
		Config:        cfg,
		Executor:      exec,
		Events:        bus,
		Authorize:     allowList(c.StringSlice("governance-executors")),
		SweepInterval: c.Duration("sweep-interval"),
		Logger:        logging.NewLog("engine"),
	})
	if err != nil {
		return err
	}

	syncOpts := persistence.Options{
		Stores:     be.stores,
		Ledger:     eng.Ledger(),
		Staking:    eng.Staking(),
		Governance: eng.Governance(),
		Scheduler:  eng.Scheduler(),
		Interval:   cfg.Persistence.FlushInterval,
		Database:   be.name,
	}
	if be.analytics != nil {
		syncOpts.Analytics = be.analytics
	}
	syncer := persistence.New(syncOpts)
	if _, err := syncer.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := syncer.Start(); err != nil {
		return err
	}

	srv, err := api.New(api.Options{
		Engine:     eng,
		Events:     bus,
		AdminToken: c.String("admin-token"),
		RateLimit:  c.Int("rate-limit"),
		RatePeriod: c.String("rate-period"),
	})
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(runCtx) }()

	httpDone := make(chan error, 1)
	go func() { httpDone <- srv.ListenAndServe(c.String("addr")) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-httpDone:
		if err != nil {
			logger.Error("http server stopped", "err", err)
		}
	case err := <-runDone:
		runDone <- err
		if err != nil {
			logger.Error("job runner stopped", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}

	// Stop admission, let in-flight jobs settle. Jobs still queued are
	// persisted and picked up on the next start.
	eng.Close()
	cancelRun()
	select {
	case <-runDone:
	case <-shutdownCtx.Done():
		logger.Warn("in-flight jobs did not settle before the shutdown timeout")
	}

	if err := syncer.Close(shutdownCtx); err != nil {
		logger.Error("final flush failed", "err", err)
		return err
	}
	logger.Info("stopped", "supply", eng.Ledger().Supply().Circulating, "transactions", eng.Ledger().TxCount())
	return nil
}

// allowList restricts proposal execution to accounts. Empty allows anyone.
func allowList(accounts []string) governance.Authorizer {
	if len(accounts) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		allowed[strings.TrimSpace(a)] = struct{}{}
	}
	return func(executor string, p *domain.Proposal) error {
		if _, ok := allowed[executor]; !ok {
			return fmt.Errorf("%w: %s may not execute %s", domain.ErrUnauthorized, executor, p.ID)
		}
		return nil
	}
}
