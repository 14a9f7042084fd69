// Package persistence loads engine state from a storage backend at start
// and writes back what changed on a fixed interval and on shutdown.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/inconshreveable/log15"

	"stakegate/internal/governance"
	"stakegate/internal/ledger"
	"stakegate/internal/logging"
	"stakegate/internal/observability"
	"stakegate/internal/scheduler"
	"stakegate/internal/staking"
	"stakegate/internal/storage"
)

// Options configures a Syncer.
type Options struct {
	Stores     storage.Stores
	Ledger     *ledger.Ledger
	Staking    *staking.Engine
	Governance *governance.Engine
	Scheduler  *scheduler.Scheduler

	// Analytics optionally mirrors every flushed transaction. Mirror
	// failures are logged and never block the primary flush.
	Analytics storage.TransactionStore

	Interval time.Duration // 0 disables the periodic flush
	Database string        // metrics label, e.g. "postgres"
	Logger   log15.Logger
}

// Syncer moves engine state to and from a storage.Stores group.
type Syncer struct {
	opts Options
	log  log15.Logger
	cron *gocron.Scheduler

	flushMu sync.Mutex
}

// New creates a Syncer. Call Load before serving and Close on shutdown.
func New(opts Options) *Syncer {
	if opts.Logger == nil {
		opts.Logger = logging.NewLog("persistence")
	}
	if opts.Database == "" {
		opts.Database = "store"
	}
	return &Syncer{opts: opts, log: opts.Logger}
}

// Load restores every engine from the stores. A backend that has never been
// flushed (no supply row) leaves the engines untouched and returns false.
func (s *Syncer) Load(ctx context.Context) (bool, error) {
	st := s.opts.Stores

	sup, err := st.Supply.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Info("empty store, starting fresh", "database", s.opts.Database)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load supply: %w", err)
	}

	accounts, err := st.Accounts.List(ctx)
	if err != nil {
		return false, fmt.Errorf("load accounts: %w", err)
	}
	txs, err := st.Transactions.List(ctx)
	if err != nil {
		return false, fmt.Errorf("load transactions: %w", err)
	}
	if err := s.opts.Ledger.Restore(ledger.State{Accounts: accounts, Supply: *sup}, txs); err != nil {
		return false, fmt.Errorf("restore ledger: %w", err)
	}

	positions, err := st.Stakes.List(ctx)
	if err != nil {
		return false, fmt.Errorf("load stakes: %w", err)
	}
	s.opts.Staking.Restore(positions)

	proposals, err := st.Proposals.List(ctx)
	if err != nil {
		return false, fmt.Errorf("load proposals: %w", err)
	}
	votes, err := st.Votes.List(ctx)
	if err != nil {
		return false, fmt.Errorf("load votes: %w", err)
	}
	s.opts.Governance.Restore(proposals, votes)

	jobs, err := st.Jobs.List(ctx)
	if err != nil {
		return false, fmt.Errorf("load jobs: %w", err)
	}
	if err := s.opts.Scheduler.Restore(jobs); err != nil {
		return false, fmt.Errorf("restore scheduler: %w", err)
	}

	s.log.Info("state loaded",
		"database", s.opts.Database,
		"accounts", len(accounts),
		"transactions", len(txs),
		"stakes", len(positions),
		"proposals", len(proposals),
		"votes", len(votes),
		"jobs", len(jobs),
	)
	return true, nil
}

// Start begins the periodic flush.
func (s *Syncer) Start() error {
	if s.opts.Interval <= 0 {
		return nil
	}
	s.cron = gocron.NewScheduler(time.UTC)
	secs := int(s.opts.Interval / time.Second)
	if secs < 1 {
		secs = 1
	}
	_, err := s.cron.Every(secs).Seconds().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Interval*4)
		defer cancel()
		if err := s.Flush(ctx); err != nil {
			s.log.Error("periodic flush failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule flush: %w", err)
	}
	s.cron.StartAsync()
	return nil
}

// Close stops the periodic flush and writes whatever is still pending.
func (s *Syncer) Close(ctx context.Context) error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.Flush(ctx)
}

// Flush writes everything changed since the previous flush. Items that
// could not be written go back to their engine for the next attempt.
//
// Order matters: the transaction log is written before the balances it
// explains, and proposals before the votes that reference them.
func (s *Syncer) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	start := time.Now()
	st := s.opts.Stores

	txs := s.opts.Ledger.DrainTransactions()
	accounts, supply := s.opts.Ledger.DrainDirty()
	positions := s.opts.Staking.DrainDirty()
	proposals, votes := s.opts.Governance.DrainDirty()
	jobs := s.opts.Scheduler.DrainDirty()

	requeue := func(fromStep int) {
		if fromStep <= 0 {
			s.opts.Ledger.Requeue(txs, accounts)
		} else if fromStep <= 1 {
			s.opts.Ledger.Requeue(nil, accounts)
		}
		if fromStep <= 2 {
			s.opts.Staking.Requeue(positions)
		}
		switch {
		case fromStep <= 3:
			s.opts.Governance.Requeue(proposals, votes)
		case fromStep <= 4:
			s.opts.Governance.Requeue(nil, votes)
		}
		if fromStep <= 5 {
			s.opts.Scheduler.Requeue(jobs)
		}
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"transactions", func() error { return st.Transactions.InsertBulk(ctx, txs) }},
		{"accounts", func() error {
			if err := st.Accounts.UpsertBulk(ctx, accounts); err != nil {
				return err
			}
			return st.Supply.Save(ctx, supply)
		}},
		{"stakes", func() error { return st.Stakes.UpsertBulk(ctx, positions) }},
		{"proposals", func() error { return st.Proposals.UpsertBulk(ctx, proposals) }},
		{"votes", func() error { return st.Votes.InsertBulk(ctx, votes) }},
		{"jobs", func() error { return st.Jobs.UpsertBulk(ctx, jobs) }},
	}

	for i, step := range steps {
		stepStart := time.Now()
		err := step.run()
		observability.RecordDBQuery(s.opts.Database, step.name, time.Since(stepStart).Seconds(), err)
		if err != nil {
			requeue(i)
			return fmt.Errorf("flush %s: %w", step.name, err)
		}
	}

	if s.opts.Analytics != nil && len(txs) > 0 {
		if err := s.opts.Analytics.InsertBulk(ctx, txs); err != nil {
			s.log.Warn("analytics mirror failed", "transactions", len(txs), "err", err)
		}
	}

	observability.RecordFlush(float64(time.Now().Unix()))
	if n := len(txs) + len(accounts) + len(positions) + len(proposals) + len(votes) + len(jobs); n > 0 {
		s.log.Debug("flushed",
			"transactions", len(txs),
			"accounts", len(accounts),
			"stakes", len(positions),
			"proposals", len(proposals),
			"votes", len(votes),
			"jobs", len(jobs),
			"took", time.Since(start),
		)
	}
	return nil
}
