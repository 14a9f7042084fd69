// Package engine wires the ledger, staking, access control, governance and
// scheduler services into one economy and runs its background work.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/inconshreveable/log15"

	"stakegate/internal/access"
	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/events"
	"stakegate/internal/executor"
	"stakegate/internal/governance"
	"stakegate/internal/idhash"
	"stakegate/internal/ledger"
	"stakegate/internal/logging"
	"stakegate/internal/observability"
	"stakegate/internal/scheduler"
	"stakegate/internal/staking"
)

// AddressNamespace seeds the derivation of system addresses.
const AddressNamespace = "stakegate"

// Options configures an Engine.
type Options struct {
	Config   config.Economy
	Executor executor.Executor // nil runs jobs through a zero-delay stub
	Events   events.Publisher
	Now      func() time.Time

	// Authorize restricts proposal execution. Nil allows any caller.
	Authorize governance.Authorizer

	// SweepInterval is how often due proposals are resolved and ledger
	// invariants checked. Defaults to one minute.
	SweepInterval time.Duration

	Logger log15.Logger
}

// Engine is the economy facade. Mutations that other parties care about go
// through it so they are logged and published once.
type Engine struct {
	cfg    config.Economy
	events events.Publisher
	log    log15.Logger
	now    func() time.Time

	ledger     *ledger.Ledger
	staking    *staking.Engine
	access     *access.Controller
	governance *governance.Engine
	scheduler  *scheduler.Scheduler
	runner     *scheduler.Runner

	treasuryAddr string
	burnAddr     string
	sweepEvery   time.Duration
	startedAt    time.Time
}

// stakeView gives governance the staking engine's per-account view plus the
// ledger-wide locked total.
type stakeView struct {
	*staking.Engine
	ledger *ledger.Ledger
}

func (v stakeView) TotalLocked() domain.Amount { return v.ledger.TotalLocked() }

// New validates the configuration and builds every service.
func New(opts Options) (*Engine, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid economy config: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLog("engine")
	}
	if opts.Executor == nil {
		opts.Executor = &executor.Stub{}
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	cfg := opts.Config

	e := &Engine{
		cfg:          cfg,
		events:       opts.Events,
		log:          opts.Logger,
		now:          opts.Now,
		treasuryAddr: idhash.DeriveSystemAddress(AddressNamespace, "treasury"),
		burnAddr:     idhash.DeriveSystemAddress(AddressNamespace, "burn"),
		sweepEvery:   opts.SweepInterval,
		startedAt:    opts.Now(),
	}

	e.ledger = ledger.New(ledger.Options{
		TotalSupply:     cfg.Token.TotalSupply.Amount(),
		Fees:            cfg.Fees,
		TreasuryAddress: e.treasuryAddr,
		BurnAddress:     e.burnAddr,

		Allocations:        cfg.Token.AllocationCaps(),
		TreasuryAllocation: cfg.Token.TreasuryAllocation,
		DefaultAllocation:  cfg.Token.DefaultAllocation,
		MintSources:        cfg.Token.MintSources,

		Now:    opts.Now,
		Logger: opts.Logger.New("component", "ledger"),
	})
	e.staking = staking.New(staking.Options{Tiers: cfg.Tiers, Ledger: e.ledger, Now: opts.Now})
	e.access = access.New(access.Options{Tiers: cfg.Tiers, Pricing: cfg.Pricing, Stakes: e.staking})
	e.governance = governance.New(governance.Options{
		Config:    cfg.Governance,
		Stakes:    stakeView{Engine: e.staking, ledger: e.ledger},
		Authorize: opts.Authorize,
		Events:    opts.Events,
		Now:       opts.Now,
	})
	e.scheduler = scheduler.New(scheduler.Options{
		Config: cfg.Scheduler,
		Access: e.access,
		Ledger: e.ledger,
		Stakes: e.staking,
		Events: opts.Events,
		Now:    opts.Now,
		Logger: opts.Logger.New("component", "scheduler"),
	})

	runner, err := scheduler.NewRunner(e.scheduler, opts.Executor, cfg.Scheduler.Workers,
		cfg.Scheduler.ExecutionTimeout, opts.Logger.New("component", "runner"))
	if err != nil {
		return nil, fmt.Errorf("create runner: %w", err)
	}
	e.runner = runner

	return e, nil
}

func (e *Engine) Ledger() *ledger.Ledger          { return e.ledger }
func (e *Engine) Staking() *staking.Engine        { return e.staking }
func (e *Engine) Access() *access.Controller      { return e.access }
func (e *Engine) Governance() *governance.Engine  { return e.governance }
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }
func (e *Engine) Config() config.Economy          { return e.cfg }
func (e *Engine) TreasuryAddress() string         { return e.treasuryAddr }
func (e *Engine) BurnAddress() string             { return e.burnAddr }

// Run executes queued jobs and the periodic sweep until ctx is done or the
// scheduler is closed and drained.
func (e *Engine) Run(ctx context.Context) error {
	cron := gocron.NewScheduler(time.UTC)
	secs := int(e.sweepEvery / time.Second)
	if secs < 1 {
		secs = 1
	}
	if _, err := cron.Every(secs).Seconds().SingletonMode().Do(e.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	last := e.now()
	if _, err := cron.Every(15).Seconds().SingletonMode().Do(func() {
		now := e.now()
		observability.AddUptime(now.Sub(last).Seconds())
		last = now
	}); err != nil {
		return fmt.Errorf("schedule uptime: %w", err)
	}
	cron.StartAsync()
	defer cron.Stop()

	e.log.Info("engine running",
		"workers", e.cfg.Scheduler.Workers,
		"treasury", e.treasuryAddr,
		"burn", e.burnAddr,
	)
	return e.runner.Run(ctx)
}

// Close stops job admission. Queued jobs are still run by Run.
func (e *Engine) Close() {
	e.scheduler.Close()
}

// Sweep resolves proposals whose voting period has ended and checks the
// ledger invariants.
func (e *Engine) Sweep() {
	for _, p := range e.governance.ResolveDue() {
		e.log.Info("proposal resolved", "proposal", p.ID, "status", p.Status,
			"for", p.VotesFor, "against", p.VotesAgainst)
	}
	if err := e.ledger.CheckInvariants(); err != nil {
		e.log.Crit("ledger invariant violated", "err", err)
	}
}

// Uptime returns how long the engine has existed.
func (e *Engine) Uptime() time.Duration {
	return e.now().Sub(e.startedAt)
}
