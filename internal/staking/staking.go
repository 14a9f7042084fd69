// Package staking moves tokens between available and locked, derives tiers
// from locked stake and accrues time-based rewards.
package staking

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/observability"
)

// Year is the reward accrual year (365.25 days).
const Year = time.Duration(365.25 * 24 * float64(time.Hour))

// Ledger is the subset of the ledger staking depends on.
type Ledger interface {
	Lock(account string, amount domain.Amount) (*domain.Transaction, error)
	Unlock(account string, amount domain.Amount) (*domain.Transaction, error)
	Mint(account string, amount domain.Amount, reason string) (*domain.Transaction, error)
	Balance(account string) domain.Account
	TotalLocked() domain.Amount
	Accounts() []domain.Account
}

// Options configures an Engine.
type Options struct {
	Tiers  []config.TierConfig // ascending, as validated by config
	Ledger Ledger
	Now    func() time.Time
}

// Receipt describes a stake or unstake.
type Receipt struct {
	Tx           *domain.Transaction
	Locked       domain.Amount
	Tier         domain.Tier
	PreviousTier domain.Tier
	Settled      domain.Amount // rewards accrued by the settlement before the move
}

// TierChanged reports whether the move crossed a tier boundary.
func (r *Receipt) TierChanged() bool {
	return r.Tier != r.PreviousTier
}

// Info is the staking view of one account.
type Info struct {
	Account            string        `json:"account"`
	Available          domain.Amount `json:"available"`
	Locked             domain.Amount `json:"locked"`
	Tier               domain.Tier   `json:"tier"`
	APYBps             int64         `json:"apy_bps"`
	Multiplier         float64       `json:"priority_multiplier"`
	PendingRewards     domain.Amount `json:"pending_rewards"`
	TotalRewardsEarned domain.Amount `json:"total_rewards_earned"`
	StakedSince        int64         `json:"staked_since"`
	NextTier           *domain.Tier  `json:"next_tier,omitempty"`
	NeededForNextTier  domain.Amount `json:"needed_for_next_tier"`
}

// Stats summarises staking across all accounts.
type Stats struct {
	TotalStaked        domain.Amount       `json:"total_staked"`
	Stakers            int                 `json:"stakers"`
	TierDistribution   map[domain.Tier]int `json:"tier_distribution"`
	RewardsDistributed domain.Amount       `json:"rewards_distributed"`
	PendingRewards     domain.Amount       `json:"pending_rewards"`
}

// Engine is the staking engine.
type Engine struct {
	tiers  []config.TierConfig
	ledger Ledger
	now    func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	posMu       sync.RWMutex
	positions   map[string]*domain.StakePosition
	dirty       map[string]struct{}
	distributed domain.Amount
}

// New creates a staking engine.
func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		tiers:     opts.Tiers,
		ledger:    opts.Ledger,
		now:       opts.Now,
		locks:     make(map[string]*sync.Mutex),
		positions: make(map[string]*domain.StakePosition),
		dirty:     make(map[string]struct{}),
	}
}

func (e *Engine) lock(account string) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[account]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[account] = mu
	}
	e.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// TierFor maps a locked amount onto the highest tier whose threshold it meets.
func (e *Engine) TierFor(locked domain.Amount) domain.Tier {
	tier := domain.TierBasic
	for _, tc := range e.tiers {
		if locked >= tc.Threshold.Amount() {
			tier = tc.Tier
		}
	}
	return tier
}

// Tier returns the account's current tier, recomputed from locked stake.
func (e *Engine) Tier(account string) domain.Tier {
	return e.TierFor(e.ledger.Balance(account).Locked)
}

// Locked returns the account's locked stake.
func (e *Engine) Locked(account string) domain.Amount {
	return e.ledger.Balance(account).Locked
}

func (e *Engine) tierConfig(t domain.Tier) config.TierConfig {
	for _, tc := range e.tiers {
		if tc.Tier == t {
			return tc
		}
	}
	return config.TierConfig{Tier: t, Multiplier: 1}
}

// Threshold returns the minimum locked stake of tier t.
func (e *Engine) Threshold(t domain.Tier) domain.Amount {
	return e.tierConfig(t).Threshold.Amount()
}

// APYBps returns the annual reward rate of tier t in basis points.
func (e *Engine) APYBps(t domain.Tier) int64 {
	return e.tierConfig(t).APYBps
}

// PriorityMultiplier returns the scheduler multiplier of tier t.
func (e *Engine) PriorityMultiplier(t domain.Tier) float64 {
	return e.tierConfig(t).Multiplier
}

// PriorityScore is multiplier(tier) × ln(1 + locked), locked in whole tokens.
func (e *Engine) PriorityScore(t domain.Tier, locked domain.Amount) float64 {
	return e.PriorityMultiplier(t) * math.Log1p(locked.Float())
}

// PriorityInputs reads the account's locked stake once and derives the
// tier and score from that single value.
func (e *Engine) PriorityInputs(account string) (domain.Tier, domain.Amount, float64) {
	locked := e.Locked(account)
	tier := e.TierFor(locked)
	return tier, locked, e.PriorityScore(tier, locked)
}

// Reward computes locked × apy × elapsed / Year, floored to a minor unit.
func Reward(locked domain.Amount, apyBps int64, elapsed time.Duration) domain.Amount {
	if locked <= 0 || apyBps <= 0 || elapsed <= 0 {
		return 0
	}
	r := decimal.NewFromInt(int64(locked)).
		Mul(decimal.NewFromInt(apyBps)).
		Shift(-4).
		Mul(decimal.NewFromInt(elapsed.Milliseconds())).
		Div(decimal.NewFromInt(Year.Milliseconds())).
		Floor()
	return domain.Amount(r.IntPart())
}

func (e *Engine) position(account string, create bool) *domain.StakePosition {
	pos, ok := e.positions[account]
	if !ok && create {
		pos = &domain.StakePosition{Account: account}
		e.positions[account] = pos
	}
	return pos
}

// accrue returns rewards earned since the checkpoint at the rate of the
// tier in effect now, applied to the whole interval.
func (e *Engine) accrue(pos *domain.StakePosition, locked domain.Amount, nowMs int64) domain.Amount {
	if pos == nil || pos.RewardCheckpoint == 0 || nowMs <= pos.RewardCheckpoint {
		return 0
	}
	elapsed := time.Duration(nowMs-pos.RewardCheckpoint) * time.Millisecond
	return Reward(locked, e.APYBps(e.TierFor(locked)), elapsed)
}

// settle folds pending accrual into the position and moves the checkpoint.
// Caller holds the account lock.
func (e *Engine) settle(account string, nowMs int64) domain.Amount {
	locked := e.ledger.Balance(account).Locked

	e.posMu.Lock()
	defer e.posMu.Unlock()
	pos := e.position(account, true)
	earned := e.accrue(pos, locked, nowMs)
	pos.AccruedRewards += earned
	pos.RewardCheckpoint = nowMs
	e.dirty[account] = struct{}{}
	return earned
}

// Stake settles pending rewards, then locks amount.
func (e *Engine) Stake(account string, amount domain.Amount) (*Receipt, error) {
	unlock := e.lock(account)
	defer unlock()

	before := e.ledger.Balance(account)
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if before.Available < amount {
		return nil, &domain.InsufficientBalanceError{Account: account, Available: before.Available, Required: amount}
	}

	nowMs := e.now().UnixMilli()
	settled := e.settle(account, nowMs)

	tx, err := e.ledger.Lock(account, amount)
	if err != nil {
		return nil, err
	}

	e.posMu.Lock()
	pos := e.position(account, true)
	if pos.StakedSince == 0 {
		pos.StakedSince = nowMs
	}
	e.posMu.Unlock()

	observability.RecordStakeOp("stake")
	observability.UpdateStaked(e.ledger.TotalLocked().Float())
	return &Receipt{
		Tx:           tx,
		Locked:       tx.LockedAfter,
		Tier:         e.TierFor(tx.LockedAfter),
		PreviousTier: e.TierFor(before.Locked),
		Settled:      settled,
	}, nil
}

// Unstake settles pending rewards, then unlocks amount.
func (e *Engine) Unstake(account string, amount domain.Amount) (*Receipt, error) {
	unlock := e.lock(account)
	defer unlock()

	before := e.ledger.Balance(account)
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if before.Locked < amount {
		return nil, &domain.InsufficientStakeError{Account: account, Locked: before.Locked, Required: amount}
	}

	nowMs := e.now().UnixMilli()
	settled := e.settle(account, nowMs)

	tx, err := e.ledger.Unlock(account, amount)
	if err != nil {
		return nil, err
	}
	if tx.LockedAfter == 0 {
		e.posMu.Lock()
		e.position(account, true).StakedSince = 0
		e.posMu.Unlock()
	}

	observability.RecordStakeOp("unstake")
	observability.UpdateStaked(e.ledger.TotalLocked().Float())
	return &Receipt{
		Tx:           tx,
		Locked:       tx.LockedAfter,
		Tier:         e.TierFor(tx.LockedAfter),
		PreviousTier: e.TierFor(before.Locked),
		Settled:      settled,
	}, nil
}

// ClaimRewards settles and mints all accrued rewards to the account.
// Returns the minted amount; zero when nothing has accrued.
func (e *Engine) ClaimRewards(account string) (domain.Amount, *domain.Transaction, error) {
	unlock := e.lock(account)
	defer unlock()

	e.settle(account, e.now().UnixMilli())

	e.posMu.RLock()
	amount := e.positions[account].AccruedRewards
	e.posMu.RUnlock()
	if amount == 0 {
		return 0, nil, nil
	}

	tx, err := e.ledger.Mint(account, amount, "reward")
	if err != nil {
		return 0, nil, err
	}

	e.posMu.Lock()
	pos := e.positions[account]
	pos.AccruedRewards -= amount
	pos.TotalRewardsEarned += amount
	e.distributed += amount
	e.dirty[account] = struct{}{}
	e.posMu.Unlock()

	observability.RecordStakeOp("claim")
	observability.RecordRewardsClaimed(amount.Float())
	return amount, tx, nil
}

// PendingRewards returns settled plus not-yet-settled rewards without mutating.
func (e *Engine) PendingRewards(account string) domain.Amount {
	locked := e.ledger.Balance(account).Locked
	nowMs := e.now().UnixMilli()

	e.posMu.RLock()
	defer e.posMu.RUnlock()
	pos := e.positions[account]
	if pos == nil {
		return 0
	}
	return pos.AccruedRewards + e.accrue(pos, locked, nowMs)
}

// Info returns the staking view of account.
func (e *Engine) Info(account string) Info {
	acct := e.ledger.Balance(account)
	tier := e.TierFor(acct.Locked)
	info := Info{
		Account:        account,
		Available:      acct.Available,
		Locked:         acct.Locked,
		Tier:           tier,
		APYBps:         e.APYBps(tier),
		Multiplier:     e.PriorityMultiplier(tier),
		PendingRewards: e.PendingRewards(account),
	}

	e.posMu.RLock()
	if pos := e.positions[account]; pos != nil {
		info.TotalRewardsEarned = pos.TotalRewardsEarned
		info.StakedSince = pos.StakedSince
	}
	e.posMu.RUnlock()

	if next, ok := tier.Next(); ok {
		info.NextTier = &next
		info.NeededForNextTier = e.Threshold(next) - acct.Locked
	}
	return info
}

// Stats summarises staking across all accounts.
func (e *Engine) Stats() Stats {
	st := Stats{
		TotalStaked:      e.ledger.TotalLocked(),
		TierDistribution: make(map[domain.Tier]int, len(domain.AllTiers)),
	}
	for _, t := range domain.AllTiers {
		st.TierDistribution[t] = 0
	}
	for _, a := range e.ledger.Accounts() {
		st.TierDistribution[e.TierFor(a.Locked)]++
		if a.Locked > 0 {
			st.Stakers++
			st.PendingRewards += e.PendingRewards(a.ID)
		}
	}

	e.posMu.RLock()
	st.RewardsDistributed = e.distributed
	e.posMu.RUnlock()
	return st
}

// Positions returns copies of all stake positions sorted by account.
func (e *Engine) Positions() []domain.StakePosition {
	e.posMu.RLock()
	defer e.posMu.RUnlock()
	out := make([]domain.StakePosition, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// DrainDirty returns positions changed since the previous drain.
func (e *Engine) DrainDirty() []domain.StakePosition {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	out := make([]domain.StakePosition, 0, len(e.dirty))
	for id := range e.dirty {
		if p, ok := e.positions[id]; ok {
			out = append(out, *p)
		}
	}
	e.dirty = make(map[string]struct{})
	return out
}

// Requeue marks positions dirty again after a failed flush.
func (e *Engine) Requeue(positions []domain.StakePosition) {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	for _, p := range positions {
		e.dirty[p.Account] = struct{}{}
	}
}

// Restore replaces all positions with persisted ones.
func (e *Engine) Restore(positions []domain.StakePosition) {
	e.posMu.Lock()
	defer e.posMu.Unlock()
	e.positions = make(map[string]*domain.StakePosition, len(positions))
	e.dirty = make(map[string]struct{})
	e.distributed = 0
	for i := range positions {
		p := positions[i]
		e.positions[p.Account] = &p
		e.distributed += p.TotalRewardsEarned
	}
}
