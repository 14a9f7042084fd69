// Package ledger is the single authority over balances and supply.
//
// Lock order: stateMu (shared) → account locks in lexical order → bookMu.
// Invariant checks take stateMu exclusively, so they never observe a
// half-applied operation.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/logging"
	"stakegate/internal/observability"
)

// Options configures a Ledger.
type Options struct {
	TotalSupply     domain.Amount
	Fees            config.FeeConfig
	TreasuryAddress string // recorded as counterparty of fee and refund transactions
	BurnAddress     string // recorded as counterparty of burn transactions

	// Allocations split TotalSupply into buckets; their caps must sum to it.
	// The treasury bucket is issued to the treasury at genesis. Mints draw
	// from MintSources[reason], falling back to DefaultAllocation.
	Allocations        []domain.Allocation
	TreasuryAllocation string
	DefaultAllocation  string
	MintSources        map[string]string

	Now    func() time.Time
	Logger log15.Logger
}

// FeeReceipt describes how a charge was split.
type FeeReceipt struct {
	Cost     domain.Amount // debited from the account
	Fee      domain.Amount // cost × usage fee
	Burned   domain.Amount // fee × burn share
	Treasury domain.Amount // cost − burned
	Tx       *domain.Transaction
}

type accountEntry struct {
	mu   sync.Mutex
	acct domain.Account
	// opened is set by the first credit. Entries created for a transfer
	// that then fails stay unopened and are not listed.
	opened bool
}

// Ledger holds balances, supply and the append-only transaction log.
type Ledger struct {
	opts Options
	log  log15.Logger

	stateMu sync.RWMutex

	accountsMu sync.RWMutex
	accounts   map[string]*accountEntry

	bookMu  sync.Mutex
	genesis domain.Supply
	supply  domain.Supply
	locked  domain.Amount
	seq     int64
	txs     []*domain.Transaction
	pending []*domain.Transaction
	dirty   map[string]struct{}
}

// New creates a ledger with the cap unissued, less the treasury allocation.
func New(opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLog("ledger")
	}
	if opts.TreasuryAddress == "" {
		opts.TreasuryAddress = "treasury"
	}
	if opts.BurnAddress == "" {
		opts.BurnAddress = "burn"
	}
	genesis := domain.Supply{
		Total:       opts.TotalSupply,
		Unissued:    opts.TotalSupply,
		Allocations: append([]domain.Allocation(nil), opts.Allocations...),
	}
	for i := range genesis.Allocations {
		a := &genesis.Allocations[i]
		if a.Name == opts.TreasuryAllocation {
			a.Issued = a.Cap
			genesis.Treasury += a.Cap
			genesis.Unissued -= a.Cap
		}
	}
	return &Ledger{
		opts:     opts,
		log:      opts.Logger,
		accounts: make(map[string]*accountEntry),
		genesis:  genesis,
		supply:   genesis.Clone(),
		dirty:    make(map[string]struct{}),
	}
}

func (l *Ledger) nowMs() int64 {
	return l.opts.Now().UnixMilli()
}

// entry returns the account entry, creating it when create is set.
func (l *Ledger) entry(id string, create bool) *accountEntry {
	l.accountsMu.RLock()
	e, ok := l.accounts[id]
	l.accountsMu.RUnlock()
	if ok || !create {
		return e
	}

	l.accountsMu.Lock()
	defer l.accountsMu.Unlock()
	if e, ok = l.accounts[id]; ok {
		return e
	}
	now := l.nowMs()
	e = &accountEntry{acct: domain.Account{ID: id, CreatedAt: now, UpdatedAt: now}}
	l.accounts[id] = e
	return e
}

// record appends a transaction. Caller holds bookMu.
func (l *Ledger) record(tx *domain.Transaction) {
	l.seq++
	tx.Seq = l.seq
	tx.Timestamp = l.nowMs()
	l.txs = append(l.txs, tx)
	l.pending = append(l.pending, tx)
	if tx.Account != "" {
		l.dirty[tx.Account] = struct{}{}
	}
	if tx.Kind == domain.TxTransfer {
		l.dirty[tx.Counterparty] = struct{}{}
	}
	observability.RecordTransaction(string(tx.Kind), tx.Amount.Float())
}

func (l *Ledger) publishSupply() {
	observability.UpdateSupply(
		l.supply.Circulating.Float(),
		l.supply.Burned.Float(),
		l.supply.Treasury.Float(),
		l.supply.Unissued.Float(),
	)
}

func checkAccount(id string) error {
	if id == "" {
		return fmt.Errorf("%w: account id is required", domain.ErrInvalidRequest)
	}
	return nil
}

func checkAmount(amount domain.Amount) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidAmount, amount)
	}
	return nil
}

// mintKind maps a mint reason onto a transaction kind.
func mintKind(reason string) domain.TxKind {
	switch reason {
	case "reward":
		return domain.TxReward
	case "bonus":
		return domain.TxBonus
	default:
		return domain.TxMint
	}
}

// allocationFor picks the bucket a mint with reason draws from.
func (l *Ledger) allocationFor(reason string) string {
	if name, ok := l.opts.MintSources[reason]; ok {
		return name
	}
	return l.opts.DefaultAllocation
}

// Mint issues new tokens to account from the allocation mapped to reason.
// Exceeding the cap is a bug: it is logged at crit and returns ErrSupplyCapExceeded.
func (l *Ledger) Mint(account string, amount domain.Amount, reason string) (*domain.Transaction, error) {
	return l.MintFrom(l.allocationFor(reason), account, amount, reason)
}

// MintFrom issues new tokens to account from the named allocation.
// An exhausted allocation returns ErrAllocationExhausted.
func (l *Ledger) MintFrom(allocation, account string, amount domain.Amount, reason string) (*domain.Transaction, error) {
	if err := checkAccount(account); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	e := l.entry(account, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	l.bookMu.Lock()
	defer l.bookMu.Unlock()

	if l.supply.Unissued < amount {
		l.log.Crit("mint exceeds supply cap",
			"account", account, "amount", amount, "unissued", l.supply.Unissued, "reason", reason)
		observability.RecordInvariantViolation()
		return nil, fmt.Errorf("%w: mint %s with %s unissued", domain.ErrSupplyCapExceeded, amount, l.supply.Unissued)
	}
	bucket, err := l.bucket(allocation)
	if err != nil {
		return nil, err
	}
	if bucket != nil {
		if bucket.Remaining() < amount {
			return nil, fmt.Errorf("%w: %s has %s left, mint is %s",
				domain.ErrAllocationExhausted, allocation, bucket.Remaining(), amount)
		}
		bucket.Issued += amount
	}

	l.supply.Unissued -= amount
	l.supply.Circulating += amount
	e.acct.Available += amount
	e.acct.UpdatedAt = l.nowMs()
	e.opened = true

	tx := &domain.Transaction{
		Kind:           mintKind(reason),
		Account:        account,
		Amount:         amount,
		AvailableAfter: e.acct.Available,
		LockedAfter:    e.acct.Locked,
		Reason:         reason,
	}
	l.record(tx)
	l.publishSupply()
	return tx, nil
}

// bucket returns the mintable allocation called name, or nil when the
// ledger has no allocations. Caller holds bookMu.
func (l *Ledger) bucket(name string) (*domain.Allocation, error) {
	if len(l.supply.Allocations) == 0 {
		return nil, nil
	}
	if name != l.opts.TreasuryAllocation {
		for i := range l.supply.Allocations {
			if l.supply.Allocations[i].Name == name {
				return &l.supply.Allocations[i], nil
			}
		}
	}
	return nil, fmt.Errorf("%w: unknown allocation %q", domain.ErrInvalidRequest, name)
}

// Burn destroys amount from the treasury. source labels the origin.
func (l *Ledger) Burn(amount domain.Amount, source string) (*domain.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	l.bookMu.Lock()
	defer l.bookMu.Unlock()

	if l.supply.Treasury < amount {
		return nil, &domain.InsufficientBalanceError{
			Account:   l.opts.TreasuryAddress,
			Available: l.supply.Treasury,
			Required:  amount,
		}
	}

	l.supply.Treasury -= amount
	l.supply.Burned += amount

	tx := &domain.Transaction{
		Kind:         domain.TxBurn,
		Counterparty: l.opts.BurnAddress,
		Amount:       amount,
		BurnAmount:   amount,
		Reason:       source,
	}
	l.record(tx)
	l.publishSupply()
	return tx, nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to string, amount domain.Amount) (*domain.Transaction, error) {
	if err := checkAccount(from); err != nil {
		return nil, err
	}
	if err := checkAccount(to); err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("%w: transfer to self", domain.ErrInvalidRequest)
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	src := l.entry(from, false)
	if src == nil {
		return nil, &domain.InsufficientBalanceError{Account: from, Required: amount}
	}
	if l.entry(to, false) == nil {
		// Fail before creating the destination when the source is short.
		src.mu.Lock()
		available := src.acct.Available
		src.mu.Unlock()
		if available < amount {
			return nil, &domain.InsufficientBalanceError{Account: from, Available: available, Required: amount}
		}
	}
	dst := l.entry(to, true)

	first, second := src, dst
	if to < from {
		first, second = dst, src
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if src.acct.Available < amount {
		return nil, &domain.InsufficientBalanceError{Account: from, Available: src.acct.Available, Required: amount}
	}

	now := l.nowMs()
	src.acct.Available -= amount
	src.acct.UpdatedAt = now
	dst.acct.Available += amount
	dst.acct.UpdatedAt = now
	dst.opened = true

	l.bookMu.Lock()
	defer l.bookMu.Unlock()
	tx := &domain.Transaction{
		Kind:                       domain.TxTransfer,
		Account:                    from,
		Counterparty:               to,
		Amount:                     amount,
		AvailableAfter:             src.acct.Available,
		LockedAfter:                src.acct.Locked,
		CounterpartyAvailableAfter: dst.acct.Available,
	}
	l.record(tx)
	return tx, nil
}

// ChargeFee debits cost from account. A usage fee share of cost is split
// between burn and treasury; the treasury also receives the non-fee part.
func (l *Ledger) ChargeFee(account string, cost domain.Amount) (*FeeReceipt, error) {
	if err := checkAccount(account); err != nil {
		return nil, err
	}
	if err := checkAmount(cost); err != nil {
		return nil, err
	}

	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	e := l.entry(account, false)
	if e == nil {
		return nil, &domain.InsufficientBalanceError{Account: account, Required: cost}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.acct.Available < cost {
		return nil, &domain.InsufficientBalanceError{Account: account, Available: e.acct.Available, Required: cost}
	}

	fee := cost.MulBps(l.opts.Fees.UsageFeeBps)
	burn := fee.MulBps(l.opts.Fees.BurnShareBps)
	treasury := cost - burn

	e.acct.Available -= cost
	e.acct.UpdatedAt = l.nowMs()

	l.bookMu.Lock()
	defer l.bookMu.Unlock()

	l.supply.Circulating -= cost
	l.supply.Burned += burn
	l.supply.Treasury += treasury
	l.supply.FeesCollected += fee
	l.supply.FeesBurned += burn
	l.supply.FeesReinvested += fee - burn

	tx := &domain.Transaction{
		Kind:           domain.TxFee,
		Account:        account,
		Counterparty:   l.opts.TreasuryAddress,
		Amount:         cost,
		BurnAmount:     burn,
		TreasuryAmount: treasury,
		AvailableAfter: e.acct.Available,
		LockedAfter:    e.acct.Locked,
		Reason:         "usage fee",
	}
	l.record(tx)
	l.publishSupply()

	return &FeeReceipt{Cost: cost, Fee: fee, Burned: burn, Treasury: treasury, Tx: tx}, nil
}

// Lock moves amount from available to locked. Used by staking only.
func (l *Ledger) Lock(account string, amount domain.Amount) (*domain.Transaction, error) {
	return l.moveLocked(account, amount, domain.TxStake)
}

// Unlock moves amount from locked back to available. Used by staking only.
func (l *Ledger) Unlock(account string, amount domain.Amount) (*domain.Transaction, error) {
	return l.moveLocked(account, amount, domain.TxUnstake)
}

func (l *Ledger) moveLocked(account string, amount domain.Amount, kind domain.TxKind) (*domain.Transaction, error) {
	if err := checkAccount(account); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	e := l.entry(account, false)
	if e == nil {
		if kind == domain.TxStake {
			return nil, &domain.InsufficientBalanceError{Account: account, Required: amount}
		}
		return nil, &domain.InsufficientStakeError{Account: account, Required: amount}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch kind {
	case domain.TxStake:
		if e.acct.Available < amount {
			return nil, &domain.InsufficientBalanceError{Account: account, Available: e.acct.Available, Required: amount}
		}
		e.acct.Available -= amount
		e.acct.Locked += amount
	default:
		if e.acct.Locked < amount {
			return nil, &domain.InsufficientStakeError{Account: account, Locked: e.acct.Locked, Required: amount}
		}
		e.acct.Locked -= amount
		e.acct.Available += amount
	}
	e.acct.UpdatedAt = l.nowMs()

	l.bookMu.Lock()
	defer l.bookMu.Unlock()
	if kind == domain.TxStake {
		l.locked += amount
	} else {
		l.locked -= amount
	}

	tx := &domain.Transaction{
		Kind:           kind,
		Account:        account,
		Amount:         amount,
		AvailableAfter: e.acct.Available,
		LockedAfter:    e.acct.Locked,
	}
	l.record(tx)
	return tx, nil
}

// Refund pays amount from the treasury back to account.
func (l *Ledger) Refund(account string, amount domain.Amount, reason string) (*domain.Transaction, error) {
	if err := checkAccount(account); err != nil {
		return nil, err
	}
	if err := checkAmount(amount); err != nil {
		return nil, err
	}

	l.stateMu.RLock()
	defer l.stateMu.RUnlock()

	e := l.entry(account, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	l.bookMu.Lock()
	defer l.bookMu.Unlock()

	if l.supply.Treasury < amount {
		return nil, &domain.InsufficientBalanceError{
			Account:   l.opts.TreasuryAddress,
			Available: l.supply.Treasury,
			Required:  amount,
		}
	}

	l.supply.Treasury -= amount
	l.supply.Circulating += amount
	e.acct.Available += amount
	e.acct.UpdatedAt = l.nowMs()
	e.opened = true

	tx := &domain.Transaction{
		Kind:           domain.TxRefund,
		Account:        account,
		Counterparty:   l.opts.TreasuryAddress,
		Amount:         amount,
		AvailableAfter: e.acct.Available,
		LockedAfter:    e.acct.Locked,
		Reason:         reason,
	}
	l.record(tx)
	l.publishSupply()
	return tx, nil
}

// Balance returns a copy of the account. Unknown accounts read as zero.
func (l *Ledger) Balance(account string) domain.Account {
	e := l.entry(account, false)
	if e == nil {
		return domain.Account{ID: account}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct
}

// Exists reports whether the account has ever been credited.
func (l *Ledger) Exists(account string) bool {
	e := l.entry(account, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// History returns up to limit transactions touching account, oldest first.
// limit <= 0 returns all of them.
func (l *Ledger) History(account string, limit int) []*domain.Transaction {
	l.bookMu.Lock()
	defer l.bookMu.Unlock()

	var out []*domain.Transaction
	for i := len(l.txs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if l.txs[i].Involves(account) {
			tx := *l.txs[i]
			out = append(out, &tx)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Supply returns the current supply accounting.
func (l *Ledger) Supply() domain.Supply {
	l.bookMu.Lock()
	defer l.bookMu.Unlock()
	return l.supply.Clone()
}

// Holders counts accounts with a nonzero balance.
func (l *Ledger) Holders() int {
	l.accountsMu.RLock()
	entries := make([]*accountEntry, 0, len(l.accounts))
	for _, e := range l.accounts {
		entries = append(entries, e)
	}
	l.accountsMu.RUnlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.acct.Total() > 0 {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// TotalLocked returns the sum of locked stake across accounts.
func (l *Ledger) TotalLocked() domain.Amount {
	l.bookMu.Lock()
	defer l.bookMu.Unlock()
	return l.locked
}

// Accounts returns copies of all accounts sorted by ID.
func (l *Ledger) Accounts() []domain.Account {
	l.accountsMu.RLock()
	entries := make([]*accountEntry, 0, len(l.accounts))
	for _, e := range l.accounts {
		entries = append(entries, e)
	}
	l.accountsMu.RUnlock()

	out := make([]domain.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.opened {
			out = append(out, e.acct)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TxCount returns the number of logged transactions.
func (l *Ledger) TxCount() int {
	l.bookMu.Lock()
	defer l.bookMu.Unlock()
	return len(l.txs)
}
