package ledger

import (
	"errors"
	"fmt"

	"stakegate/internal/domain"
	"stakegate/internal/observability"
)

// CheckInvariants verifies the supply equations under an exclusive snapshot:
//
//	Σ(available+locked) == Circulating
//	Circulating + Burned + Treasury + Unissued == Total
//	Σ(allocation remaining) == Unissued
//
// A violation is a bug; it is logged at crit and wraps ErrInvariantViolation.
func (l *Ledger) CheckInvariants() error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.checkLocked()
}

func (l *Ledger) checkLocked() error {
	var held, locked domain.Amount
	var errs []error

	l.accountsMu.RLock()
	for id, e := range l.accounts {
		if e.acct.Available < 0 || e.acct.Locked < 0 {
			errs = append(errs, fmt.Errorf("account %s negative: available %s locked %s", id, e.acct.Available, e.acct.Locked))
		}
		held += e.acct.Total()
		locked += e.acct.Locked
	}
	l.accountsMu.RUnlock()

	s := l.supply
	if held != s.Circulating {
		errs = append(errs, fmt.Errorf("accounts hold %s, circulating is %s", held, s.Circulating))
	}
	if s.Accounted() != s.Total {
		errs = append(errs, fmt.Errorf("circulating+burned+treasury+unissued is %s, total is %s", s.Accounted(), s.Total))
	}
	if locked != l.locked {
		errs = append(errs, fmt.Errorf("accounts lock %s, tracked locked is %s", locked, l.locked))
	}
	if s.Burned < 0 || s.Treasury < 0 || s.Unissued < 0 {
		errs = append(errs, fmt.Errorf("negative supply bucket: %+v", s))
	}
	if len(s.Allocations) > 0 {
		if s.AllocationRemaining() != s.Unissued {
			errs = append(errs, fmt.Errorf("allocations have %s left, unissued is %s", s.AllocationRemaining(), s.Unissued))
		}
		for _, a := range s.Allocations {
			if a.Issued < 0 || a.Issued > a.Cap {
				errs = append(errs, fmt.Errorf("allocation %s issued %s of %s", a.Name, a.Issued, a.Cap))
			}
		}
	}
	if s.FeesCollected != s.FeesBurned+s.FeesReinvested {
		errs = append(errs, fmt.Errorf("fees collected %s, burned+reinvested %s", s.FeesCollected, s.FeesBurned+s.FeesReinvested))
	}

	if len(errs) == 0 {
		return nil
	}
	err := fmt.Errorf("%w: %v", domain.ErrInvariantViolation, errors.Join(errs...))
	l.log.Crit("ledger invariant violated", "err", err)
	observability.RecordInvariantViolation()
	return err
}

// totals are the supply buckets the log determines.
type totals struct {
	total, circulating, burned, treasury, unissued domain.Amount
}

func totalsOf(s domain.Supply) totals {
	return totals{s.Total, s.Circulating, s.Burned, s.Treasury, s.Unissued}
}

// Reconcile replays the transaction log from genesis and compares the result
// with the live balances and supply. Allocations and fee counters are not
// compared.
func (l *Ledger) Reconcile() error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	type bal struct{ available, locked domain.Amount }
	replayed := make(map[string]*bal)
	get := func(id string) *bal {
		b, ok := replayed[id]
		if !ok {
			b = &bal{}
			replayed[id] = b
		}
		return b
	}

	supply := totals{total: l.genesis.Total, treasury: l.genesis.Treasury, unissued: l.genesis.Unissued}
	for _, tx := range l.txs {
		switch tx.Kind {
		case domain.TxMint, domain.TxReward, domain.TxBonus:
			get(tx.Account).available += tx.Amount
			supply.unissued -= tx.Amount
			supply.circulating += tx.Amount
		case domain.TxRefund:
			get(tx.Account).available += tx.Amount
			supply.treasury -= tx.Amount
			supply.circulating += tx.Amount
		case domain.TxTransfer:
			get(tx.Account).available -= tx.Amount
			get(tx.Counterparty).available += tx.Amount
		case domain.TxFee:
			get(tx.Account).available -= tx.Amount
			supply.circulating -= tx.Amount
			supply.burned += tx.BurnAmount
			supply.treasury += tx.TreasuryAmount
		case domain.TxBurn:
			supply.treasury -= tx.Amount
			supply.burned += tx.Amount
		case domain.TxStake:
			b := get(tx.Account)
			b.available -= tx.Amount
			b.locked += tx.Amount
		case domain.TxUnstake:
			b := get(tx.Account)
			b.available += tx.Amount
			b.locked -= tx.Amount
		default:
			return fmt.Errorf("%w: tx %d has unknown kind %q", domain.ErrInvariantViolation, tx.Seq, tx.Kind)
		}
	}

	var errs []error
	l.accountsMu.RLock()
	for id, e := range l.accounts {
		b := get(id)
		if b.available != e.acct.Available || b.locked != e.acct.Locked {
			errs = append(errs, fmt.Errorf("account %s: log gives %s/%s, balance is %s/%s",
				id, b.available, b.locked, e.acct.Available, e.acct.Locked))
		}
	}
	for id := range replayed {
		if _, ok := l.accounts[id]; !ok {
			errs = append(errs, fmt.Errorf("account %s appears in log only", id))
		}
	}
	l.accountsMu.RUnlock()

	live := totalsOf(l.supply)
	if supply != live {
		errs = append(errs, fmt.Errorf("log gives supply %+v, ledger has %+v", supply, live))
	}
	if len(errs) == 0 {
		return nil
	}
	err := fmt.Errorf("%w: reconcile: %v", domain.ErrInvariantViolation, errors.Join(errs...))
	l.log.Crit("ledger reconcile failed", "err", err)
	observability.RecordInvariantViolation()
	return err
}

// State is a point-in-time copy of the ledger for persistence.
type State struct {
	Accounts []domain.Account
	Supply   domain.Supply
	Seq      int64
}

// Snapshot returns a consistent copy of accounts and supply.
func (l *Ledger) Snapshot() State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	st := State{Supply: l.supply.Clone(), Seq: l.seq}
	l.accountsMu.RLock()
	for _, e := range l.accounts {
		if e.opened {
			st.Accounts = append(st.Accounts, e.acct)
		}
	}
	l.accountsMu.RUnlock()
	return st
}

// Restore replaces the ledger contents with persisted state and its log.
// The restored state must satisfy the invariants.
func (l *Ledger) Restore(st State, txs []*domain.Transaction) error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if st.Supply.Total != l.supply.Total {
		return fmt.Errorf("%w: persisted total supply %s differs from configured %s",
			domain.ErrInvariantViolation, st.Supply.Total, l.supply.Total)
	}

	accounts := make(map[string]*accountEntry, len(st.Accounts))
	var locked domain.Amount
	for _, a := range st.Accounts {
		accounts[a.ID] = &accountEntry{acct: a, opened: true}
		locked += a.Locked
	}

	l.accountsMu.Lock()
	l.accounts = accounts
	l.accountsMu.Unlock()

	// State saved without allocations keeps minting against Unissued only.
	supply := st.Supply.Clone()

	l.bookMu.Lock()
	l.genesis = l.genesisOf(supply)
	l.supply = supply
	l.locked = locked
	l.seq = st.Seq
	l.txs = make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		c := *tx
		l.txs = append(l.txs, &c)
		if c.Seq > l.seq {
			l.seq = c.Seq
		}
	}
	l.pending = nil
	l.dirty = make(map[string]struct{})
	l.publishSupply()
	l.bookMu.Unlock()

	return l.checkLocked()
}

// genesisOf derives the supply the log replays from: the treasury
// allocation issued to the treasury, everything else unissued.
func (l *Ledger) genesisOf(s domain.Supply) domain.Supply {
	g := domain.Supply{Total: s.Total, Unissued: s.Total}
	if l.opts.TreasuryAllocation == "" {
		return g
	}
	if a, ok := s.Allocation(l.opts.TreasuryAllocation); ok {
		g.Treasury = a.Cap
		g.Unissued -= a.Cap
	}
	return g
}

// DrainTransactions returns transactions logged since the previous drain.
func (l *Ledger) DrainTransactions() []*domain.Transaction {
	l.bookMu.Lock()
	defer l.bookMu.Unlock()
	out := l.pending
	l.pending = nil
	return out
}

// DrainDirty returns copies of accounts mutated since the previous drain,
// together with the current supply.
func (l *Ledger) DrainDirty() ([]domain.Account, domain.Supply) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	l.bookMu.Lock()
	ids := l.dirty
	l.dirty = make(map[string]struct{})
	supply := l.supply.Clone()
	l.bookMu.Unlock()

	out := make([]domain.Account, 0, len(ids))
	l.accountsMu.RLock()
	for id := range ids {
		if e, ok := l.accounts[id]; ok {
			out = append(out, e.acct)
		}
	}
	l.accountsMu.RUnlock()
	return out, supply
}

// Requeue returns drained items after a failed flush so the next flush retries them.
func (l *Ledger) Requeue(txs []*domain.Transaction, accounts []domain.Account) {
	l.bookMu.Lock()
	defer l.bookMu.Unlock()
	l.pending = append(txs, l.pending...)
	for _, a := range accounts {
		l.dirty[a.ID] = struct{}{}
	}
}
