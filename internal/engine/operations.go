package engine

import (
	"context"

	"stakegate/internal/domain"
	"stakegate/internal/events"
	"stakegate/internal/governance"
	"stakegate/internal/scheduler"
	"stakegate/internal/staking"
)

// Mint credits account from the allocation its reason maps to.
func (e *Engine) Mint(account string, amount domain.Amount, reason string) (*domain.Transaction, error) {
	return e.MintFrom("", account, amount, reason)
}

// MintFrom credits account from the named allocation. An empty allocation
// picks it from reason.
func (e *Engine) MintFrom(allocation, account string, amount domain.Amount, reason string) (*domain.Transaction, error) {
	var tx *domain.Transaction
	var err error
	if allocation == "" {
		tx, err = e.ledger.Mint(account, amount, reason)
	} else {
		tx, err = e.ledger.MintFrom(allocation, account, amount, reason)
	}
	if err != nil {
		return nil, err
	}
	e.log.Info("minted", "account", account, "amount", amount, "reason", reason, "allocation", allocation, "seq", tx.Seq)
	e.events.Publish(events.New(events.AccountMinted, account, map[string]any{
		"amount":     amount,
		"reason":     reason,
		"allocation": allocation,
		"seq":        tx.Seq,
	}))
	return tx, nil
}

// Transfer moves amount of available balance between accounts.
func (e *Engine) Transfer(from, to string, amount domain.Amount) (*domain.Transaction, error) {
	tx, err := e.ledger.Transfer(from, to, amount)
	if err != nil {
		return nil, err
	}
	e.events.Publish(events.New(events.TransferDone, from, map[string]any{
		"to":     to,
		"amount": amount,
		"seq":    tx.Seq,
	}))
	return tx, nil
}

// Burn destroys treasury tokens.
func (e *Engine) Burn(amount domain.Amount, source string) (*domain.Transaction, error) {
	tx, err := e.ledger.Burn(amount, source)
	if err != nil {
		return nil, err
	}
	e.log.Info("burned", "amount", amount, "source", source, "seq", tx.Seq)
	return tx, nil
}

// Stake locks amount and reports a tier change when one happens.
func (e *Engine) Stake(account string, amount domain.Amount) (*staking.Receipt, error) {
	r, err := e.staking.Stake(account, amount)
	if err != nil {
		return nil, err
	}
	e.publishStake(account, "stake", amount, r)
	return r, nil
}

// Unstake unlocks amount and reports a tier change when one happens.
func (e *Engine) Unstake(account string, amount domain.Amount) (*staking.Receipt, error) {
	r, err := e.staking.Unstake(account, amount)
	if err != nil {
		return nil, err
	}
	e.publishStake(account, "unstake", amount, r)
	return r, nil
}

func (e *Engine) publishStake(account, op string, amount domain.Amount, r *staking.Receipt) {
	e.events.Publish(events.New(events.StakeChanged, account, map[string]any{
		"op":     op,
		"amount": amount,
		"locked": r.Locked,
		"tier":   r.Tier,
	}))
	if r.TierChanged() {
		e.log.Info("tier changed", "account", account, "from", r.PreviousTier, "to", r.Tier)
		e.events.Publish(events.New(events.TierChanged, account, map[string]any{
			"from": r.PreviousTier,
			"to":   r.Tier,
		}))
	}
}

// ClaimRewards pays out accrued staking rewards. Zero rewards is not an error.
func (e *Engine) ClaimRewards(account string) (domain.Amount, error) {
	amount, tx, err := e.staking.ClaimRewards(account)
	if err != nil {
		return 0, err
	}
	if tx != nil {
		e.events.Publish(events.New(events.RewardsClaimed, account, map[string]any{
			"amount": amount,
			"seq":    tx.Seq,
		}))
	}
	return amount, nil
}

// Submit validates, prices, charges and enqueues a production request.
func (e *Engine) Submit(ctx context.Context, user string, req domain.ResourceRequest) (*scheduler.Submission, error) {
	return e.scheduler.Submit(ctx, user, req)
}

// CreateProposal opens a proposal for voting.
func (e *Engine) CreateProposal(proposer string, t domain.ProposalType, payload domain.ProposalPayload) (*domain.Proposal, error) {
	p, err := e.governance.CreateProposal(proposer, t, payload)
	if err != nil {
		return nil, err
	}
	e.log.Info("proposal created", "proposal", p.ID, "proposer", proposer, "type", t)
	return p, nil
}

// Vote casts a stake-weighted ballot.
func (e *Engine) Vote(voter, proposalID string, support bool) (*domain.Vote, error) {
	return e.governance.Vote(voter, proposalID, support)
}

// Resolve closes voting on a proposal whose deadline has passed.
func (e *Engine) Resolve(proposalID string) (*domain.Proposal, error) {
	return e.governance.Resolve(proposalID)
}

// Execute marks a passed proposal executed.
func (e *Engine) Execute(proposalID, executor string) (*domain.Proposal, error) {
	p, err := e.governance.Execute(proposalID, executor)
	if err != nil {
		return nil, err
	}
	e.log.Info("proposal executed", "proposal", p.ID, "executor", executor, "type", p.Type)
	return p, nil
}

// Overview is an economy-wide snapshot.
type Overview struct {
	Symbol       string            `json:"symbol"`
	Supply       domain.Supply     `json:"supply"`
	Accounts     int               `json:"accounts"`
	Transactions int               `json:"transactions"`
	Staking      staking.Stats     `json:"staking"`
	Governance   governance.Stats  `json:"governance"`
	Jobs         scheduler.Stats   `json:"jobs"`
	QueueDepth   int               `json:"queue_depth"`
	Addresses    map[string]string `json:"addresses"`
	UptimeMs     int64             `json:"uptime_ms"`
}

// Overview collects the current economy snapshot.
func (e *Engine) Overview() Overview {
	return Overview{
		Symbol:       e.cfg.Token.Symbol,
		Supply:       e.ledger.Supply(),
		Accounts:     len(e.ledger.Accounts()),
		Transactions: e.ledger.TxCount(),
		Staking:      e.staking.Stats(),
		Governance:   e.governance.Stats(),
		Jobs:         e.scheduler.Stats(),
		QueueDepth:   len(e.scheduler.Queued()),
		Addresses: map[string]string{
			"treasury": e.treasuryAddr,
			"burn":     e.burnAddr,
		},
		UptimeMs: e.Uptime().Milliseconds(),
	}
}
