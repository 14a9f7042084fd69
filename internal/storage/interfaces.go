package storage

import (
	"context"

	"stakegate/internal/domain"
)

// AccountStore provides access to accounts storage.
type AccountStore interface {
	// UpsertBulk writes the latest balances of the given accounts atomically.
	UpsertBulk(ctx context.Context, accounts []domain.Account) error

	// GetByID retrieves an account. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// List returns all accounts ordered by id.
	List(ctx context.Context) ([]domain.Account, error)
}

// SupplyStore holds the single supply row.
type SupplyStore interface {
	// Save replaces the stored supply.
	Save(ctx context.Context, s domain.Supply) error

	// Load returns the stored supply. Returns ErrNotFound if never saved.
	Load(ctx context.Context) (*domain.Supply, error)
}

// TransactionStore provides access to the append-only transaction log.
type TransactionStore interface {
	// InsertBulk appends transactions atomically. Fails entire batch on any duplicate seq.
	InsertBulk(ctx context.Context, txs []*domain.Transaction) error

	// GetByAccount returns the last limit transactions involving account, ordered by seq ASC.
	// A non-positive limit returns all of them.
	GetByAccount(ctx context.Context, account string, limit int) ([]*domain.Transaction, error)

	// GetBySeqRange returns transactions with seq in [from, to] (inclusive), ordered by seq ASC.
	GetBySeqRange(ctx context.Context, from, to int64) ([]*domain.Transaction, error)

	// List returns the whole log ordered by seq ASC.
	List(ctx context.Context) ([]*domain.Transaction, error)
}

// StakeStore provides access to stake positions.
type StakeStore interface {
	// UpsertBulk writes the given positions atomically.
	UpsertBulk(ctx context.Context, positions []domain.StakePosition) error

	// GetByAccount retrieves a position. Returns ErrNotFound if not exists.
	GetByAccount(ctx context.Context, account string) (*domain.StakePosition, error)

	// List returns all positions ordered by account.
	List(ctx context.Context) ([]domain.StakePosition, error)
}

// ProposalStore provides access to proposals storage.
type ProposalStore interface {
	// UpsertBulk writes the latest state of the given proposals atomically.
	UpsertBulk(ctx context.Context, proposals []domain.Proposal) error

	// GetByID retrieves a proposal. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Proposal, error)

	// List returns all proposals ordered by created_at ASC, id ASC.
	List(ctx context.Context) ([]domain.Proposal, error)
}

// VoteStore provides access to the append-only vote log.
type VoteStore interface {
	// InsertBulk appends votes atomically. Fails entire batch on duplicate (proposal_id, voter).
	InsertBulk(ctx context.Context, votes []domain.Vote) error

	// GetByProposal returns the votes on a proposal ordered by cast_at ASC, voter ASC.
	GetByProposal(ctx context.Context, proposalID string) ([]domain.Vote, error)

	// List returns all votes ordered by cast_at ASC, proposal_id ASC, voter ASC.
	List(ctx context.Context) ([]domain.Vote, error)
}

// JobStore provides access to scheduler jobs.
type JobStore interface {
	// UpsertBulk writes the latest state of the given jobs atomically.
	UpsertBulk(ctx context.Context, jobs []domain.Job) error

	// GetByID retrieves a job. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Job, error)

	// GetByOwner returns the owner's jobs ordered by seq ASC.
	GetByOwner(ctx context.Context, owner string) ([]domain.Job, error)

	// List returns all jobs ordered by seq ASC.
	List(ctx context.Context) ([]domain.Job, error)
}

// Stores groups one backend's implementations.
type Stores struct {
	Accounts     AccountStore
	Supply       SupplyStore
	Transactions TransactionStore
	Stakes       StakeStore
	Proposals    ProposalStore
	Votes        VoteStore
	Jobs         JobStore

	// Close releases the backend's connections. May be nil.
	Close func() error
}
