package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// ProposalStore implements storage.ProposalStore using PostgreSQL.
// Payload params are stored as JSONB.
type ProposalStore struct {
	pool *Pool
}

// NewProposalStore creates a new ProposalStore.
func NewProposalStore(pool *Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProposalStore = (*ProposalStore)(nil)

const proposalColumns = `
	id, proposer, type, title, description, params, created_at, voting_deadline,
	status, votes_for, votes_against, voter_count, resolved_at, executed_at, executed_by
`

// UpsertBulk writes the latest state of the given proposals atomically.
func (s *ProposalStore) UpsertBulk(ctx context.Context, proposals []domain.Proposal) error {
	if len(proposals) == 0 {
		return nil
	}

	query := `
		INSERT INTO proposals (` + proposalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			votes_for = EXCLUDED.votes_for,
			votes_against = EXCLUDED.votes_against,
			voter_count = EXCLUDED.voter_count,
			resolved_at = EXCLUDED.resolved_at,
			executed_at = EXCLUDED.executed_at,
			executed_by = EXCLUDED.executed_by
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range proposals {
			if p.ID == "" || !p.Status.IsValid() {
				return fmt.Errorf("%w: proposal %q", storage.ErrInvalidInput, p.ID)
			}
			params := p.Payload.Params
			if params == nil {
				params = map[string]string{}
			}
			_, err := tx.Exec(ctx, query,
				p.ID, p.Proposer, string(p.Type), p.Payload.Title, p.Payload.Description, params,
				p.CreatedAt, p.VotingDeadline, string(p.Status),
				int64(p.VotesFor), int64(p.VotesAgainst), p.VoterCount,
				p.ResolvedAt, p.ExecutedAt, p.ExecutedBy,
			)
			if err != nil {
				return fmt.Errorf("upsert proposal %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a proposal. Returns ErrNotFound if not exists.
func (s *ProposalStore) GetByID(ctx context.Context, id string) (*domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`

	p, err := scanProposal(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// List returns all proposals ordered by created_at ASC, id ASC.
func (s *ProposalStore) List(ctx context.Context) ([]domain.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals ORDER BY created_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var result []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return result, nil
}

func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var (
		p                 domain.Proposal
		typ, status       string
		params            map[string]string
		votesFor, against int64
	)
	err := row.Scan(
		&p.ID, &p.Proposer, &typ, &p.Payload.Title, &p.Payload.Description, &params,
		&p.CreatedAt, &p.VotingDeadline, &status,
		&votesFor, &against, &p.VoterCount,
		&p.ResolvedAt, &p.ExecutedAt, &p.ExecutedBy,
	)
	if err != nil {
		return nil, err
	}
	p.Type = domain.ProposalType(typ)
	p.Status = domain.ProposalStatus(status)
	p.VotesFor = domain.Amount(votesFor)
	p.VotesAgainst = domain.Amount(against)
	if len(params) > 0 {
		p.Payload.Params = params
	}
	return &p, nil
}
