package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// VoteStore implements storage.VoteStore using PostgreSQL.
type VoteStore struct {
	pool *Pool
}

// NewVoteStore creates a new VoteStore.
func NewVoteStore(pool *Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)

// InsertBulk appends votes atomically. Fails entire batch on duplicate (proposal_id, voter).
// The referenced proposals must already be stored.
func (s *VoteStore) InsertBulk(ctx context.Context, votes []domain.Vote) error {
	if len(votes) == 0 {
		return nil
	}

	query := `
		INSERT INTO votes (proposal_id, voter, support, weight, cast_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, v := range votes {
			if v.ProposalID == "" || v.Voter == "" || !v.Weight.IsPositive() {
				return storage.ErrInvalidInput
			}
			_, err := tx.Exec(ctx, query, v.ProposalID, v.Voter, v.Support, int64(v.Weight), v.CastAt)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert vote %s/%s: %w", v.ProposalID, v.Voter, err)
			}
		}
		return nil
	})
}

// GetByProposal returns the votes on a proposal ordered by cast_at ASC, voter ASC.
func (s *VoteStore) GetByProposal(ctx context.Context, proposalID string) ([]domain.Vote, error) {
	query := `
		SELECT proposal_id, voter, support, weight, cast_at
		FROM votes
		WHERE proposal_id = $1
		ORDER BY cast_at ASC, voter ASC
	`

	rows, err := s.pool.Query(ctx, query, proposalID)
	if err != nil {
		return nil, fmt.Errorf("query votes by proposal: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

// List returns all votes ordered by cast_at ASC, proposal_id ASC, voter ASC.
func (s *VoteStore) List(ctx context.Context) ([]domain.Vote, error) {
	query := `
		SELECT proposal_id, voter, support, weight, cast_at
		FROM votes
		ORDER BY cast_at ASC, proposal_id ASC, voter ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	return scanVotes(rows)
}

func scanVotes(rows pgx.Rows) ([]domain.Vote, error) {
	var result []domain.Vote
	for rows.Next() {
		var (
			v      domain.Vote
			weight int64
		)
		if err := rows.Scan(&v.ProposalID, &v.Voter, &v.Support, &weight, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Weight = domain.Amount(weight)
		result = append(result, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}

	return result, nil
}
