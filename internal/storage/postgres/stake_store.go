package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// StakeStore implements storage.StakeStore using PostgreSQL.
type StakeStore struct {
	pool *Pool
}

// NewStakeStore creates a new StakeStore.
func NewStakeStore(pool *Pool) *StakeStore {
	return &StakeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StakeStore = (*StakeStore)(nil)

// UpsertBulk writes the given positions atomically.
func (s *StakeStore) UpsertBulk(ctx context.Context, positions []domain.StakePosition) error {
	if len(positions) == 0 {
		return nil
	}

	query := `
		INSERT INTO stakes (account, reward_checkpoint, accrued_rewards, total_rewards_earned, staked_since)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account) DO UPDATE SET
			reward_checkpoint = EXCLUDED.reward_checkpoint,
			accrued_rewards = EXCLUDED.accrued_rewards,
			total_rewards_earned = EXCLUDED.total_rewards_earned,
			staked_since = EXCLUDED.staked_since
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range positions {
			if p.Account == "" {
				return fmt.Errorf("%w: empty stake account", storage.ErrInvalidInput)
			}
			_, err := tx.Exec(ctx, query,
				p.Account, p.RewardCheckpoint, int64(p.AccruedRewards),
				int64(p.TotalRewardsEarned), p.StakedSince,
			)
			if err != nil {
				return fmt.Errorf("upsert stake %s: %w", p.Account, err)
			}
		}
		return nil
	})
}

// GetByAccount retrieves a position. Returns ErrNotFound if not exists.
func (s *StakeStore) GetByAccount(ctx context.Context, account string) (*domain.StakePosition, error) {
	query := `
		SELECT account, reward_checkpoint, accrued_rewards, total_rewards_earned, staked_since
		FROM stakes
		WHERE account = $1
	`

	p, err := scanStake(s.pool.QueryRow(ctx, query, account))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get stake: %w", err)
	}
	return p, nil
}

// List returns all positions ordered by account.
func (s *StakeStore) List(ctx context.Context) ([]domain.StakePosition, error) {
	query := `
		SELECT account, reward_checkpoint, accrued_rewards, total_rewards_earned, staked_since
		FROM stakes
		ORDER BY account ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stakes: %w", err)
	}
	defer rows.Close()

	var result []domain.StakePosition
	for rows.Next() {
		p, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stake: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stakes: %w", err)
	}
	return result, nil
}

func scanStake(row pgx.Row) (*domain.StakePosition, error) {
	var (
		p             domain.StakePosition
		accrued, earn int64
	)
	if err := row.Scan(&p.Account, &p.RewardCheckpoint, &accrued, &earn, &p.StakedSince); err != nil {
		return nil, err
	}
	p.AccruedRewards = domain.Amount(accrued)
	p.TotalRewardsEarned = domain.Amount(earn)
	return &p, nil
}
