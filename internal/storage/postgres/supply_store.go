package postgres

import (
	"context"
	"fmt"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// SupplyStore implements storage.SupplyStore using PostgreSQL.
// The supply lives in a single row with id 1.
type SupplyStore struct {
	pool *Pool
}

// NewSupplyStore creates a new SupplyStore.
func NewSupplyStore(pool *Pool) *SupplyStore {
	return &SupplyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SupplyStore = (*SupplyStore)(nil)

// Save replaces the stored supply. Allocations are stored as JSONB.
func (s *SupplyStore) Save(ctx context.Context, sup domain.Supply) error {
	query := `
		INSERT INTO supply (id, total, circulating, burned, treasury, unissued,
			fees_collected, fees_burned, fees_reinvested, allocations, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			total = EXCLUDED.total,
			circulating = EXCLUDED.circulating,
			burned = EXCLUDED.burned,
			treasury = EXCLUDED.treasury,
			unissued = EXCLUDED.unissued,
			fees_collected = EXCLUDED.fees_collected,
			fees_burned = EXCLUDED.fees_burned,
			fees_reinvested = EXCLUDED.fees_reinvested,
			allocations = EXCLUDED.allocations,
			updated_at = NOW()
	`

	allocations := sup.Allocations
	if allocations == nil {
		allocations = []domain.Allocation{}
	}
	_, err := s.pool.Exec(ctx, query,
		int64(sup.Total), int64(sup.Circulating), int64(sup.Burned),
		int64(sup.Treasury), int64(sup.Unissued),
		int64(sup.FeesCollected), int64(sup.FeesBurned), int64(sup.FeesReinvested),
		allocations,
	)
	if err != nil {
		return fmt.Errorf("save supply: %w", err)
	}
	return nil
}

// Load returns the stored supply. Returns ErrNotFound if never saved.
func (s *SupplyStore) Load(ctx context.Context) (*domain.Supply, error) {
	query := `
		SELECT total, circulating, burned, treasury, unissued,
			fees_collected, fees_burned, fees_reinvested, allocations
		FROM supply
		WHERE id = 1
	`

	var total, circulating, burned, treasury, unissued int64
	var collected, feesBurned, reinvested int64
	var allocations []domain.Allocation
	err := s.pool.QueryRow(ctx, query).Scan(
		&total, &circulating, &burned, &treasury, &unissued,
		&collected, &feesBurned, &reinvested, &allocations,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load supply: %w", err)
	}
	if len(allocations) == 0 {
		allocations = nil
	}

	return &domain.Supply{
		Total:          domain.Amount(total),
		Circulating:    domain.Amount(circulating),
		Burned:         domain.Amount(burned),
		Treasury:       domain.Amount(treasury),
		Unissued:       domain.Amount(unissued),
		Allocations:    allocations,
		FeesCollected:  domain.Amount(collected),
		FeesBurned:     domain.Amount(feesBurned),
		FeesReinvested: domain.Amount(reinvested),
	}, nil
}
