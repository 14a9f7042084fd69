package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

func TestAccountStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAccountStore(pool)

	err := store.UpsertBulk(ctx, []domain.Account{
		{ID: "bob", Available: domain.Tokens(5), CreatedAt: 1000, UpdatedAt: 1000},
		{ID: "alice", Available: domain.Tokens(500), Locked: domain.Tokens(500), CreatedAt: 1000, UpdatedAt: 2000},
	})
	require.NoError(t, err)

	// Second write keeps created_at.
	err = store.UpsertBulk(ctx, []domain.Account{
		{ID: "bob", Available: domain.Tokens(3), CreatedAt: 9999, UpdatedAt: 3000},
	})
	require.NoError(t, err)

	bob, err := store.GetByID(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.Tokens(3), bob.Available)
	assert.Equal(t, int64(1000), bob.CreatedAt)
	assert.Equal(t, int64(3000), bob.UpdatedAt)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].ID)
	assert.Equal(t, domain.Tokens(500), all[0].Locked)

	_, err = store.GetByID(ctx, "nobody")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestSupplyStore_SaveLoad(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSupplyStore(pool)

	_, err := store.Load(ctx)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	sup := domain.Supply{
		Total:       domain.Tokens(1_000_000_000),
		Circulating: domain.Tokens(1000),
		Burned:      480_000,
		Treasury:    320_000,
		Unissued:    domain.Tokens(1_000_000_000) - domain.Tokens(1000) - 800_000,
	}
	require.NoError(t, store.Save(ctx, sup))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.Allocations)

	sup.FeesCollected = 800_000
	sup.FeesBurned = 480_000
	sup.FeesReinvested = 320_000
	sup.Allocations = []domain.Allocation{
		{Name: "community", ShareBps: 9000, Cap: domain.Tokens(900_000_000), Issued: domain.Tokens(1000)},
		{Name: "reserve", ShareBps: 1000, Cap: domain.Tokens(100_000_000)},
	}

	sup.Burned += 1
	sup.Unissued -= 1
	require.NoError(t, store.Save(ctx, sup))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sup, *got)
	assert.Equal(t, got.Total, got.Accounted())
}

func TestTransactionStore_InsertAndQuery(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionStore(pool)

	txs := []*domain.Transaction{
		{Seq: 1, Timestamp: 1000, Kind: domain.TxMint, Account: "alice", Amount: domain.Tokens(1000), AvailableAfter: domain.Tokens(1000)},
		{Seq: 2, Timestamp: 1100, Kind: domain.TxTransfer, Account: "alice", Counterparty: "bob", Amount: domain.Tokens(10), AvailableAfter: domain.Tokens(990), CounterpartyAvailableAfter: domain.Tokens(10)},
		{Seq: 3, Timestamp: 1200, Kind: domain.TxFee, Account: "bob", Amount: 800_000, BurnAmount: 480_000, TreasuryAmount: 320_000, AvailableAfter: 999_200_000, Reason: "job"},
		{Seq: 4, Timestamp: 1300, Kind: domain.TxStake, Account: "alice", Amount: domain.Tokens(500), AvailableAfter: domain.Tokens(490), LockedAfter: domain.Tokens(500)},
	}
	require.NoError(t, store.InsertBulk(ctx, txs))

	bob, err := store.GetByAccount(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, bob, 2)
	assert.Equal(t, int64(2), bob[0].Seq, "transfer recipient sees the transfer")
	assert.Equal(t, domain.TxFee, bob[1].Kind)
	assert.Equal(t, domain.Amount(480_000), bob[1].BurnAmount)
	assert.Equal(t, "job", bob[1].Reason)

	recent, err := store.GetByAccount(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(2), recent[0].Seq)
	assert.Equal(t, int64(4), recent[1].Seq)

	rng, err := store.GetBySeqRange(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, rng, 2)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, *txs[3], *all[3])
}

func TestTransactionStore_DuplicateFailsBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.Transaction{
		{Seq: 1, Timestamp: 1000, Kind: domain.TxMint, Account: "alice", Amount: 1},
	}))

	err := store.InsertBulk(ctx, []*domain.Transaction{
		{Seq: 2, Timestamp: 1100, Kind: domain.TxMint, Account: "alice", Amount: 1},
		{Seq: 1, Timestamp: 1200, Kind: domain.TxMint, Account: "alice", Amount: 1},
	})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed batch must not leave rows behind")

	err = store.InsertBulk(ctx, []*domain.Transaction{{Seq: 5, Kind: "bogus"}})
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}

func TestStakeStore_UpsertAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewStakeStore(pool)

	require.NoError(t, store.UpsertBulk(ctx, []domain.StakePosition{
		{Account: "carol", RewardCheckpoint: 1000, StakedSince: 1000},
		{Account: "alice", RewardCheckpoint: 1000, StakedSince: 500},
	}))
	require.NoError(t, store.UpsertBulk(ctx, []domain.StakePosition{
		{Account: "carol", RewardCheckpoint: 5000, AccruedRewards: 42, TotalRewardsEarned: 7, StakedSince: 1000},
	}))

	carol, err := store.GetByAccount(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(42), carol.AccruedRewards)
	assert.Equal(t, domain.Amount(7), carol.TotalRewardsEarned)
	assert.Equal(t, int64(5000), carol.RewardCheckpoint)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Account)

	_, err = store.GetByAccount(ctx, "dave")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
