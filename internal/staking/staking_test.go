package staking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/ledger"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger, *fakeClock) {
	t.Helper()
	cfg := config.Default()
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	l := ledger.New(ledger.Options{
		TotalSupply: cfg.Token.TotalSupply.Amount(),
		Fees:        cfg.Fees,
		Now:         clock.Now,
	})
	e := New(Options{Tiers: cfg.Tiers, Ledger: l, Now: clock.Now})
	return e, l, clock
}

func TestTierFor_Thresholds(t *testing.T) {
	e, _, _ := newTestEngine(t)

	tests := []struct {
		locked domain.Amount
		want   domain.Tier
	}{
		{0, domain.TierBasic},
		{domain.Tokens(99), domain.TierBasic},
		{domain.Tokens(100) - 1, domain.TierBasic},
		{domain.Tokens(100), domain.TierAdvanced},
		{domain.Tokens(999), domain.TierAdvanced},
		{domain.Tokens(1000), domain.TierPro},
		{domain.Tokens(9999), domain.TierPro},
		{domain.Tokens(10_000), domain.TierStudio},
		{domain.Tokens(5_000_000), domain.TierStudio},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.TierFor(tt.locked), "locked %s", tt.locked)
	}
}

func TestTierFor_Monotonic(t *testing.T) {
	e, _, _ := newTestEngine(t)

	prev := e.TierFor(0)
	for tokens := int64(0); tokens <= 12_000; tokens += 7 {
		tier := e.TierFor(domain.Tokens(tokens))
		require.GreaterOrEqual(t, int(tier), int(prev), "tier decreased at %d tokens", tokens)
		prev = tier
	}
}

func TestPriorityScore_Monotonic(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for _, tier := range domain.AllTiers {
		prev := e.PriorityScore(tier, 0)
		for _, tokens := range []int64{1, 2, 10, 100, 1000, 10_000, 1_000_000} {
			score := e.PriorityScore(tier, domain.Tokens(tokens))
			assert.Greater(t, score, prev, "tier %s at %d tokens", tier, tokens)
			prev = score
		}
	}

	stake := domain.Tokens(500)
	for i := 1; i < len(domain.AllTiers); i++ {
		lower := e.PriorityScore(domain.AllTiers[i-1], stake)
		higher := e.PriorityScore(domain.AllTiers[i], stake)
		assert.Greater(t, higher, lower)
	}
}

func TestStakeUnstake_RoundTrip(t *testing.T) {
	e, l, _ := newTestEngine(t)
	_, err := l.Mint("alice", domain.Tokens(1000), "genesis")
	require.NoError(t, err)
	before := l.Balance("alice")

	r, err := e.Stake("alice", domain.Tokens(500))
	require.NoError(t, err)
	assert.Equal(t, domain.TierAdvanced, r.Tier)
	assert.Equal(t, domain.TierBasic, r.PreviousTier)
	assert.True(t, r.TierChanged())

	r, err = e.Unstake("alice", domain.Tokens(500))
	require.NoError(t, err)
	assert.Equal(t, domain.TierBasic, r.Tier)

	after := l.Balance("alice")
	assert.Equal(t, before.Available, after.Available)
	assert.Equal(t, before.Locked, after.Locked)
	assert.Equal(t, domain.Amount(0), e.PendingRewards("alice"))
	require.NoError(t, l.CheckInvariants())
}

func TestStake_Errors(t *testing.T) {
	e, l, _ := newTestEngine(t)
	_, err := l.Mint("alice", domain.Tokens(10), "genesis")
	require.NoError(t, err)

	_, err = e.Stake("alice", domain.Tokens(11))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = e.Stake("alice", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.Unstake("alice", 1)
	require.ErrorIs(t, err, domain.ErrInsufficientStake)
	var ise *domain.InsufficientStakeError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, domain.Amount(0), ise.Locked)
}

func TestReward(t *testing.T) {
	assert.Equal(t, domain.Tokens(150), Reward(domain.Tokens(1000), 1500, Year))
	assert.Equal(t, domain.Tokens(25), Reward(domain.Tokens(500), 1000, Year/2))
	assert.Equal(t, domain.Amount(0), Reward(0, 1000, Year))
	assert.Equal(t, domain.Amount(0), Reward(domain.Tokens(1), 1000, -time.Hour))

	// 1 token at 5% for one hour: 1e8 × 0.05 / 8766 = 570.38... → 570
	assert.Equal(t, domain.Amount(570), Reward(domain.Tokens(1), 500, time.Hour))
}

func TestClaimRewards(t *testing.T) {
	e, l, clock := newTestEngine(t)
	_, err := l.Mint("alice", domain.Tokens(1000), "genesis")
	require.NoError(t, err)
	_, err = e.Stake("alice", domain.Tokens(1000))
	require.NoError(t, err)

	clock.Advance(Year)
	assert.Equal(t, domain.Tokens(150), e.PendingRewards("alice"))

	amount, tx, err := e.ClaimRewards("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Tokens(150), amount)
	assert.Equal(t, domain.TxReward, tx.Kind)
	assert.Equal(t, domain.Tokens(150), l.Balance("alice").Available)
	assert.Equal(t, domain.Amount(0), e.PendingRewards("alice"))

	amount, tx, err = e.ClaimRewards("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), amount)
	assert.Nil(t, tx)

	st := e.Stats()
	assert.Equal(t, domain.Tokens(150), st.RewardsDistributed)
	require.NoError(t, l.CheckInvariants())
}

func TestSettlement_UsesCurrentTierRate(t *testing.T) {
	e, l, clock := newTestEngine(t)
	_, err := l.Mint("alice", domain.Tokens(1000), "genesis")
	require.NoError(t, err)

	_, err = e.Stake("alice", domain.Tokens(100)) // advanced, 10%
	require.NoError(t, err)
	clock.Advance(Year / 2)

	r, err := e.Stake("alice", domain.Tokens(900)) // settles 100 × 10% × 0.5 first
	require.NoError(t, err)
	assert.Equal(t, domain.Tokens(5), r.Settled)
	assert.Equal(t, domain.TierPro, r.Tier)

	clock.Advance(Year / 2) // 1000 × 15% × 0.5
	amount, _, err := e.ClaimRewards("alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Tokens(80), amount)
}

func TestSettlement_SingleRateAcrossUnsettledTierChange(t *testing.T) {
	e, l, clock := newTestEngine(t)
	_, err := l.Mint("alice", domain.Tokens(2000), "genesis")
	require.NoError(t, err)
	_, err = e.Stake("alice", domain.Tokens(1000)) // pro, 15%
	require.NoError(t, err)

	// A lock that bypasses staking does not settle, so the whole interval
	// is paid at the rate in effect at claim time.
	_, err = l.Lock("alice", domain.Tokens(1000))
	require.NoError(t, err)
	clock.Advance(Year)

	want := Reward(domain.Tokens(2000), e.APYBps(e.TierFor(domain.Tokens(2000))), Year)
	assert.Equal(t, want, e.PendingRewards("alice"))
}

func TestInfo(t *testing.T) {
	e, l, _ := newTestEngine(t)
	_, err := l.Mint("alice", domain.Tokens(1000), "genesis")
	require.NoError(t, err)
	_, err = e.Stake("alice", domain.Tokens(500))
	require.NoError(t, err)

	info := e.Info("alice")
	assert.Equal(t, domain.TierAdvanced, info.Tier)
	assert.Equal(t, int64(1000), info.APYBps)
	assert.Equal(t, 2.0, info.Multiplier)
	require.NotNil(t, info.NextTier)
	assert.Equal(t, domain.TierPro, *info.NextTier)
	assert.Equal(t, domain.Tokens(500), info.NeededForNextTier)

	_, err = l.Mint("whale", domain.Tokens(20_000), "genesis")
	require.NoError(t, err)
	_, err = e.Stake("whale", domain.Tokens(20_000))
	require.NoError(t, err)
	assert.Nil(t, e.Info("whale").NextTier)
}

func TestStats(t *testing.T) {
	e, l, _ := newTestEngine(t)
	for _, a := range []string{"a", "b", "c"} {
		_, err := l.Mint(a, domain.Tokens(2000), "genesis")
		require.NoError(t, err)
	}
	_, err := e.Stake("a", domain.Tokens(100))
	require.NoError(t, err)
	_, err = e.Stake("b", domain.Tokens(1500))
	require.NoError(t, err)

	st := e.Stats()
	assert.Equal(t, domain.Tokens(1600), st.TotalStaked)
	assert.Equal(t, 2, st.Stakers)
	assert.Equal(t, 1, st.TierDistribution[domain.TierBasic])
	assert.Equal(t, 1, st.TierDistribution[domain.TierAdvanced])
	assert.Equal(t, 1, st.TierDistribution[domain.TierPro])
	assert.Equal(t, 0, st.TierDistribution[domain.TierStudio])
}

func TestPositions_DrainAndRestore(t *testing.T) {
	e, l, clock := newTestEngine(t)
	_, err := l.Mint("alice", domain.Tokens(1000), "genesis")
	require.NoError(t, err)
	_, err = e.Stake("alice", domain.Tokens(1000))
	require.NoError(t, err)
	clock.Advance(Year)
	_, _, err = e.ClaimRewards("alice")
	require.NoError(t, err)

	dirty := e.DrainDirty()
	require.Len(t, dirty, 1)
	assert.Equal(t, domain.Tokens(150), dirty[0].TotalRewardsEarned)
	assert.Empty(t, e.DrainDirty())

	other := New(Options{Tiers: config.Default().Tiers, Ledger: l, Now: clock.Now})
	other.Restore(e.Positions())
	assert.Equal(t, domain.Tokens(150), other.Stats().RewardsDistributed)
	assert.Equal(t, e.Positions(), other.Positions())
}
