package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/events"
	"stakegate/internal/idhash"
	"stakegate/internal/staking"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

func newTestEngine(t *testing.T) (*Engine, *recorder, *clock) {
	t.Helper()
	rec := &recorder{}
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	e, err := New(Options{
		Config: config.Default(),
		Events: rec,
		Now:    clk.Now,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	return e, rec, clk
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Token.TotalSupply = 0
	_, err := New(Options{Config: cfg, Logger: quietLogger()})
	assert.Error(t, err)
}

func TestSystemAddresses(t *testing.T) {
	e, _, _ := newTestEngine(t)

	assert.NotEqual(t, e.TreasuryAddress(), e.BurnAddress())
	for _, addr := range []string{e.TreasuryAddress(), e.BurnAddress()} {
		raw, err := base58.Decode(addr)
		require.NoError(t, err)
		assert.Len(t, raw, 32)
		assert.False(t, idhash.IsOnCurve(raw))
	}
}

func TestMintTransferStake_PublishesEvents(t *testing.T) {
	e, rec, _ := newTestEngine(t)

	_, err := e.Mint("alice", domain.Tokens(1000), "grant")
	require.NoError(t, err)
	_, err = e.Transfer("alice", "bob", domain.Tokens(10))
	require.NoError(t, err)

	r, err := e.Stake("alice", domain.Tokens(500))
	require.NoError(t, err)
	assert.True(t, r.TierChanged())
	assert.Equal(t, domain.TierAdvanced, r.Tier)

	// Staying inside the tier publishes no tier change.
	_, err = e.Stake("alice", domain.Tokens(10))
	require.NoError(t, err)

	assert.Equal(t, []events.Type{
		events.AccountMinted,
		events.TransferDone,
		events.StakeChanged,
		events.TierChanged,
		events.StakeChanged,
	}, rec.types())

	bal := e.Ledger().Balance("alice")
	assert.Equal(t, domain.Tokens(480), bal.Available)
	assert.Equal(t, domain.Tokens(510), bal.Locked)
	require.NoError(t, e.Ledger().CheckInvariants())
}

func TestFailedOperations_PublishNothing(t *testing.T) {
	e, rec, _ := newTestEngine(t)

	_, err := e.Transfer("alice", "bob", domain.Tokens(1))
	assert.Error(t, err)
	_, err = e.Stake("alice", domain.Tokens(1))
	assert.Error(t, err)
	_, err = e.Mint("", domain.Tokens(1), "grant")
	assert.Error(t, err)

	assert.Empty(t, rec.types())
}

func TestClaimRewards(t *testing.T) {
	e, rec, clk := newTestEngine(t)

	_, err := e.Mint("alice", domain.Tokens(1000), "grant")
	require.NoError(t, err)
	_, err = e.Stake("alice", domain.Tokens(1000))
	require.NoError(t, err)

	amount, err := e.ClaimRewards("alice")
	require.NoError(t, err)
	assert.Zero(t, amount)

	clk.Advance(staking.Year)
	amount, err = e.ClaimRewards("alice")
	require.NoError(t, err)
	// Pro tier, 15% APY.
	assert.Equal(t, domain.Tokens(150), amount)
	assert.Contains(t, rec.types(), events.RewardsClaimed)
}

func TestSweep_ResolvesDueProposals(t *testing.T) {
	e, _, clk := newTestEngine(t)

	_, err := e.Mint("alice", domain.Tokens(1000), "grant")
	require.NoError(t, err)
	_, err = e.Stake("alice", domain.Tokens(500))
	require.NoError(t, err)

	p, err := e.CreateProposal("alice", domain.ProposalStylePack, domain.ProposalPayload{
		Title:  "Watercolor",
		Params: map[string]string{"pack_name": "watercolor"},
	})
	require.NoError(t, err)
	_, err = e.Vote("alice", p.ID, true)
	require.NoError(t, err)

	e.Sweep()
	got, err := e.Governance().Proposal(p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalActive, got.Status)

	clk.Advance(e.Config().Governance.VotingPeriod + time.Second)
	e.Sweep()
	got, err = e.Governance().Proposal(p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalPassed, got.Status)

	executed, err := e.Execute(p.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalExecuted, executed.Status)
}

func TestRun_ExecutesSubmittedJobs(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := e.Mint("bob", domain.Tokens(100), "grant")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	req := domain.ResourceRequest{Resolution: domain.Res720p, FPS: 24, DurationMinutes: 0.5, AgentCount: 1, StylePack: "basic"}
	sub, err := e.Submit(ctx, "bob", req)
	require.NoError(t, err)
	assert.Equal(t, domain.TierBasic, sub.Tier)

	require.Eventually(t, func() bool {
		job, err := e.Scheduler().Job(sub.JobID)
		return err == nil && job.State == domain.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	e.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	ov := e.Overview()
	assert.Equal(t, "ANM", ov.Symbol)
	assert.Equal(t, 1, ov.Jobs.Completed)
	assert.Equal(t, 0, ov.QueueDepth)
	assert.Equal(t, e.TreasuryAddress(), ov.Addresses["treasury"])
	require.NoError(t, e.Ledger().CheckInvariants())
}
