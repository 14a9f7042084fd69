package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/access"
	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/executor"
	"stakegate/internal/governance"
	"stakegate/internal/ledger"
	"stakegate/internal/scheduler"
	"stakegate/internal/staking"
	"stakegate/internal/storage"
	"stakegate/internal/storage/memory"
)

type stakeView struct {
	*staking.Engine
	l *ledger.Ledger
}

func (v stakeView) TotalLocked() domain.Amount { return v.l.TotalLocked() }

type world struct {
	ledger  *ledger.Ledger
	staking *staking.Engine
	gov     *governance.Engine
	sched   *scheduler.Scheduler
}

func quietLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

func newWorld(now func() time.Time) *world {
	cfg := config.Default()
	l := ledger.New(ledger.Options{
		TotalSupply: cfg.Token.TotalSupply.Amount(),
		Fees:        cfg.Fees,
		Now:         now,
		Logger:      quietLogger(),
	})
	st := staking.New(staking.Options{Tiers: cfg.Tiers, Ledger: l, Now: now})
	gov := governance.New(governance.Options{Config: cfg.Governance, Stakes: stakeView{st, l}, Now: now})
	ac := access.New(access.Options{Tiers: cfg.Tiers, Pricing: cfg.Pricing, Stakes: st})
	s := scheduler.New(scheduler.Options{
		Config: cfg.Scheduler,
		Access: ac,
		Ledger: l,
		Stakes: st,
		Now:    now,
		Logger: quietLogger(),
	})
	return &world{ledger: l, staking: st, gov: gov, sched: s}
}

func (w *world) syncer(stores storage.Stores) *Syncer {
	return New(Options{
		Stores:     stores,
		Ledger:     w.ledger,
		Staking:    w.staking,
		Governance: w.gov,
		Scheduler:  w.sched,
		Database:   "memory",
		Logger:     quietLogger(),
	})
}

// populate drives every engine so each store has something to hold.
func populate(t *testing.T, w *world) (propID, queuedJob, doneJob string) {
	t.Helper()
	ctx := context.Background()

	_, err := w.ledger.Mint("alice", domain.Tokens(1000), "grant")
	require.NoError(t, err)
	_, err = w.ledger.Mint("bob", domain.Tokens(50), "grant")
	require.NoError(t, err)
	_, err = w.staking.Stake("alice", domain.Tokens(500))
	require.NoError(t, err)
	_, err = w.ledger.Transfer("alice", "bob", domain.Tokens(5))
	require.NoError(t, err)

	p, err := w.gov.CreateProposal("alice", domain.ProposalFeature, domain.ProposalPayload{
		Title:  "Storyboard export",
		Params: map[string]string{"feature_name": "storyboard_export"},
	})
	require.NoError(t, err)
	_, err = w.gov.Vote("alice", p.ID, true)
	require.NoError(t, err)

	req := domain.ResourceRequest{Resolution: domain.Res720p, FPS: 24, DurationMinutes: 0.5, AgentCount: 1, StylePack: "basic"}
	first, err := w.sched.Submit(ctx, "alice", req)
	require.NoError(t, err)
	second, err := w.sched.Submit(ctx, "bob", req)
	require.NoError(t, err)

	job, ok := w.sched.TryNext()
	require.True(t, ok)
	require.Equal(t, first.JobID, job.ID)
	_, err = w.sched.Complete(job.ID, executor.Result{Success: true, ArtifactMetadata: map[string]string{"uri": "mem://1"}})
	require.NoError(t, err)

	return p.ID, second.JobID, first.JobID
}

func TestLoad_EmptyStore(t *testing.T) {
	clock := time.UnixMilli(1_700_000_000_000)
	w := newWorld(func() time.Time { return clock })

	loaded, err := w.syncer(memory.NewStores()).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestFlushAndLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := time.UnixMilli(1_700_000_000_000)
	now := func() time.Time { return clock }
	stores := memory.NewStores()

	src := newWorld(now)
	propID, queuedJob, doneJob := populate(t, src)
	require.NoError(t, src.syncer(stores).Flush(ctx))

	dst := newWorld(now)
	loaded, err := dst.syncer(stores).Load(ctx)
	require.NoError(t, err)
	require.True(t, loaded)

	assert.Equal(t, src.ledger.Supply(), dst.ledger.Supply())
	assert.Equal(t, src.ledger.Balance("alice"), dst.ledger.Balance("alice"))
	assert.Equal(t, src.ledger.Balance("bob"), dst.ledger.Balance("bob"))
	assert.Equal(t, src.ledger.TxCount(), dst.ledger.TxCount())
	require.NoError(t, dst.ledger.CheckInvariants())
	require.NoError(t, dst.ledger.Reconcile())

	assert.Equal(t, domain.TierAdvanced, dst.staking.Tier("alice"))
	assert.Equal(t, src.staking.Positions(), dst.staking.Positions())

	st, err := dst.gov.Status(propID)
	require.NoError(t, err)
	assert.Equal(t, domain.Tokens(500), st.VotesFor)
	_, err = dst.gov.Vote("alice", propID, false)
	assert.ErrorIs(t, err, domain.ErrAlreadyVoted)

	done, err := dst.sched.Job(doneJob)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, done.State)
	assert.Equal(t, "mem://1", done.ArtifactMetadata["uri"])

	next, ok := dst.sched.TryNext()
	require.True(t, ok, "queued job survives a restart")
	assert.Equal(t, queuedJob, next.ID)

	// New ledger entries continue the sequence.
	tx, err := dst.ledger.Mint("carol", 1, "grant")
	require.NoError(t, err)
	assert.Equal(t, int64(src.ledger.TxCount()+1), tx.Seq)
}

func TestFlush_Incremental(t *testing.T) {
	ctx := context.Background()
	clock := time.UnixMilli(1_700_000_000_000)
	stores := memory.NewStores()
	w := newWorld(func() time.Time { return clock })
	sy := w.syncer(stores)

	populate(t, w)
	require.NoError(t, sy.Flush(ctx))
	// Nothing changed: a second flush writes nothing and must not hit duplicate keys.
	require.NoError(t, sy.Flush(ctx))

	_, err := w.ledger.Mint("dave", domain.Tokens(1), "grant")
	require.NoError(t, err)
	require.NoError(t, sy.Flush(ctx))

	all, err := stores.Transactions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, w.ledger.TxCount())

	dave, err := stores.Accounts.GetByID(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, domain.Tokens(1), dave.Available)
}

type failingVotes struct {
	storage.VoteStore
	fail bool
}

func (f *failingVotes) InsertBulk(ctx context.Context, votes []domain.Vote) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.VoteStore.InsertBulk(ctx, votes)
}

func TestFlush_RequeuesOnFailure(t *testing.T) {
	ctx := context.Background()
	clock := time.UnixMilli(1_700_000_000_000)
	stores := memory.NewStores()
	votes := &failingVotes{VoteStore: stores.Votes, fail: true}
	stores.Votes = votes

	w := newWorld(func() time.Time { return clock })
	sy := w.syncer(stores)
	propID, _, _ := populate(t, w)

	err := sy.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush votes")

	// Steps before the failure were written.
	_, err = stores.Proposals.GetByID(ctx, propID)
	require.NoError(t, err)
	jobs, err := stores.Jobs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs, "steps after the failure are retried later")

	votes.fail = false
	require.NoError(t, sy.Flush(ctx))

	got, err := stores.Votes.GetByProposal(ctx, propID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	jobs, err = stores.Jobs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestStartClose(t *testing.T) {
	clock := time.UnixMilli(1_700_000_000_000)
	stores := memory.NewStores()
	w := newWorld(func() time.Time { return clock })
	sy := New(Options{
		Stores: stores, Ledger: w.ledger, Staking: w.staking, Governance: w.gov, Scheduler: w.sched,
		Interval: time.Second, Logger: quietLogger(),
	})
	require.NoError(t, sy.Start())

	_, err := w.ledger.Mint("alice", domain.Tokens(3), "grant")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := stores.Accounts.GetByID(context.Background(), "alice")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	_, err = w.ledger.Mint("bob", domain.Tokens(3), "grant")
	require.NoError(t, err)
	require.NoError(t, sy.Close(context.Background()))

	_, err = stores.Accounts.GetByID(context.Background(), "bob")
	assert.NoError(t, err, "Close flushes pending state")
}
