package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/access"
	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/events"
	"stakegate/internal/executor"
	"stakegate/internal/ledger"
	"stakegate/internal/staking"
)

type recorder struct {
	mu    sync.Mutex
	types []events.Type
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
}

func (r *recorder) has(t events.Type) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.types {
		if got == t {
			return true
		}
	}
	return false
}

type env struct {
	cfg     config.Economy
	ledger  *ledger.Ledger
	staking *staking.Engine
	sched   *Scheduler
	rec     *recorder
}

func quietLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

func newEnv(t *testing.T, mutate func(*config.Economy)) *env {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	clock := time.UnixMilli(1_700_000_000_000)
	now := func() time.Time { return clock }

	l := ledger.New(ledger.Options{
		TotalSupply: cfg.Token.TotalSupply.Amount(),
		Fees:        cfg.Fees,
		Now:         now,
		Logger:      quietLogger(),
	})
	st := staking.New(staking.Options{Tiers: cfg.Tiers, Ledger: l, Now: now})
	ac := access.New(access.Options{Tiers: cfg.Tiers, Pricing: cfg.Pricing, Stakes: st})
	rec := &recorder{}
	s := New(Options{
		Config: cfg.Scheduler,
		Access: ac,
		Ledger: l,
		Stakes: st,
		Events: rec,
		Now:    now,
		Logger: quietLogger(),
	})
	return &env{cfg: cfg, ledger: l, staking: st, sched: s, rec: rec}
}

func (e *env) fund(t *testing.T, account string, tokens, stake int64) {
	t.Helper()
	_, err := e.ledger.Mint(account, domain.Tokens(tokens), "grant")
	require.NoError(t, err)
	if stake > 0 {
		_, err = e.staking.Stake(account, domain.Tokens(stake))
		require.NoError(t, err)
	}
}

func advancedRequest() domain.ResourceRequest {
	return domain.ResourceRequest{
		Resolution:      domain.Res1080p,
		FPS:             30,
		DurationMinutes: 1,
		AgentCount:      2,
		StylePack:       "cinematic",
	}
}

func basicRequest() domain.ResourceRequest {
	return domain.ResourceRequest{
		Resolution:      domain.Res720p,
		FPS:             24,
		DurationMinutes: 0.5,
		AgentCount:      1,
		StylePack:       "basic",
	}
}

func TestAliceScenario(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "alice", 1000, 500)
	require.Equal(t, domain.TierAdvanced, e.staking.Tier("alice"))

	sub, err := e.sched.Submit(context.Background(), "alice", advancedRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, sub.QueuePosition)
	assert.Equal(t, domain.Amount(160_000_000), sub.Cost)
	assert.Equal(t, domain.Amount(800_000), sub.Fee, "0.5% usage fee")
	assert.Equal(t, domain.Amount(480_000), sub.Burned, "60% of the fee burned")
	assert.InDelta(t, 2*math.Log1p(500), sub.PriorityScore, 1e-9)

	bal := e.ledger.Balance("alice")
	assert.Equal(t, domain.Tokens(500)-160_000_000, bal.Available)
	assert.Equal(t, domain.Tokens(500), bal.Locked)

	job, err := e.sched.Job(sub.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.State)

	running, ok := e.sched.TryNext()
	require.True(t, ok)
	assert.Equal(t, sub.JobID, running.ID)
	assert.Equal(t, domain.JobRunning, running.State)

	done, err := e.sched.Complete(sub.JobID, executor.Result{Success: true, ArtifactMetadata: map[string]string{"uri": "out.mp4"}})
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, done.State)
	assert.Equal(t, e.cfg.Scheduler.CompletionBonus.Amount(), done.Bonus)
	assert.Equal(t, "out.mp4", done.ArtifactMetadata["uri"])

	bal = e.ledger.Balance("alice")
	assert.Equal(t, domain.Tokens(500)-160_000_000+e.cfg.Scheduler.CompletionBonus.Amount(), bal.Available)
	require.NoError(t, e.ledger.CheckInvariants())
	require.NoError(t, e.ledger.Reconcile())

	hist := e.ledger.History("alice", 1)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.TxBonus, hist[0].Kind)

	assert.True(t, e.rec.has(events.JobQueued))
	assert.True(t, e.rec.has(events.JobStarted))
	assert.True(t, e.rec.has(events.JobCompleted))
}

func TestBobScenario_DeniedWithoutCharge(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "bob", 100, 0)
	before := e.ledger.Balance("bob")
	supply := e.ledger.Supply()

	req := basicRequest()
	req.Resolution = domain.Res1080p
	_, err := e.sched.Submit(context.Background(), "bob", req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTierLimitExceeded)

	var denied *domain.DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, domain.TierAdvanced, denied.RequiredTier)
	assert.Equal(t, "resolution", denied.Field)

	assert.Equal(t, before, e.ledger.Balance("bob"))
	assert.Equal(t, supply, e.ledger.Supply())
	assert.Empty(t, e.sched.JobsBy("bob"))
}

func TestSubmit_InsufficientBalanceCreatesNoJob(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "carol", 100, 100) // all of it staked

	_, err := e.sched.Submit(context.Background(), "carol", advancedRequest())
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Empty(t, e.sched.JobsBy("carol"))
	assert.Equal(t, 0, e.sched.Stats().Total)
}

func TestSubmit_InvalidRequest(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "dave", 10, 0)

	req := basicRequest()
	req.FPS = 0
	_, err := e.sched.Submit(context.Background(), "dave", req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPriorityOrdering(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "small", 100, 0)
	e.fund(t, "mid", 1000, 500)
	e.fund(t, "whale", 20000, 10000)

	ctx := context.Background()
	small, err := e.sched.Submit(ctx, "small", basicRequest())
	require.NoError(t, err)
	mid, err := e.sched.Submit(ctx, "mid", basicRequest())
	require.NoError(t, err)
	whale, err := e.sched.Submit(ctx, "whale", basicRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, whale.QueuePosition)
	pos, err := e.sched.Position(small.JobID)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	var order []string
	for {
		j, ok := e.sched.TryNext()
		if !ok {
			break
		}
		order = append(order, j.ID)
	}
	assert.Equal(t, []string{whale.JobID, mid.JobID, small.JobID}, order)
}

func TestPriorityTiesAreFIFO(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "a", 100, 0)
	e.fund(t, "b", 100, 0)

	ctx := context.Background()
	first, err := e.sched.Submit(ctx, "a", basicRequest())
	require.NoError(t, err)
	second, err := e.sched.Submit(ctx, "b", basicRequest())
	require.NoError(t, err)
	third, err := e.sched.Submit(ctx, "a", basicRequest())
	require.NoError(t, err)
	assert.Equal(t, first.PriorityScore, second.PriorityScore)

	queued := e.sched.Queued()
	require.Len(t, queued, 3)
	assert.Equal(t, []string{first.JobID, second.JobID, third.JobID},
		[]string{queued[0].ID, queued[1].ID, queued[2].ID})
}

// shiftingStakes reports a higher stake on the first read than on any later
// one, the way a concurrent unstake would.
type shiftingStakes struct {
	st    *staking.Engine
	mu    sync.Mutex
	reads int
}

func (s *shiftingStakes) PriorityInputs(account string) (domain.Tier, domain.Amount, float64) {
	s.mu.Lock()
	s.reads++
	first := s.reads == 1
	s.mu.Unlock()

	locked := domain.Amount(0)
	if first {
		locked = domain.Tokens(1000)
	}
	tier := s.st.TierFor(locked)
	return tier, locked, s.st.PriorityScore(tier, locked)
}

func TestSubmit_TierAndScoreFromOneStakeRead(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "alice", 100, 0)
	stakes := &shiftingStakes{st: e.staking}
	s := New(Options{
		Config: e.cfg.Scheduler,
		Access: access.New(access.Options{Tiers: e.cfg.Tiers, Pricing: e.cfg.Pricing}),
		Ledger: e.ledger,
		Stakes: stakes,
		Logger: quietLogger(),
	})

	sub, err := s.Submit(context.Background(), "alice", advancedRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, stakes.reads)
	assert.Equal(t, domain.TierPro, sub.Tier)
	assert.InDelta(t, e.staking.PriorityScore(domain.TierPro, domain.Tokens(1000)), sub.PriorityScore, 1e-9)
}

func TestPriorityIsSnapshotAtAdmission(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "early", 100, 0)
	e.fund(t, "grower", 20000, 0)

	ctx := context.Background()
	grower, err := e.sched.Submit(ctx, "grower", basicRequest())
	require.NoError(t, err)
	early, err := e.sched.Submit(ctx, "early", basicRequest())
	require.NoError(t, err)

	_, err = e.staking.Stake("grower", domain.Tokens(10000))
	require.NoError(t, err)

	j, ok := e.sched.TryNext()
	require.True(t, ok)
	assert.Equal(t, grower.JobID, j.ID, "FIFO among equal admission scores")
	assert.Equal(t, grower.PriorityScore, j.PriorityScore)

	j, ok = e.sched.TryNext()
	require.True(t, ok)
	assert.Equal(t, early.JobID, j.ID)
}

func TestNext_BlocksAndCancels(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "a", 100, 0)

	got := make(chan *domain.Job, 1)
	go func() {
		j, err := e.sched.Next(context.Background())
		if err == nil {
			got <- j
		}
	}()

	sub, err := e.sched.Submit(context.Background(), "a", basicRequest())
	require.NoError(t, err)
	select {
	case j := <-got:
		assert.Equal(t, sub.JobID, j.ID)
		assert.Equal(t, domain.JobRunning, j.State)
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return the submitted job")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.sched.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComplete_Failure(t *testing.T) {
	tests := []struct {
		name       string
		refundBps  int64
		wantRefund domain.Amount
	}{
		{"no refund by default", 0, 0},
		{"half refund", 5000, 80_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, func(c *config.Economy) { c.Scheduler.FailureRefundBps = tt.refundBps })
			e.fund(t, "alice", 1000, 500)

			sub, err := e.sched.Submit(context.Background(), "alice", advancedRequest())
			require.NoError(t, err)
			_, ok := e.sched.TryNext()
			require.True(t, ok)
			afterCharge := e.ledger.Balance("alice").Available

			job, err := e.sched.Complete(sub.JobID, executor.Result{ErrorReason: "render crashed"})
			require.NoError(t, err)
			assert.Equal(t, domain.JobFailed, job.State)
			assert.Equal(t, "render crashed", job.ErrorReason)
			assert.Equal(t, tt.wantRefund, job.Refund)
			assert.Zero(t, job.Bonus)
			assert.Equal(t, afterCharge+tt.wantRefund, e.ledger.Balance("alice").Available)
			require.NoError(t, e.ledger.CheckInvariants())
			assert.True(t, e.rec.has(events.JobFailed))
		})
	}
}

func TestComplete_Transitions(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "a", 100, 0)

	_, err := e.sched.Complete("nope", executor.Result{Success: true})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	sub, err := e.sched.Submit(context.Background(), "a", basicRequest())
	require.NoError(t, err)

	_, err = e.sched.Complete(sub.JobID, executor.Result{Success: true})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "queued jobs cannot complete")

	_, ok := e.sched.TryNext()
	require.True(t, ok)
	_, err = e.sched.Complete(sub.JobID, executor.Result{Success: true})
	require.NoError(t, err)

	_, err = e.sched.Complete(sub.JobID, executor.Result{Success: true})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "terminal jobs cannot complete again")
}

func TestComplete_ConcurrentSettlesOnce(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "a", 100, 0)
	sub, err := e.sched.Submit(context.Background(), "a", basicRequest())
	require.NoError(t, err)
	_, ok := e.sched.TryNext()
	require.True(t, ok)
	before := e.ledger.Balance("a").Available

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.sched.Complete(sub.JobID, executor.Result{Success: true}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, before+e.cfg.Scheduler.CompletionBonus.Amount(), e.ledger.Balance("a").Available)
}

func TestClose(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "a", 100, 0)
	sub, err := e.sched.Submit(context.Background(), "a", basicRequest())
	require.NoError(t, err)

	e.sched.Close()
	before := e.ledger.Balance("a")
	_, err = e.sched.Submit(context.Background(), "a", basicRequest())
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
	assert.Equal(t, before, e.ledger.Balance("a"), "closed queue charges nothing")

	j, err := e.sched.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sub.JobID, j.ID)
	_, err = e.sched.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestStats(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "a", 100, 0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := e.sched.Submit(ctx, "a", basicRequest())
		require.NoError(t, err)
	}
	j1, _ := e.sched.TryNext()
	j2, _ := e.sched.TryNext()
	_, err := e.sched.Complete(j1.ID, executor.Result{Success: true})
	require.NoError(t, err)

	st := e.sched.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, 1, st.Running)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, domain.Amount(3*16_000_000), st.Charged)
	assert.Equal(t, e.cfg.Scheduler.CompletionBonus.Amount(), st.Bonuses)

	jobs := e.sched.JobsBy("a")
	require.Len(t, jobs, 3)
	assert.Equal(t, j2.ID, jobs[1].ID)
}

func TestDrainAndRestore(t *testing.T) {
	e := newEnv(t, nil)
	e.fund(t, "a", 100, 0)
	ctx := context.Background()
	queued, err := e.sched.Submit(ctx, "a", basicRequest())
	require.NoError(t, err)
	running, err := e.sched.Submit(ctx, "a", basicRequest())
	require.NoError(t, err)
	done, err := e.sched.Submit(ctx, "a", basicRequest())
	require.NoError(t, err)

	// Dequeue all three, finish one, leave one running, requeue nothing.
	first, _ := e.sched.TryNext()
	second, _ := e.sched.TryNext()
	third, _ := e.sched.TryNext()
	require.Equal(t, []string{queued.JobID, running.JobID, done.JobID}, []string{first.ID, second.ID, third.ID})
	_, err = e.sched.Complete(done.JobID, executor.Result{Success: true})
	require.NoError(t, err)

	jobs := e.sched.DrainDirty()
	require.Len(t, jobs, 3)
	assert.Empty(t, e.sched.DrainDirty())

	// Pretend the first job was never dequeued before the snapshot.
	jobs[0].State = domain.JobQueued
	jobs[0].StartedAt = 0

	restored := newEnv(t, nil)
	require.NoError(t, restored.sched.Restore(jobs))

	q := restored.sched.Queued()
	require.Len(t, q, 2, "queued and interrupted jobs are queued again")
	assert.Equal(t, queued.JobID, q[0].ID)
	assert.Equal(t, running.JobID, q[1].ID)

	j, err := restored.sched.Job(done.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, j.State)

	restored.fund(t, "a", 100, 0)
	next, err := restored.sched.Submit(ctx, "a", basicRequest())
	require.NoError(t, err)
	latest, err := restored.sched.Job(next.JobID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), latest.Seq)

	assert.Error(t, restored.sched.Restore(jobs), "restore only into an empty scheduler")
}
