// Package scheduler admits paid jobs into a stake-weighted priority queue,
// hands them to workers and settles them when the executor reports back.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"stakegate/internal/access"
	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/events"
	"stakegate/internal/executor"
	"stakegate/internal/idhash"
	"stakegate/internal/ledger"
	"stakegate/internal/logging"
	"stakegate/internal/observability"
)

// Access checks requests against a tier and prices them.
type Access interface {
	Check(t domain.Tier, req domain.ResourceRequest) access.Decision
	Cost(req domain.ResourceRequest) (domain.Amount, error)
}

// Ledger is the subset of ledger operations the scheduler requests.
type Ledger interface {
	ChargeFee(account string, cost domain.Amount) (*ledger.FeeReceipt, error)
	Mint(account string, amount domain.Amount, reason string) (*domain.Transaction, error)
	Refund(account string, amount domain.Amount, reason string) (*domain.Transaction, error)
}

// Stakes supplies tier, locked stake and priority score from one read.
type Stakes interface {
	PriorityInputs(account string) (domain.Tier, domain.Amount, float64)
}

// Options configures a Scheduler.
type Options struct {
	Config config.SchedulerConfig
	Access Access
	Ledger Ledger
	Stakes Stakes
	Events events.Publisher
	Now    func() time.Time
	Logger log15.Logger
}

// Submission is returned to the submitter of an admitted job.
type Submission struct {
	JobID         string        `json:"job_id"`
	QueuePosition int           `json:"queue_position"`
	PriorityScore float64       `json:"priority_score"`
	Tier          domain.Tier   `json:"tier"`
	Cost          domain.Amount `json:"cost"`
	Fee           domain.Amount `json:"fee"`
	Burned        domain.Amount `json:"burned"`
}

// Stats summarises scheduler activity.
type Stats struct {
	Queued    int           `json:"queued"`
	Running   int           `json:"running"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Bonuses   domain.Amount `json:"bonuses"`
	Refunds   domain.Amount `json:"refunds"`
	Charged   domain.Amount `json:"charged"`
}

// Scheduler owns every job state transition.
type Scheduler struct {
	cfg    config.SchedulerConfig
	access Access
	ledger Ledger
	stakes Stakes
	events events.Publisher
	now    func() time.Time
	log    log15.Logger
	queue  *Queue

	mu      sync.Mutex
	seq     int64
	jobs    map[string]*domain.Job
	byOwner map[string][]string
	dirty   map[string]struct{}
}

// New creates a scheduler with an empty queue.
func New(opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLog("scheduler")
	}
	return &Scheduler{
		cfg:     opts.Config,
		access:  opts.Access,
		ledger:  opts.Ledger,
		stakes:  opts.Stakes,
		events:  opts.Events,
		now:     opts.Now,
		log:     opts.Logger,
		queue:   NewQueue(),
		jobs:    make(map[string]*domain.Job),
		byOwner: make(map[string][]string),
		dirty:   make(map[string]struct{}),
	}
}

// Submit validates, prices and charges req, then enqueues a job for user.
// Denials return *domain.DeniedError; a failed charge creates no job.
func (s *Scheduler) Submit(ctx context.Context, user string, req domain.ResourceRequest) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := req.Validate(); err != nil {
		observability.RecordSubmission("invalid")
		return nil, err
	}
	// Entitlements and score come from the same stake reading, so a
	// concurrent unstake cannot pair one tier with another stake.
	tier, _, score := s.stakes.PriorityInputs(user)
	decision := s.access.Check(tier, req)
	if !decision.Allowed {
		observability.RecordSubmission("denied")
		s.log.Info("submission denied", "user", user, "field", decision.Denial.Field,
			"tier", decision.Tier, "required", decision.Denial.RequiredTier)
		return nil, decision.Denial
	}

	cost, err := s.access.Cost(req)
	if err != nil {
		observability.RecordSubmission("invalid")
		return nil, err
	}

	if s.queue.isClosed() {
		observability.RecordSubmission("closed")
		return nil, domain.ErrQueueClosed
	}
	receipt, err := s.ledger.ChargeFee(user, cost)
	if err != nil {
		observability.RecordSubmission("unpaid")
		return nil, err
	}

	nowMs := s.now().UnixMilli()

	s.mu.Lock()
	s.seq++
	job := &domain.Job{
		ID:            idhash.ComputeJobID(user, s.seq, nowMs),
		Owner:         user,
		Request:       req,
		Cost:          receipt.Cost,
		PriorityScore: score,
		State:         domain.JobQueued,
		Seq:           s.seq,
		EnqueuedAt:    nowMs,
	}
	if err := s.queue.Push(job); err != nil {
		s.mu.Unlock()
		s.refundUnqueued(user, receipt)
		observability.RecordSubmission("closed")
		return nil, err
	}
	s.jobs[job.ID] = job
	s.byOwner[user] = append(s.byOwner[user], job.ID)
	s.dirty[job.ID] = struct{}{}
	position := s.queue.Position(job.ID)
	s.mu.Unlock()

	observability.RecordSubmission("queued")
	observability.UpdateQueueDepth(s.queue.Len())
	s.events.Publish(events.New(events.JobQueued, job.ID, map[string]any{
		"owner":          user,
		"cost":           receipt.Cost,
		"priority_score": score,
		"queue_position": position,
	}))
	s.log.Info("job queued", "job", job.ID, "user", user, "tier", decision.Tier,
		"cost", receipt.Cost, "score", score, "position", position)

	return &Submission{
		JobID:         job.ID,
		QueuePosition: position,
		PriorityScore: score,
		Tier:          decision.Tier,
		Cost:          receipt.Cost,
		Fee:           receipt.Fee,
		Burned:        receipt.Burned,
	}, nil
}

// refundUnqueued returns the treasury share of a charge whose job lost the
// race with Close. The burned part is gone.
func (s *Scheduler) refundUnqueued(user string, receipt *ledger.FeeReceipt) {
	if receipt.Treasury <= 0 {
		return
	}
	if _, err := s.ledger.Refund(user, receipt.Treasury, "queue closed"); err != nil {
		s.log.Error("refund after closed queue failed", "user", user, "amount", receipt.Treasury, "err", err)
	}
}

func (s *Scheduler) start(job *domain.Job) *domain.Job {
	now := s.now().UnixMilli()

	s.mu.Lock()
	job.State = domain.JobRunning
	job.StartedAt = now
	s.dirty[job.ID] = struct{}{}
	c := job.Clone()
	s.mu.Unlock()

	observability.RecordJobStarted(float64(now-c.EnqueuedAt) / 1000)
	observability.UpdateQueueDepth(s.queue.Len())
	s.events.Publish(events.New(events.JobStarted, c.ID, map[string]any{
		"owner":          c.Owner,
		"priority_score": c.PriorityScore,
	}))
	return c
}

// Next blocks until a job can be started, ctx is done or the queue is closed
// and empty. The returned job is Running.
func (s *Scheduler) Next(ctx context.Context) (*domain.Job, error) {
	job, err := s.queue.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return s.start(job), nil
}

// TryNext is Next without blocking.
func (s *Scheduler) TryNext() (*domain.Job, bool) {
	job, ok := s.queue.TryPop()
	if !ok {
		return nil, false
	}
	return s.start(job), true
}

// Complete settles a Running job with the executor's result. Success mints
// the completion bonus; failure applies the refund policy.
func (s *Scheduler) Complete(jobID string, res executor.Result) (*domain.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	if job.State != domain.JobRunning {
		state := job.State
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrInvalidTransition, jobID, state)
	}
	now := s.now().UnixMilli()
	job.FinishedAt = now
	if res.Success {
		job.State = domain.JobCompleted
		job.ArtifactMetadata = copyMeta(res.ArtifactMetadata)
	} else {
		job.State = domain.JobFailed
		job.ErrorReason = res.ErrorReason
		if job.ErrorReason == "" {
			job.ErrorReason = domain.ErrExecutorFailure.Error()
		}
	}
	owner, cost := job.Owner, job.Cost
	s.dirty[jobID] = struct{}{}
	s.mu.Unlock()

	// The state is terminal before the ledger is called, so a concurrent
	// Complete cannot settle twice.
	var bonus, refund domain.Amount
	if res.Success {
		bonus = s.payBonus(jobID, owner)
	} else {
		refund = s.payRefund(jobID, owner, cost)
	}

	s.mu.Lock()
	job.Bonus = bonus
	job.Refund = refund
	c := job.Clone()
	s.mu.Unlock()

	runSeconds := float64(c.FinishedAt-c.StartedAt) / 1000
	observability.RecordJobFinished(string(c.State), runSeconds)
	if c.State == domain.JobCompleted {
		s.events.Publish(events.New(events.JobCompleted, c.ID, map[string]any{
			"owner": owner,
			"bonus": bonus,
		}))
		s.log.Info("job completed", "job", c.ID, "user", owner, "bonus", bonus, "secs", runSeconds)
	} else {
		s.events.Publish(events.New(events.JobFailed, c.ID, map[string]any{
			"owner":  owner,
			"reason": c.ErrorReason,
			"refund": refund,
		}))
		s.log.Warn("job failed", "job", c.ID, "user", owner, "reason", c.ErrorReason, "refund", refund)
	}
	return c, nil
}

func (s *Scheduler) payBonus(jobID, owner string) domain.Amount {
	bonus := s.cfg.CompletionBonus.Amount()
	if bonus <= 0 {
		return 0
	}
	if _, err := s.ledger.Mint(owner, bonus, "bonus"); err != nil {
		s.log.Error("completion bonus not minted", "job", jobID, "user", owner, "err", err)
		return 0
	}
	return bonus
}

func (s *Scheduler) payRefund(jobID, owner string, cost domain.Amount) domain.Amount {
	refund := cost.MulBps(s.cfg.FailureRefundBps)
	if refund <= 0 {
		return 0
	}
	if _, err := s.ledger.Refund(owner, refund, "job failed"); err != nil {
		s.log.Error("failure refund not paid", "job", jobID, "user", owner, "err", err)
		return 0
	}
	return refund
}

func copyMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Job returns a copy of the job with id.
func (s *Scheduler) Job(id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// JobsBy returns the owner's jobs in admission order.
func (s *Scheduler) JobsBy(owner string) []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byOwner[owner]
	out := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.jobs[id].Clone())
	}
	return out
}

// Position returns the 1-based queue rank of a queued job, 0 once it left
// the queue.
func (s *Scheduler) Position(id string) (int, error) {
	s.mu.Lock()
	_, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return s.queue.Position(id), nil
}

// Queued returns the queued jobs in dequeue order.
func (s *Scheduler) Queued() []*domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.queue.Snapshot()
	out := make([]*domain.Job, 0, len(snap))
	for _, j := range snap {
		out = append(out, j.Clone())
	}
	return out
}

// Stats summarises all jobs.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, j := range s.jobs {
		st.Total++
		st.Charged += j.Cost
		st.Bonuses += j.Bonus
		st.Refunds += j.Refund
		switch j.State {
		case domain.JobQueued:
			st.Queued++
		case domain.JobRunning:
			st.Running++
		case domain.JobCompleted:
			st.Completed++
		case domain.JobFailed:
			st.Failed++
		}
	}
	return st
}

// Close stops admissions. Queued jobs remain available to Next.
func (s *Scheduler) Close() {
	s.queue.Close()
}

// DrainDirty returns jobs changed since the previous drain.
func (s *Scheduler) DrainDirty() []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Job, 0, len(s.dirty))
	for id := range s.dirty {
		out = append(out, *s.jobs[id].Clone())
	}
	s.dirty = make(map[string]struct{})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Requeue marks jobs dirty again after a failed flush.
func (s *Scheduler) Requeue(jobs []domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range jobs {
		if _, ok := s.jobs[j.ID]; ok {
			s.dirty[j.ID] = struct{}{}
		}
	}
}

// Restore loads persisted jobs. Queued jobs re-enter the queue; jobs that
// were Running when the process stopped are queued again, since they were
// paid for and never settled.
func (s *Scheduler) Restore(jobs []domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) > 0 {
		return errors.New("scheduler: restore into non-empty scheduler")
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Seq < jobs[j].Seq })
	for i := range jobs {
		job := jobs[i].Clone()
		if job.State == domain.JobRunning {
			job.State = domain.JobQueued
			job.StartedAt = 0
			s.dirty[job.ID] = struct{}{}
		}
		if job.State == domain.JobQueued {
			if err := s.queue.Push(job); err != nil {
				return err
			}
		}
		s.jobs[job.ID] = job
		s.byOwner[job.Owner] = append(s.byOwner[job.Owner], job.ID)
		if job.Seq > s.seq {
			s.seq = job.Seq
		}
	}
	observability.UpdateQueueDepth(s.queue.Len())
	return nil
}
