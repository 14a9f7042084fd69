// Package governance runs stake-weighted, time-boxed proposal voting.
//
// Each proposal moves Active → {Passed, Rejected, Expired} when resolved at
// or after its deadline, and Passed → Executed on explicit execution. All
// mutations of one proposal are linearised by that proposal's mutex.
package governance

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/events"
	"stakegate/internal/observability"
)

// StakeReader exposes the stake facts voting depends on.
type StakeReader interface {
	Locked(account string) domain.Amount
	TotalLocked() domain.Amount
}

// Authorizer decides whether executor may execute p. Nil allows everyone.
type Authorizer func(executor string, p *domain.Proposal) error

// Options configures an Engine.
type Options struct {
	Config    config.GovernanceConfig
	Stakes    StakeReader
	Authorize Authorizer
	Events    events.Publisher
	Now       func() time.Time
}

// StatusView is the externally visible state of a proposal.
type StatusView struct {
	ID               string                `json:"id"`
	Type             domain.ProposalType   `json:"type"`
	Title            string                `json:"title"`
	Status           domain.ProposalStatus `json:"status"`
	VotesFor         domain.Amount         `json:"votes_for"`
	VotesAgainst     domain.Amount         `json:"votes_against"`
	VoterCount       int                   `json:"voter_count"`
	ParticipationBps int64                 `json:"participation_bps"` // of total staked
	ApprovalBps      int64                 `json:"approval_bps"`      // for / (for+against)
	QuorumMet        bool                  `json:"quorum_met"`
	Deadline         int64                 `json:"deadline"`
	TimeRemaining    time.Duration         `json:"time_remaining"`
}

// Stats summarises governance activity.
type Stats struct {
	Proposals int                           `json:"proposals"`
	ByStatus  map[domain.ProposalStatus]int `json:"by_status"`
	ByType    map[domain.ProposalType]int   `json:"by_type"`
	Votes     int                           `json:"votes"`
}

type entry struct {
	mu    sync.Mutex
	p     *domain.Proposal
	votes map[string]*domain.Vote // by voter
}

// Engine is the governance engine.
type Engine struct {
	cfg       config.GovernanceConfig
	stakes    StakeReader
	authorize Authorizer
	events    events.Publisher
	now       func() time.Time

	mu        sync.RWMutex
	counter   int
	proposals map[string]*entry
	order     []string

	dirtyMu      sync.Mutex
	dirty        map[string]struct{}
	pendingVotes []domain.Vote
}

// New creates a governance engine.
func New(opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	return &Engine{
		cfg:       opts.Config,
		stakes:    opts.Stakes,
		authorize: opts.Authorize,
		events:    opts.Events,
		now:       opts.Now,
		proposals: make(map[string]*entry),
		dirty:     make(map[string]struct{}),
	}
}

func (g *Engine) markDirty(id string, vote *domain.Vote) {
	g.dirtyMu.Lock()
	defer g.dirtyMu.Unlock()
	g.dirty[id] = struct{}{}
	if vote != nil {
		g.pendingVotes = append(g.pendingVotes, *vote)
	}
}

func (g *Engine) get(id string) (*entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProposalNotFound, id)
	}
	return e, nil
}

// CreateProposal opens a proposal if the proposer's stake meets the minimum.
func (g *Engine) CreateProposal(proposer string, t domain.ProposalType, payload domain.ProposalPayload) (*domain.Proposal, error) {
	if proposer == "" {
		return nil, fmt.Errorf("%w: proposer is required", domain.ErrInvalidRequest)
	}
	if err := payload.Validate(t); err != nil {
		return nil, err
	}
	locked := g.stakes.Locked(proposer)
	if locked < g.cfg.MinStakeToPropose.Amount() {
		return nil, fmt.Errorf("%w: %s has %s locked, needs %s",
			domain.ErrInsufficientStakeToPropose, proposer, locked, g.cfg.MinStakeToPropose.Amount())
	}

	now := g.now()
	g.mu.Lock()
	g.counter++
	p := &domain.Proposal{
		ID:             fmt.Sprintf("PROP-%04d", g.counter),
		Proposer:       proposer,
		Type:           t,
		Payload:        payload.Clone(),
		CreatedAt:      now.UnixMilli(),
		VotingDeadline: now.Add(g.cfg.VotingPeriod).UnixMilli(),
		Status:         domain.ProposalActive,
	}
	g.proposals[p.ID] = &entry{p: p, votes: make(map[string]*domain.Vote)}
	g.order = append(g.order, p.ID)
	g.mu.Unlock()

	g.markDirty(p.ID, nil)
	observability.RecordProposalCreated(string(t))
	g.events.Publish(events.New(events.ProposalCreated, p.ID, map[string]any{
		"proposer": proposer,
		"type":     t,
		"title":    payload.Title,
		"deadline": p.VotingDeadline,
	}))
	return p.Clone(), nil
}

// Vote casts a ballot weighted by the voter's locked stake at cast time.
func (g *Engine) Vote(voter, id string, support bool) (*domain.Vote, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	nowMs := g.now().UnixMilli()
	if e.p.Status != domain.ProposalActive || nowMs >= e.p.VotingDeadline {
		return nil, fmt.Errorf("%w: %s", domain.ErrVotingClosed, id)
	}
	if _, ok := e.votes[voter]; ok {
		return nil, fmt.Errorf("%w: %s on %s", domain.ErrAlreadyVoted, voter, id)
	}
	weight := g.stakes.Locked(voter)
	if weight <= 0 {
		return nil, &domain.InsufficientStakeError{Account: voter, Required: 1}
	}

	v := &domain.Vote{ProposalID: id, Voter: voter, Support: support, Weight: weight, CastAt: nowMs}
	e.votes[voter] = v
	if support {
		e.p.VotesFor += weight
	} else {
		e.p.VotesAgainst += weight
	}
	e.p.VoterCount++

	g.markDirty(id, v)
	observability.RecordVote(support)
	g.events.Publish(events.New(events.VoteCast, id, map[string]any{
		"voter":   voter,
		"support": support,
		"weight":  weight,
	}))
	c := *v
	return &c, nil
}

// outcome computes the tally against the current total stake.
func (g *Engine) outcome(p *domain.Proposal, totalStaked domain.Amount) (participationBps, approvalBps int64, quorumMet, approved bool) {
	cast := decimal.NewFromInt(int64(p.VotesFor + p.VotesAgainst))
	bps := decimal.NewFromInt(config.BpsDenominator)

	if totalStaked > 0 {
		participationBps = cast.Mul(bps).Div(decimal.NewFromInt(int64(totalStaked))).Floor().IntPart()
		quorumMet = cast.Mul(bps).GreaterThanOrEqual(decimal.NewFromInt(int64(totalStaked)).Mul(decimal.NewFromInt(g.cfg.QuorumBps)))
	}
	if cast.IsPositive() {
		forVotes := decimal.NewFromInt(int64(p.VotesFor))
		approvalBps = forVotes.Mul(bps).Div(cast).Floor().IntPart()
		approved = forVotes.Mul(bps).GreaterThanOrEqual(cast.Mul(decimal.NewFromInt(g.cfg.ApprovalBps)))
	}
	return participationBps, approvalBps, quorumMet, approved
}

// Resolve closes voting at or after the deadline. Idempotent: a proposal
// that is no longer Active is returned unchanged.
func (g *Engine) Resolve(id string) (*domain.Proposal, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.p.Status != domain.ProposalActive {
		return e.p.Clone(), nil
	}
	now := g.now().UnixMilli()
	if now < e.p.VotingDeadline {
		return nil, fmt.Errorf("%w: %s closes at %d", domain.ErrVotingOpen, id, e.p.VotingDeadline)
	}

	total := g.stakes.TotalLocked()
	participation, approval, quorumMet, approved := g.outcome(e.p, total)
	switch {
	case !quorumMet:
		e.p.Status = domain.ProposalExpired
	case approved:
		e.p.Status = domain.ProposalPassed
	default:
		e.p.Status = domain.ProposalRejected
	}
	e.p.ResolvedAt = now

	g.markDirty(id, nil)
	observability.RecordProposalStatus(string(e.p.Status))
	g.events.Publish(events.New(events.ProposalResolved, id, map[string]any{
		"status":            e.p.Status,
		"votes_for":         e.p.VotesFor,
		"votes_against":     e.p.VotesAgainst,
		"total_staked":      total,
		"participation_bps": participation,
		"approval_bps":      approval,
	}))
	return e.p.Clone(), nil
}

// Execute marks a passed proposal executed and emits proposal.executed for
// the collaborator that applies its effect.
func (g *Engine) Execute(id, executor string) (*domain.Proposal, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.p.Status != domain.ProposalPassed {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrNotPassed, id, e.p.Status)
	}
	if g.authorize != nil {
		if err := g.authorize(executor, e.p.Clone()); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
	}

	e.p.Status = domain.ProposalExecuted
	e.p.ExecutedAt = g.now().UnixMilli()
	e.p.ExecutedBy = executor

	g.markDirty(id, nil)
	observability.RecordProposalStatus(string(e.p.Status))
	g.events.Publish(events.New(events.ProposalExecuted, id, map[string]any{
		"type":        e.p.Type,
		"title":       e.p.Payload.Title,
		"params":      e.p.Payload.Clone().Params,
		"executed_by": executor,
	}))
	return e.p.Clone(), nil
}

// Proposal returns a copy of one proposal.
func (g *Engine) Proposal(id string) (*domain.Proposal, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.p.Clone(), nil
}

// Status returns the tally view of a proposal against current total stake.
func (g *Engine) Status(id string) (*StatusView, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	p := e.p.Clone()
	e.mu.Unlock()

	participation, approval, quorumMet, _ := g.outcome(p, g.stakes.TotalLocked())
	remaining := time.Duration(p.VotingDeadline-g.now().UnixMilli()) * time.Millisecond
	if remaining < 0 || p.Status != domain.ProposalActive {
		remaining = 0
	}
	return &StatusView{
		ID:               p.ID,
		Type:             p.Type,
		Title:            p.Payload.Title,
		Status:           p.Status,
		VotesFor:         p.VotesFor,
		VotesAgainst:     p.VotesAgainst,
		VoterCount:       p.VoterCount,
		ParticipationBps: participation,
		ApprovalBps:      approval,
		QuorumMet:        quorumMet,
		Deadline:         p.VotingDeadline,
		TimeRemaining:    remaining,
	}, nil
}

func (g *Engine) entries() []*entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*entry, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.proposals[id])
	}
	return out
}

// List returns proposals in creation order, optionally filtered by status.
func (g *Engine) List(status domain.ProposalStatus) []*domain.Proposal {
	var out []*domain.Proposal
	for _, e := range g.entries() {
		e.mu.Lock()
		if status == "" || e.p.Status == status {
			out = append(out, e.p.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// Active returns proposals still open for voting.
func (g *Engine) Active() []*domain.Proposal {
	nowMs := g.now().UnixMilli()
	var out []*domain.Proposal
	for _, p := range g.List(domain.ProposalActive) {
		if nowMs < p.VotingDeadline {
			out = append(out, p)
		}
	}
	return out
}

// ResolveDue resolves every Active proposal whose deadline has passed.
func (g *Engine) ResolveDue() []*domain.Proposal {
	nowMs := g.now().UnixMilli()
	var out []*domain.Proposal
	for _, p := range g.List(domain.ProposalActive) {
		if nowMs < p.VotingDeadline {
			continue
		}
		resolved, err := g.Resolve(p.ID)
		if err == nil {
			out = append(out, resolved)
		}
	}
	return out
}

// Votes returns the ballots on a proposal ordered by cast time.
func (g *Engine) Votes(id string) ([]domain.Vote, error) {
	e, err := g.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	out := make([]domain.Vote, 0, len(e.votes))
	for _, v := range e.votes {
		out = append(out, *v)
	}
	e.mu.Unlock()
	sortVotes(out)
	return out, nil
}

// VotesBy returns every ballot cast by voter.
func (g *Engine) VotesBy(voter string) []domain.Vote {
	var out []domain.Vote
	for _, e := range g.entries() {
		e.mu.Lock()
		if v, ok := e.votes[voter]; ok {
			out = append(out, *v)
		}
		e.mu.Unlock()
	}
	sortVotes(out)
	return out
}

func sortVotes(v []domain.Vote) {
	sort.Slice(v, func(i, j int) bool {
		if v[i].CastAt != v[j].CastAt {
			return v[i].CastAt < v[j].CastAt
		}
		if v[i].ProposalID != v[j].ProposalID {
			return v[i].ProposalID < v[j].ProposalID
		}
		return v[i].Voter < v[j].Voter
	})
}

// Stats summarises governance activity.
func (g *Engine) Stats() Stats {
	st := Stats{
		ByStatus: make(map[domain.ProposalStatus]int),
		ByType:   make(map[domain.ProposalType]int),
	}
	for _, e := range g.entries() {
		e.mu.Lock()
		st.Proposals++
		st.ByStatus[e.p.Status]++
		st.ByType[e.p.Type]++
		st.Votes += len(e.votes)
		e.mu.Unlock()
	}
	return st
}

// DrainDirty returns proposals changed and votes cast since the previous drain.
func (g *Engine) DrainDirty() ([]domain.Proposal, []domain.Vote) {
	g.dirtyMu.Lock()
	ids := g.dirty
	votes := g.pendingVotes
	g.dirty = make(map[string]struct{})
	g.pendingVotes = nil
	g.dirtyMu.Unlock()

	out := make([]domain.Proposal, 0, len(ids))
	for id := range ids {
		if p, err := g.Proposal(id); err == nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, votes
}

// Requeue returns drained items after a failed flush.
func (g *Engine) Requeue(proposals []domain.Proposal, votes []domain.Vote) {
	g.dirtyMu.Lock()
	defer g.dirtyMu.Unlock()
	for _, p := range proposals {
		g.dirty[p.ID] = struct{}{}
	}
	g.pendingVotes = append(votes, g.pendingVotes...)
}

// Restore replaces all proposals and votes with persisted ones.
func (g *Engine) Restore(proposals []domain.Proposal, votes []domain.Vote) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.proposals = make(map[string]*entry, len(proposals))
	g.order = g.order[:0]
	g.counter = 0
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].CreatedAt < proposals[j].CreatedAt })
	for i := range proposals {
		p := proposals[i].Clone()
		g.proposals[p.ID] = &entry{p: p, votes: make(map[string]*domain.Vote)}
		g.order = append(g.order, p.ID)
		if n, err := strconv.Atoi(strings.TrimPrefix(p.ID, "PROP-")); err == nil && n > g.counter {
			g.counter = n
		}
	}
	for i := range votes {
		v := votes[i]
		if e, ok := g.proposals[v.ProposalID]; ok {
			e.votes[v.Voter] = &v
		}
	}
}
