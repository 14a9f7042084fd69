package api

import (
	"stakegate/internal/domain"
)

type denialView struct {
	Field        string      `json:"field"`
	Requested    string      `json:"requested"`
	Allowed      string      `json:"allowed"`
	CurrentTier  domain.Tier `json:"current_tier"`
	RequiredTier domain.Tier `json:"required_tier"`
	Attainable   bool        `json:"attainable"`
}

func newDenialView(d *domain.DeniedError) *denialView {
	return &denialView{
		Field:        d.Field,
		Requested:    d.Requested,
		Allowed:      d.Allowed,
		CurrentTier:  d.CurrentTier,
		RequiredTier: d.RequiredTier,
		Attainable:   d.Attainable,
	}
}

type accountView struct {
	ID        string        `json:"id"`
	Available domain.Amount `json:"available"`
	Locked    domain.Amount `json:"locked"`
	Total     domain.Amount `json:"total"`
	CreatedAt int64         `json:"created_at"`
	UpdatedAt int64         `json:"updated_at"`
}

func newAccountView(a domain.Account) accountView {
	return accountView{
		ID:        a.ID,
		Available: a.Available,
		Locked:    a.Locked,
		Total:     a.Total(),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type supplyView struct {
	Total       domain.Amount `json:"total"`
	Circulating domain.Amount `json:"circulating"`
	Burned      domain.Amount `json:"burned"`
	Treasury    domain.Amount `json:"treasury"`
	Unissued    domain.Amount `json:"unissued"`

	FeesCollected  domain.Amount    `json:"fees_collected"`
	FeesBurned     domain.Amount    `json:"fees_burned"`
	FeesReinvested domain.Amount    `json:"fees_reinvested"`
	DeflationBps   int64            `json:"deflation_bps"`
	Holders        int              `json:"holders"`
	Allocations    []allocationView `json:"allocations"`
}

type allocationView struct {
	Name      string        `json:"name"`
	ShareBps  int64         `json:"share_bps"`
	Cap       domain.Amount `json:"cap"`
	Issued    domain.Amount `json:"issued"`
	Remaining domain.Amount `json:"remaining"`
}

func newSupplyView(s domain.Supply, holders int) supplyView {
	v := supplyView{
		Total:          s.Total,
		Circulating:    s.Circulating,
		Burned:         s.Burned,
		Treasury:       s.Treasury,
		Unissued:       s.Unissued,
		FeesCollected:  s.FeesCollected,
		FeesBurned:     s.FeesBurned,
		FeesReinvested: s.FeesReinvested,
		DeflationBps:   s.DeflationBps(),
		Holders:        holders,
		Allocations:    make([]allocationView, 0, len(s.Allocations)),
	}
	for _, a := range s.Allocations {
		v.Allocations = append(v.Allocations, allocationView{
			Name: a.Name, ShareBps: a.ShareBps, Cap: a.Cap, Issued: a.Issued, Remaining: a.Remaining(),
		})
	}
	return v
}

type txView struct {
	Seq            int64         `json:"seq"`
	Timestamp      int64         `json:"timestamp"`
	Kind           domain.TxKind `json:"kind"`
	Account        string        `json:"account,omitempty"`
	Counterparty   string        `json:"counterparty,omitempty"`
	Amount         domain.Amount `json:"amount"`
	BurnAmount     domain.Amount `json:"burn_amount,omitempty"`
	TreasuryAmount domain.Amount `json:"treasury_amount,omitempty"`
	AvailableAfter domain.Amount `json:"available_after"`
	LockedAfter    domain.Amount `json:"locked_after"`
	Reason         string        `json:"reason,omitempty"`
}

func newTxView(t *domain.Transaction) txView {
	return txView{
		Seq:            t.Seq,
		Timestamp:      t.Timestamp,
		Kind:           t.Kind,
		Account:        t.Account,
		Counterparty:   t.Counterparty,
		Amount:         t.Amount,
		BurnAmount:     t.BurnAmount,
		TreasuryAmount: t.TreasuryAmount,
		AvailableAfter: t.AvailableAfter,
		LockedAfter:    t.LockedAfter,
		Reason:         t.Reason,
	}
}

func newTxViews(txs []*domain.Transaction) []txView {
	out := make([]txView, 0, len(txs))
	for _, t := range txs {
		out = append(out, newTxView(t))
	}
	return out
}

type proposalView struct {
	ID             string                 `json:"id"`
	Proposer       string                 `json:"proposer"`
	Type           domain.ProposalType    `json:"type"`
	Payload        domain.ProposalPayload `json:"payload"`
	Status         domain.ProposalStatus  `json:"status"`
	CreatedAt      int64                  `json:"created_at"`
	VotingDeadline int64                  `json:"voting_deadline"`
	VotesFor       domain.Amount          `json:"votes_for"`
	VotesAgainst   domain.Amount          `json:"votes_against"`
	VoterCount     int                    `json:"voter_count"`
	ResolvedAt     int64                  `json:"resolved_at,omitempty"`
	ExecutedAt     int64                  `json:"executed_at,omitempty"`
	ExecutedBy     string                 `json:"executed_by,omitempty"`
}

func newProposalView(p *domain.Proposal) proposalView {
	return proposalView{
		ID:             p.ID,
		Proposer:       p.Proposer,
		Type:           p.Type,
		Payload:        p.Payload,
		Status:         p.Status,
		CreatedAt:      p.CreatedAt,
		VotingDeadline: p.VotingDeadline,
		VotesFor:       p.VotesFor,
		VotesAgainst:   p.VotesAgainst,
		VoterCount:     p.VoterCount,
		ResolvedAt:     p.ResolvedAt,
		ExecutedAt:     p.ExecutedAt,
		ExecutedBy:     p.ExecutedBy,
	}
}

type voteView struct {
	ProposalID string        `json:"proposal_id"`
	Voter      string        `json:"voter"`
	Support    bool          `json:"support"`
	Weight     domain.Amount `json:"weight"`
	CastAt     int64         `json:"cast_at"`
}

func newVoteView(v domain.Vote) voteView {
	return voteView{
		ProposalID: v.ProposalID,
		Voter:      v.Voter,
		Support:    v.Support,
		Weight:     v.Weight,
		CastAt:     v.CastAt,
	}
}

type jobView struct {
	ID               string                 `json:"id"`
	Owner            string                 `json:"owner"`
	Request          domain.ResourceRequest `json:"request"`
	State            domain.JobState        `json:"state"`
	Cost             domain.Amount          `json:"cost"`
	PriorityScore    float64                `json:"priority_score"`
	QueuePosition    int                    `json:"queue_position,omitempty"`
	EnqueuedAt       int64                  `json:"enqueued_at"`
	StartedAt        int64                  `json:"started_at,omitempty"`
	FinishedAt       int64                  `json:"finished_at,omitempty"`
	ErrorReason      string                 `json:"error_reason,omitempty"`
	ArtifactMetadata map[string]string      `json:"artifact_metadata,omitempty"`
	Bonus            domain.Amount          `json:"bonus,omitempty"`
	Refund           domain.Amount          `json:"refund,omitempty"`
}

func newJobView(j *domain.Job) jobView {
	return jobView{
		ID:               j.ID,
		Owner:            j.Owner,
		Request:          j.Request,
		State:            j.State,
		Cost:             j.Cost,
		PriorityScore:    j.PriorityScore,
		EnqueuedAt:       j.EnqueuedAt,
		StartedAt:        j.StartedAt,
		FinishedAt:       j.FinishedAt,
		ErrorReason:      j.ErrorReason,
		ArtifactMetadata: j.ArtifactMetadata,
		Bonus:            j.Bonus,
		Refund:           j.Refund,
	}
}

func newJobViews(jobs []*domain.Job) []jobView {
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobView(j))
	}
	return out
}
