package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ProposalType classifies a governance proposal.
type ProposalType string

const (
	ProposalNewAgent     ProposalType = "new_agent"
	ProposalAgentUpgrade ProposalType = "agent_upgrade"
	ProposalStylePack    ProposalType = "style_pack"
	ProposalFeature      ProposalType = "feature"
	ProposalParameter    ProposalType = "parameter"
	ProposalTreasury     ProposalType = "treasury"
	ProposalEcosystem    ProposalType = "ecosystem"
)

// ProposalStatus is the governance state of a proposal.
type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "active"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
	ProposalExecuted ProposalStatus = "executed"
)

// IsValid checks if the status is a known value.
func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalActive, ProposalPassed, ProposalRejected, ProposalExpired, ProposalExecuted:
		return true
	}
	return false
}

// Proposal is a governance proposal and its running tally.
type Proposal struct {
	ID             string // "PROP-0001"
	Proposer       string
	Type           ProposalType
	Payload        ProposalPayload
	CreatedAt      int64 // ms
	VotingDeadline int64 // ms
	Status         ProposalStatus

	// Tally in stake-weighted minor units
	VotesFor     Amount
	VotesAgainst Amount
	VoterCount   int

	ResolvedAt int64 // ms, 0 while active
	ExecutedAt int64 // ms, 0 until executed
	ExecutedBy string
}

// Clone returns a deep copy.
func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Payload = p.Payload.Clone()
	return &c
}

// ProposalPayload is the typed body of a proposal.
type ProposalPayload struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params,omitempty"`
}

// Clone returns a deep copy.
func (p ProposalPayload) Clone() ProposalPayload {
	if p.Params == nil {
		return p
	}
	params := make(map[string]string, len(p.Params))
	for k, v := range p.Params {
		params[k] = v
	}
	p.Params = params
	return p
}

type payloadSpec struct {
	required []string
	optional []string
}

var payloadSpecs = map[ProposalType]payloadSpec{
	ProposalNewAgent:     {required: []string{"agent_name", "agent_type"}, optional: []string{"capabilities"}},
	ProposalAgentUpgrade: {required: []string{"agent_name"}, optional: []string{"version", "changes"}},
	ProposalStylePack:    {required: []string{"pack_name"}, optional: []string{"styles"}},
	ProposalFeature:      {required: []string{"feature_name"}, optional: []string{"tier"}},
	ProposalParameter:    {required: []string{"parameter", "new_value"}, optional: []string{"old_value"}},
	ProposalTreasury:     {required: []string{"amount", "recipient"}, optional: []string{"purpose"}},
	ProposalEcosystem:    {optional: []string{"initiative", "partner"}},
}

// IsValid checks if the type is a known value.
func (t ProposalType) IsValid() bool {
	_, ok := payloadSpecs[t]
	return ok
}

// ProposalTypes returns all known types, sorted.
func ProposalTypes() []ProposalType {
	types := make([]ProposalType, 0, len(payloadSpecs))
	for t := range payloadSpecs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Validate checks the payload against the recognized fields of type t.
// Title is always required; unknown params are rejected.
func (p ProposalPayload) Validate(t ProposalType) error {
	spec, ok := payloadSpecs[t]
	if !ok {
		return fmt.Errorf("%w: unknown proposal type %q", ErrInvalidRequest, t)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}

	allowed := make(map[string]struct{}, len(spec.required)+len(spec.optional))
	for _, k := range spec.required {
		allowed[k] = struct{}{}
		if strings.TrimSpace(p.Params[k]) == "" {
			return fmt.Errorf("%w: %s proposal requires param %q", ErrInvalidRequest, t, k)
		}
	}
	for _, k := range spec.optional {
		allowed[k] = struct{}{}
	}
	for k := range p.Params {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%w: %s proposal does not accept param %q", ErrInvalidRequest, t, k)
		}
	}

	if t == ProposalTreasury {
		amount, err := ParseAmount(p.Params["amount"])
		if err != nil {
			return fmt.Errorf("%w: treasury amount: %v", ErrInvalidRequest, err)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("%w: treasury amount must be positive", ErrInvalidRequest)
		}
	}
	return nil
}
