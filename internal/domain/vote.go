package domain

// Vote is an immutable stake-weighted ballot. Unique per (ProposalID, Voter).
type Vote struct {
	ProposalID string
	Voter      string
	Support    bool   // true = for
	Weight     Amount // voter's locked stake at cast time
	CastAt     int64  // ms
}
