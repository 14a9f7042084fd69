package reporting

import (
	"time"

	"stakegate/internal/domain"
)

// Report is the economy report.
type Report struct {
	GeneratedAt time.Time
	Symbol      string

	Supply         domain.Supply
	Fees           FeeStats
	Allocations    []AllocationRow
	Accounts       AccountSummary
	Flows          []FlowRow     // by transaction kind
	Tiers          []TierRow     // ascending
	Holders        []HolderRow   // top holders by total balance
	Proposals      []ProposalRow // creation order
	ProposalStatus []CountRow    // proposals by status
	Jobs           JobSummary

	// DailyFlows is filled only when an analytics source is configured.
	DailyFlows []DailyFlowRow

	// IntegrityErrors lists stored state that breaks the supply identities.
	IntegrityErrors []string
}

// FeeStats are the cumulative usage fee counters.
type FeeStats struct {
	Collected    domain.Amount
	Burned       domain.Amount
	Reinvested   domain.Amount
	DeflationBps int64 // burned share of the cap
	Holders      int
}

// AllocationRow is one bucket of the supply cap.
type AllocationRow struct {
	Name      string
	ShareBps  int64
	Cap       domain.Amount
	Issued    domain.Amount
	Remaining domain.Amount
}

// AccountSummary counts accounts.
type AccountSummary struct {
	Total   int
	Holders int // non-zero total balance
	Stakers int // non-zero locked balance
}

// FlowRow aggregates the transaction log for one kind.
type FlowRow struct {
	Kind       domain.TxKind
	Count      int
	Volume     domain.Amount
	Burned     domain.Amount
	ToTreasury domain.Amount
}

// TierRow describes one tier and who holds it.
type TierRow struct {
	Tier       domain.Tier
	Threshold  domain.Amount
	APYBps     int64
	Multiplier float64
	Accounts   int
	Locked     domain.Amount
}

// HolderRow is one account in the holder ranking.
type HolderRow struct {
	Account   string
	Available domain.Amount
	Locked    domain.Amount
	Tier      domain.Tier
}

// ProposalRow summarises one proposal.
type ProposalRow struct {
	ID           string
	Type         domain.ProposalType
	Title        string
	Status       domain.ProposalStatus
	VotesFor     domain.Amount
	VotesAgainst domain.Amount
	Voters       int
}

// CountRow is a labelled count.
type CountRow struct {
	Label string
	Count int
}

// JobSummary aggregates scheduler jobs.
type JobSummary struct {
	ByState   []CountRow
	Total     int
	Charged   domain.Amount
	Bonuses   domain.Amount
	Refunds   domain.Amount
	AvgWaitMs int64 // enqueue to start, started jobs only
	AvgRunMs  int64 // start to finish, finished jobs only
}

// DailyFlowRow is one day of one transaction kind.
type DailyFlowRow struct {
	Day        time.Time
	Kind       domain.TxKind
	Count      uint64
	Amount     domain.Amount
	Burned     domain.Amount
	ToTreasury domain.Amount
}
