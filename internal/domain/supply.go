package domain

// Supply is the ledger-wide token accounting.
//
// At every observable instant:
//
//	Σ(available+locked) == Circulating
//	Circulating + Burned + Treasury + Unissued == Total
//	Σ(allocation remaining) == Unissued
type Supply struct {
	Total       Amount // fixed cap
	Circulating Amount // held by accounts, available or locked
	Burned      Amount // permanently destroyed
	Treasury    Amount // platform treasury
	Unissued    Amount // not yet minted remainder of the cap

	// Allocations splits the cap into named buckets that mints draw from.
	Allocations []Allocation `json:",omitempty"`

	// Cumulative usage fee statistics.
	FeesCollected  Amount // fee part of every charge
	FeesBurned     Amount // fee share destroyed
	FeesReinvested Amount // fee share kept by the treasury
}

// Allocation is one bucket of the supply cap.
type Allocation struct {
	Name     string `json:"name"`
	ShareBps int64  `json:"share_bps"`
	Cap      Amount `json:"cap"`
	Issued   Amount `json:"issued"`
}

// Remaining is what the bucket can still issue.
func (a Allocation) Remaining() Amount { return a.Cap - a.Issued }

// Accounted returns the sum the cap must equal.
func (s Supply) Accounted() Amount {
	return s.Circulating + s.Burned + s.Treasury + s.Unissued
}

// Clone returns a copy that shares no memory with s.
func (s Supply) Clone() Supply {
	if s.Allocations != nil {
		s.Allocations = append([]Allocation(nil), s.Allocations...)
	}
	return s
}

// Allocation returns the bucket called name.
func (s Supply) Allocation(name string) (Allocation, bool) {
	for _, a := range s.Allocations {
		if a.Name == name {
			return a, true
		}
	}
	return Allocation{}, false
}

// AllocationRemaining sums what every bucket can still issue.
func (s Supply) AllocationRemaining() Amount {
	var sum Amount
	for _, a := range s.Allocations {
		sum += a.Remaining()
	}
	return sum
}

// DeflationBps is the burned share of the cap in basis points.
func (s Supply) DeflationBps() int64 {
	if s.Total <= 0 {
		return 0
	}
	return int64(float64(s.Burned) / float64(s.Total) * 10_000)
}
