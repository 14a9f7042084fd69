// Package memory provides in-memory implementations of the storage interfaces.
package memory

import "stakegate/internal/storage"

// NewStores returns a fresh set of in-memory stores.
func NewStores() storage.Stores {
	return storage.Stores{
		Accounts:     NewAccountStore(),
		Supply:       NewSupplyStore(),
		Transactions: NewTransactionStore(),
		Stakes:       NewStakeStore(),
		Proposals:    NewProposalStore(),
		Votes:        NewVoteStore(),
		Jobs:         NewJobStore(),
	}
}
