package domain

// Account holds an identity's spendable and staked balances.
// Created on first credit; never deleted.
type Account struct {
	ID        string
	Available Amount // spendable balance
	Locked    Amount // balance locked as stake
	CreatedAt int64  // first credit timestamp (ms)
	UpdatedAt int64  // last mutation timestamp (ms)
}

// Total returns available plus locked.
func (a *Account) Total() Amount {
	return a.Available + a.Locked
}
