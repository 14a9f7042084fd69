package domain

// TxKind classifies a ledger transaction.
type TxKind string

const (
	TxMint     TxKind = "mint"
	TxBurn     TxKind = "burn"
	TxTransfer TxKind = "transfer"
	TxFee      TxKind = "fee"
	TxReward   TxKind = "reward"
	TxBonus    TxKind = "bonus"
	TxStake    TxKind = "stake"
	TxUnstake  TxKind = "unstake"
	TxRefund   TxKind = "refund"
)

// IsValid checks if the kind is a known value.
func (k TxKind) IsValid() bool {
	switch k {
	case TxMint, TxBurn, TxTransfer, TxFee, TxReward, TxBonus, TxStake, TxUnstake, TxRefund:
		return true
	}
	return false
}

// Transaction is an immutable ledger log entry.
// Burn transactions are ledger-wide and carry an empty Account.
type Transaction struct {
	Seq       int64 // strictly increasing per ledger
	Timestamp int64 // ms
	Kind      TxKind

	Account      string // debited or credited account
	Counterparty string // transfer recipient, or burn source label
	Amount       Amount // gross amount moved

	// Fee split (fee transactions); BurnAmount also set on burn transactions.
	BurnAmount     Amount
	TreasuryAmount Amount

	// Resulting balances
	AvailableAfter             Amount
	LockedAfter                Amount
	CounterpartyAvailableAfter Amount

	Reason string
}

// Involves reports whether the transaction touches the given account.
func (t *Transaction) Involves(account string) bool {
	if account == "" {
		return false
	}
	return t.Account == account || (t.Kind == TxTransfer && t.Counterparty == account)
}
