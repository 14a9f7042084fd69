package domain

import (
	"errors"
	"fmt"
)

// Economy errors. User-facing errors carry context through the typed
// errors below; ErrSupplyCapExceeded and ErrInvariantViolation are bugs.
var (
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrInsufficientBalance        = errors.New("insufficient balance")
	ErrInsufficientStake          = errors.New("insufficient stake")
	ErrInsufficientStakeToPropose = errors.New("insufficient stake to propose")
	ErrTierLimitExceeded          = errors.New("tier limit exceeded")
	ErrProposalNotFound           = errors.New("proposal not found")
	ErrVotingClosed               = errors.New("voting closed")
	ErrVotingOpen                 = errors.New("voting still open")
	ErrAlreadyVoted               = errors.New("already voted")
	ErrNotPassed                  = errors.New("proposal not passed")
	ErrExecutorFailure            = errors.New("executor failure")
	ErrSupplyCapExceeded          = errors.New("supply cap exceeded")
	ErrInvariantViolation         = errors.New("invariant violation")
	ErrJobNotFound                = errors.New("job not found")
	ErrInvalidTransition          = errors.New("invalid state transition")
	ErrInvalidRequest             = errors.New("invalid request")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrQueueClosed                = errors.New("queue closed")
	ErrAllocationExhausted        = errors.New("allocation exhausted")
)

// InsufficientBalanceError reports how much was missing.
type InsufficientBalanceError struct {
	Account   string
	Available Amount
	Required  Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: account %s has %s, needs %s",
		e.Account, e.Available, e.Required)
}

// Missing returns the shortfall.
func (e *InsufficientBalanceError) Missing() Amount {
	return e.Required - e.Available
}

// Is matches ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// InsufficientStakeError reports locked versus required stake.
type InsufficientStakeError struct {
	Account  string
	Locked   Amount
	Required Amount
}

func (e *InsufficientStakeError) Error() string {
	return fmt.Sprintf("insufficient stake: account %s has %s locked, needs %s",
		e.Account, e.Locked, e.Required)
}

// Is matches ErrInsufficientStake.
func (e *InsufficientStakeError) Is(target error) bool {
	return target == ErrInsufficientStake
}

// DeniedError is an access-control refusal. It names the first violating
// field and the lowest tier that would admit it.
type DeniedError struct {
	Field        string
	Requested    string
	Allowed      string
	CurrentTier  Tier
	RequiredTier Tier
	Attainable   bool // false when no tier admits the request
}

func (e *DeniedError) Error() string {
	if !e.Attainable {
		return fmt.Sprintf("tier limit exceeded: %s %s exceeds every tier (current %s allows %s)",
			e.Field, e.Requested, e.CurrentTier, e.Allowed)
	}
	return fmt.Sprintf("tier limit exceeded: %s %s requires tier %s (current %s allows %s)",
		e.Field, e.Requested, e.RequiredTier, e.CurrentTier, e.Allowed)
}

// Is matches ErrTierLimitExceeded.
func (e *DeniedError) Is(target error) bool {
	return target == ErrTierLimitExceeded
}
