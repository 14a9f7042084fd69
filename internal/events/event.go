// Package events carries economy events to in-process subscribers and
// external sinks.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type names an event.
type Type string

const (
	AccountMinted    Type = "account.minted"
	TransferDone     Type = "transfer.completed"
	StakeChanged     Type = "stake.changed"
	TierChanged      Type = "tier.changed"
	RewardsClaimed   Type = "rewards.claimed"
	ProposalCreated  Type = "proposal.created"
	VoteCast         Type = "vote.cast"
	ProposalResolved Type = "proposal.resolved"
	ProposalExecuted Type = "proposal.executed"
	JobQueued        Type = "job.queued"
	JobStarted       Type = "job.started"
	JobCompleted     Type = "job.completed"
	JobFailed        Type = "job.failed"
)

// Event is an immutable notification.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp int64          `json:"timestamp"` // ms
	Subject   string         `json:"subject"`   // account, proposal or job id
	Data      map[string]any `json:"data,omitempty"`
}

// New builds an event stamped with a random ID and the current time.
func New(t Type, subject string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Subject:   subject,
		Data:      data,
	}
}

// Publisher accepts events. Implementations must not block the caller for long.
type Publisher interface {
	Publish(e Event)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}
