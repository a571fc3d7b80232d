package models

import "time"

// Contribution is an immutable ledger entry pledging funds to the pool.
type Contribution struct {
	// ID is the unique identifier for the entry (UUID format).
	ID string

	GroupOrderID  string
	ParticipantID string

	// Amount is always positive.
	Amount Money

	// IdempotencyKey is unique per group order. A retried call with the
	// same key resolves to the entry recorded the first time.
	IdempotencyKey string

	CreatedAt time.Time
}

// ParticipantTotal is one participant's share of the pool.
type ParticipantTotal struct {
	ParticipantID string
	Amount        Money
	Count         int
}

// BudgetSummary is derived from the ledger on every read.
type BudgetSummary struct {
	Collected      Money
	Target         *Money
	PerParticipant []ParticipantTotal
}

// Remaining returns how much is still needed to reach the target, or zero.
func (b BudgetSummary) Remaining() Money {
	if b.Target == nil || b.Collected >= *b.Target {
		return 0
	}
	return *b.Target - b.Collected
}
