package models

import "time"

// Participant is a member of a group order.
// A user appears at most once per group order.
type Participant struct {
	UserID       string
	GroupOrderID string
	Role         Role
	JoinedAt     time.Time

	// SelectionReady is set by the participant once their selection is final.
	// Any later edit to the selection clears it.
	SelectionReady bool
}

// IsHost reports whether the participant hosts the group order.
func (p *Participant) IsHost() bool {
	return p.Role == RoleHost
}
