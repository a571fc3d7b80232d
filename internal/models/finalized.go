package models

import "time"

// MergedItem is a selection line attributed to the participant who chose it.
type MergedItem struct {
	ParticipantID string
	SelectionItem
}

// Payer is one participant's entry in the payer breakdown.
type Payer struct {
	ParticipantID string
	Contributed   Money
	Consumed      Money
}

// FinalizedOrder is the payload handed to the Order Service at close.
type FinalizedOrder struct {
	GroupOrderID string
	OrderID      string
	CreatorID    string
	HostID       string

	Items    []MergedItem
	Subtotal Money
	Discount Money
	Total    Money

	// Collected is the pool read after the order stopped accepting contributions.
	Collected   Money
	Shortfall   Money
	Underfunded bool

	DeliveryAddress *DeliveryAddress
	DeliveryTime    string
	Payers          []Payer

	ClosedAt time.Time
}
