package models

import "time"

// Status is a group order's position in its lifecycle.
type Status string

const (
	StatusOpen      Status = "open"
	StatusSelecting Status = "selecting"
	StatusReady     Status = "ready"
	// StatusClosing is held while the finalized order is being handed to the
	// Order Service. It resolves to closed on success or back to ready on failure.
	StatusClosing   Status = "closing"
	StatusClosed    Status = "closed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition can leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusExpired || s == StatusCancelled
}

// AcceptsContributions reports whether the budget pool is still open.
func (s Status) AcceptsContributions() bool {
	return s == StatusOpen || s == StatusSelecting || s == StatusReady
}

// Role is a participant's role within a group order.
type Role string

const (
	RoleHost   Role = "host"
	RoleMember Role = "member"
)

// DeliveryAddress is passed through untouched to the Order Service.
type DeliveryAddress struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

// GroupOrder is a shared ordering session against a pooled budget.
type GroupOrder struct {
	// ID is the unique identifier for the group order (UUID format).
	// It is never derivable from the share token.
	ID string

	// HostID is the user who created the order and drives its phases.
	HostID string

	// CreatorID is the kitchen the order will be placed with.
	CreatorID string

	// RestaurantName and Title are display fields.
	// Title defaults to "Group order from <RestaurantName>".
	RestaurantName string
	Title          string

	// Status is only ever changed through a compare-and-set on the store.
	Status Status

	// BudgetTarget is an optional soft goal; nil when not set.
	BudgetTarget *Money

	// DeliveryAddress and DeliveryTime are opaque passthrough fields.
	DeliveryAddress *DeliveryAddress
	DeliveryTime    string

	// ShareLinkExpiresAt is when the join link stops resolving and an
	// open order becomes eligible for expiry.
	ShareLinkExpiresAt time.Time

	CreatedAt          time.Time
	SelectionStartedAt *time.Time

	// ClosedAt is stamped when the order reaches any terminal status.
	ClosedAt *time.Time

	// ClosingSince is set while Status is closing.
	ClosingSince *time.Time

	// OrderID is the external order created at close.
	OrderID string

	// Shortfall records how far under-funded an overridden close was.
	Shortfall Money

	// RefundRequired is set when the order ends cancelled or expired with
	// funds in the ledger; the payment orchestrator settles it.
	RefundRequired bool

	UpdatedAt time.Time
}

// ShareLink maps a join token to a group order. Only a digest of the
// token is stored.
type ShareLink struct {
	TokenHash    string
	GroupOrderID string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
