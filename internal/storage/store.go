// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/grouporder/internal/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrNotParticipant is returned by participant-scoped writes when the
	// participant has not joined the group order.
	ErrNotParticipant = errors.New("participant not found")

	// ErrEmptySelection is returned when marking ready without any items.
	ErrEmptySelection = errors.New("selection has no items")

	// ErrDuplicateKey is returned when an idempotency key is already taken
	// by an unrelated write.
	ErrDuplicateKey = errors.New("idempotency key already used")

	// ErrPoolLimit is returned when a contribution would push the collected
	// total of a group order past models.MaxPool.
	ErrPoolLimit = errors.New("contribution pool limit reached")
)

// StatusMismatchError is returned by writes guarded on the group order's
// status when the status found inside the transaction was not allowed.
type StatusMismatchError struct {
	Actual models.Status
}

func (e *StatusMismatchError) Error() string {
	return fmt.Sprintf("group order status is %s", e.Actual)
}

// StatusChange describes the columns written together with a status
// compare-and-set.
type StatusChange struct {
	At time.Time

	// SelectionStarted stamps selection_started_at.
	SelectionStarted bool

	// Closing stamps closing_since; any other transition clears it.
	Closing bool

	// Terminal stamps closed_at.
	Terminal bool

	// OrderID and Shortfall are recorded on close.
	OrderID   string
	Shortfall models.Money

	// ClearOrderID drops a recorded order ID, for a submission that failed.
	ClearOrderID bool

	// FlagRefund sets refund_required when the ledger holds any funds.
	FlagRefund bool
}

// GroupOrderStore persists the aggregate root.
type GroupOrderStore interface {
	// CreateGroupOrder writes the order, its host participant and its share
	// link in one transaction.
	CreateGroupOrder(ctx context.Context, order *models.GroupOrder, host *models.Participant, link *models.ShareLink) error

	// GetGroupOrder returns ErrNotFound for unknown IDs.
	GetGroupOrder(ctx context.Context, id string) (*models.GroupOrder, error)

	// CompareAndSetStatus moves the order from one status to another only if
	// it is still in from. It reports whether the write happened.
	CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, change StatusChange) (bool, error)

	// RecordOrderID stores the external order ID of a closing order before it
	// is submitted. It reports false when the order is not closing or
	// already has one.
	RecordOrderID(ctx context.Context, id, orderID string, at time.Time) (bool, error)

	// ListGroupOrdersByStatus returns every order currently in status.
	ListGroupOrdersByStatus(ctx context.Context, status models.Status) ([]*models.GroupOrder, error)

	// ListReapable returns terminal orders closed before cutoff whose
	// participants and selections are still present.
	ListReapable(ctx context.Context, cutoff time.Time) ([]string, error)

	// PurgeMembership deletes participants and selections of a terminal
	// order. Contributions are kept.
	PurgeMembership(ctx context.Context, id string, at time.Time) error
}

// ShareLinkStore persists join tokens.
type ShareLinkStore interface {
	// Links are written by GroupOrderStore.CreateGroupOrder.
	GetShareLink(ctx context.Context, tokenHash string) (*models.ShareLink, error)
}

// ParticipantStore persists group order membership.
type ParticipantStore interface {
	// AddParticipant inserts p (and initial, when non-nil) if the order is
	// open. When the user already joined it returns the existing row and
	// created=false without touching the ledger.
	AddParticipant(ctx context.Context, p *models.Participant, initial *models.Contribution) (participant *models.Participant, created bool, err error)

	GetParticipant(ctx context.Context, groupOrderID, userID string) (*models.Participant, error)

	// ListParticipants returns participants in join order.
	ListParticipants(ctx context.Context, groupOrderID string) ([]*models.Participant, error)

	// SetSelectionReady flags the participant ready while the order is
	// selecting. Returns ErrEmptySelection when they have no items.
	SetSelectionReady(ctx context.Context, groupOrderID, userID string) error
}

// SelectionStore persists per-participant selections.
type SelectionStore interface {
	// PutSelection replaces the participant's items while the order is
	// selecting and clears their ready flag.
	PutSelection(ctx context.Context, sel *models.Selection) error

	GetSelection(ctx context.Context, groupOrderID, participantID string) (*models.Selection, error)
	ListSelections(ctx context.Context, groupOrderID string) ([]*models.Selection, error)
}

// LedgerStore persists the append-only contribution log.
type LedgerStore interface {
	// AppendContribution inserts c while the order accepts contributions.
	// When c.IdempotencyKey was already recorded it returns the earlier
	// entry and duplicate=true.
	AppendContribution(ctx context.Context, c *models.Contribution) (stored *models.Contribution, duplicate bool, err error)

	ListContributions(ctx context.Context, groupOrderID string) ([]*models.Contribution, error)
	SumContributions(ctx context.Context, groupOrderID string) (models.Money, error)
}

// Store bundles every persistence concern of the engine.
// This abstraction allows swapping storage backends without changing
// the engine.
type Store interface {
	GroupOrderStore
	ShareLinkStore
	ParticipantStore
	SelectionStore
	LedgerStore

	// Close releases any resources held by the store.
	Close() error
}
