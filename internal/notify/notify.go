// Package notify fans phase-change events out to interested parties.
//
// Delivery is best-effort. Every Notifier in this package returns without
// waiting on a slow consumer, and callers log rather than propagate errors.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/grouporder/internal/models"
)

// ErrDropped is returned when an event could not be queued.
var ErrDropped = errors.New("notification dropped")

// Event describes one applied status transition.
type Event struct {
	GroupOrderID string        `json:"group_order_id"`
	From         models.Status `json:"from"`
	To           models.Status `json:"to"`
	ActorID      string        `json:"actor_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	At           time.Time     `json:"at"`
}

// Notifier receives phase-change events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
