// Package phase is the only place a group order's status changes.
//
// Every transition re-reads the order, checks role and preconditions
// against what it read, and then writes with a compare-and-set on the
// status it saw. A lost compare-and-set is retried once before the caller
// gets apperr.ErrConflictingTransition.
package phase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/metrics"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/notify"
	"github.com/mmynk/grouporder/internal/storage"
)

const maxAttempts = 2

// Store is the persistence the controller needs.
type Store interface {
	GetGroupOrder(ctx context.Context, id string) (*models.GroupOrder, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, change storage.StatusChange) (bool, error)
	ListParticipants(ctx context.Context, groupOrderID string) ([]*models.Participant, error)
}

// Transition describes one requested status change.
type Transition struct {
	From []models.Status
	To   models.Status

	// ActorID is the caller. System transitions leave it empty and set System.
	ActorID  string
	System   bool
	HostOnly bool

	// NoopIfAlready makes a request for the current status succeed without
	// writing anything.
	NoopIfAlready bool

	// Conflicting lists statuses that mean a duplicate request already won.
	Conflicting []models.Status

	// Check validates preconditions against the order as just read.
	Check func(ctx context.Context, order *models.GroupOrder) error

	Change storage.StatusChange
	Reason string
}

// Result reports the outcome of Apply.
type Result struct {
	Order   *models.GroupOrder
	From    models.Status
	Applied bool
}

// Controller is the PhaseController.
type Controller struct {
	store    Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	nowFunc  func() time.Time
}

// New returns a Controller. nil notifier, metrics and now are replaced by
// no-op defaults and time.Now.
func New(store Store, notifier notify.Notifier, m *metrics.Metrics, now func() time.Time) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Controller{store: store, notifier: notifier, metrics: m, nowFunc: now}
}

// Now returns the controller's clock reading.
func (c *Controller) Now() time.Time {
	return c.nowFunc()
}

// Apply runs t against the group order.
func (c *Controller) Apply(ctx context.Context, groupOrderID string, t Transition) (Result, error) {
	lost := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		order, err := c.load(ctx, groupOrderID)
		if err != nil {
			return Result{}, err
		}

		if !t.System && t.HostOnly && t.ActorID != order.HostID {
			return Result{}, apperr.ErrNotHost
		}

		if order.Status == t.To && t.NoopIfAlready {
			return Result{Order: order, From: order.Status}, nil
		}

		if !contains(t.From, order.Status) || !CanTransition(order.Status, t.To) {
			if lost || contains(t.Conflicting, order.Status) {
				return Result{}, apperr.ErrConflictingTransition.With(
					"group order moved to %s concurrently", order.Status)
			}
			return Result{}, apperr.ErrWrongPhase.With(
				"group order is %s and cannot move to %s", order.Status, t.To)
		}

		if t.Check != nil {
			if err := t.Check(ctx, order); err != nil {
				return Result{}, err
			}
		}

		change := t.Change
		change.At = c.nowFunc()
		ok, err := c.store.CompareAndSetStatus(ctx, groupOrderID, order.Status, t.To, change)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			lost = true
			c.metrics.TransitionConflicts.Inc()
			slog.Debug("Status compare-and-set lost",
				"group_order_id", groupOrderID,
				"from", order.Status,
				"to", t.To,
				"attempt", attempt+1,
			)
			continue
		}

		c.applied(ctx, order, t, change.At)

		updated, err := c.load(ctx, groupOrderID)
		if err != nil {
			return Result{}, err
		}
		return Result{Order: updated, From: order.Status, Applied: true}, nil
	}

	return Result{}, apperr.ErrConflictingTransition
}

func (c *Controller) load(ctx context.Context, groupOrderID string) (*models.GroupOrder, error) {
	order, err := c.store.GetGroupOrder(ctx, groupOrderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrNotFound.With("group order %s not found", groupOrderID)
	}
	return order, err
}

func (c *Controller) applied(ctx context.Context, order *models.GroupOrder, t Transition, at time.Time) {
	c.metrics.Transitions.WithLabelValues(string(order.Status), string(t.To)).Inc()

	actor := t.ActorID
	if t.System {
		actor = "system"
	}
	slog.Info("Group order status changed",
		"group_order_id", order.ID,
		"from", order.Status,
		"to", t.To,
		"actor", actor,
		"reason", t.Reason,
	)

	event := notify.Event{
		GroupOrderID: order.ID,
		From:         order.Status,
		To:           t.To,
		ActorID:      t.ActorID,
		Reason:       t.Reason,
		At:           at,
	}
	if err := c.notifier.Notify(ctx, event); err != nil {
		slog.Warn("Failed to notify phase change",
			"group_order_id", order.ID,
			"to", t.To,
			"error", err,
		)
	}
}

// Announce reports a newly created group order the way a transition is
// reported, as a change from the empty status to open.
func (c *Controller) Announce(ctx context.Context, order *models.GroupOrder) {
	c.applied(ctx, &models.GroupOrder{ID: order.ID}, Transition{
		To:      order.Status,
		ActorID: order.HostID,
		Reason:  "created",
	}, order.CreatedAt)
}
