package phase

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/registry"
	"github.com/mmynk/grouporder/internal/storage"
)

// StartSelection moves open → selecting once at least minMembers
// participants besides the host have joined.
func (c *Controller) StartSelection(ctx context.Context, groupOrderID, hostID string, minMembers int) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:          []models.Status{models.StatusOpen},
		To:            models.StatusSelecting,
		ActorID:       hostID,
		HostOnly:      true,
		NoopIfAlready: true,
		Change:        storage.StatusChange{SelectionStarted: true},
		Check: func(ctx context.Context, order *models.GroupOrder) error {
			if c.nowFunc().After(order.ShareLinkExpiresAt) {
				return apperr.ErrExpiredLink.With("group order expired at %s", order.ShareLinkExpiresAt.Format(time.RFC3339))
			}
			participants, err := c.store.ListParticipants(ctx, order.ID)
			if err != nil {
				return err
			}
			if n := registry.Members(participants); n < minMembers {
				return apperr.ErrNotEnoughMembers.With("%d of %d required participants have joined", n, minMembers)
			}
			return nil
		},
	})
}

// AdvanceToReady moves selecting → ready. Unless force is set every
// participant must have marked ready. It returns the participants who were
// not ready when the order advanced.
func (c *Controller) AdvanceToReady(ctx context.Context, groupOrderID, hostID string, force bool) (Result, []string, error) {
	var notReady []string
	res, err := c.Apply(ctx, groupOrderID, Transition{
		From:          []models.Status{models.StatusSelecting},
		To:            models.StatusReady,
		ActorID:       hostID,
		HostOnly:      true,
		NoopIfAlready: true,
		Reason:        advanceReason(force),
		Check: func(ctx context.Context, order *models.GroupOrder) error {
			participants, err := c.store.ListParticipants(ctx, order.ID)
			if err != nil {
				return err
			}
			notReady = registry.NotReady(participants)
			if len(notReady) > 0 && !force {
				return apperr.ErrNotReady.With("%d participants have not marked ready", len(notReady))
			}
			return nil
		},
	})
	if err != nil {
		return Result{}, nil, err
	}

	if res.Applied && len(notReady) > 0 {
		slog.Warn("Selection phase forced to ready",
			"group_order_id", groupOrderID,
			"host_id", hostID,
			"not_ready", notReady,
		)
	}
	return res, notReady, nil
}

// AutoAdvance moves selecting → ready on the system's behalf when every
// participant is ready. It reports whether the order advanced.
func (c *Controller) AutoAdvance(ctx context.Context, groupOrderID string) (bool, error) {
	res, err := c.Apply(ctx, groupOrderID, Transition{
		From:          []models.Status{models.StatusSelecting},
		To:            models.StatusReady,
		System:        true,
		NoopIfAlready: true,
		Reason:        "all participants ready",
		Check: func(ctx context.Context, order *models.GroupOrder) error {
			participants, err := c.store.ListParticipants(ctx, order.ID)
			if err != nil {
				return err
			}
			if len(registry.NotReady(participants)) > 0 {
				return apperr.ErrNotReady
			}
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return res.Applied, nil
}

// BeginClose moves ready → closing. From here contributions are refused,
// so the pool read afterwards is final for the funding check.
func (c *Controller) BeginClose(ctx context.Context, groupOrderID, hostID string) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:        []models.Status{models.StatusReady},
		To:          models.StatusClosing,
		ActorID:     hostID,
		HostOnly:    true,
		Conflicting: []models.Status{models.StatusClosing, models.StatusClosed},
		Change:      storage.StatusChange{Closing: true},
	})
}

// CompleteClose moves closing → closed and records the external order.
func (c *Controller) CompleteClose(ctx context.Context, groupOrderID, hostID, orderID string, shortfall models.Money) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:    []models.Status{models.StatusClosing},
		To:      models.StatusClosed,
		ActorID: hostID,
		Change: storage.StatusChange{
			Terminal:  true,
			OrderID:   orderID,
			Shortfall: shortfall,
		},
		Reason: "order submitted",
	})
}

// AbortClose rolls closing back to ready so the host can retry. Any
// recorded order ID is dropped with it.
func (c *Controller) AbortClose(ctx context.Context, groupOrderID, reason string) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:   []models.Status{models.StatusClosing},
		To:     models.StatusReady,
		System: true,
		Change: storage.StatusChange{ClearOrderID: true},
		Reason: reason,
	})
}

// Cancel ends an open or selecting order. A non-empty actorID must be the
// host; an empty one cancels on the system's behalf.
func (c *Controller) Cancel(ctx context.Context, groupOrderID, actorID, reason string) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:          []models.Status{models.StatusOpen, models.StatusSelecting},
		To:            models.StatusCancelled,
		ActorID:       actorID,
		System:        actorID == "",
		HostOnly:      true,
		NoopIfAlready: true,
		Change:        storage.StatusChange{Terminal: true, FlagRefund: true},
		Reason:        reason,
	})
}

// Expire moves an open order whose share link has lapsed to expired.
func (c *Controller) Expire(ctx context.Context, groupOrderID string) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:          []models.Status{models.StatusOpen},
		To:            models.StatusExpired,
		System:        true,
		NoopIfAlready: true,
		Change:        storage.StatusChange{Terminal: true, FlagRefund: true},
		Reason:        "share link expired",
		Check: func(_ context.Context, order *models.GroupOrder) error {
			if !c.nowFunc().After(order.ShareLinkExpiresAt) {
				return apperr.ErrWrongPhase.With("group order does not expire until %s", order.ShareLinkExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	})
}

// ExpireIfDue lazily expires order when it is open past its share link
// expiry. It returns the order as it stands afterwards.
func (c *Controller) ExpireIfDue(ctx context.Context, order *models.GroupOrder) (*models.GroupOrder, error) {
	if order.Status != models.StatusOpen || !c.nowFunc().After(order.ShareLinkExpiresAt) {
		return order, nil
	}

	res, err := c.Expire(ctx, order.ID)
	if err != nil {
		// Someone else moved the order first; report what is there now.
		if apperr.KindOf(err) == apperr.KindConflict || apperr.KindOf(err) == apperr.KindPhase {
			return c.load(ctx, order.ID)
		}
		return nil, err
	}
	return res.Order, nil
}

// CancelStalled cancels a selecting order that has not advanced within
// staleAfter of selection starting.
func (c *Controller) CancelStalled(ctx context.Context, groupOrderID string, staleAfter time.Duration) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:   []models.Status{models.StatusSelecting},
		To:     models.StatusCancelled,
		System: true,
		Change: storage.StatusChange{Terminal: true, FlagRefund: true},
		Reason: "selection stalled",
		Check: func(_ context.Context, order *models.GroupOrder) error {
			if order.SelectionStartedAt == nil || c.nowFunc().Sub(*order.SelectionStartedAt) < staleAfter {
				return apperr.ErrWrongPhase.With("selection is not stale")
			}
			return nil
		},
	})
}

// RestoreStuckClosing rolls back a close that has been in flight longer
// than staleAfter without reaching the Order Service, e.g. after a crash
// while finalizing. Orders with a recorded order ID were handed over and
// are left for SettleStuckClosing.
func (c *Controller) RestoreStuckClosing(ctx context.Context, groupOrderID string, staleAfter time.Duration) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:   []models.Status{models.StatusClosing},
		To:     models.StatusReady,
		System: true,
		Reason: "close did not complete",
		Check: func(_ context.Context, order *models.GroupOrder) error {
			if order.OrderID != "" {
				return apperr.ErrWrongPhase.With("order %s was already submitted", order.OrderID)
			}
			return c.stale(order, staleAfter)
		},
	})
}

// SettleStuckClosing closes an order that was handed to the Order Service
// but whose final write never landed. It does not submit again.
func (c *Controller) SettleStuckClosing(ctx context.Context, groupOrderID string, staleAfter time.Duration, shortfall models.Money) (Result, error) {
	return c.Apply(ctx, groupOrderID, Transition{
		From:   []models.Status{models.StatusClosing},
		To:     models.StatusClosed,
		System: true,
		Change: storage.StatusChange{Terminal: true, Shortfall: shortfall},
		Reason: "order submitted",
		Check: func(_ context.Context, order *models.GroupOrder) error {
			if order.OrderID == "" {
				return apperr.ErrWrongPhase.With("order was never submitted")
			}
			return c.stale(order, staleAfter)
		},
	})
}

func (c *Controller) stale(order *models.GroupOrder, staleAfter time.Duration) error {
	if order.ClosingSince == nil || c.nowFunc().Sub(*order.ClosingSince) < staleAfter {
		return apperr.ErrWrongPhase.With("close is still in flight")
	}
	return nil
}

func advanceReason(force bool) string {
	if force {
		return "forced by host"
	}
	return "all participants ready"
}
