package grouporder

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/calculator"
	"github.com/mmynk/grouporder/internal/ledger"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/ordersink"
	"github.com/mmynk/grouporder/internal/phase"
)

// StartSelection moves the order from open to selecting.
func (e *Engine) StartSelection(ctx context.Context, groupOrderID, hostID string) (*models.GroupOrder, error) {
	if _, err := e.touch(ctx, groupOrderID); err != nil {
		return nil, err
	}
	res, err := e.phase.StartSelection(ctx, groupOrderID, hostID, e.cfg.MinMembersToStart)
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// AdvanceToReady moves the order from selecting to ready. With force the
// host skips the readiness check; the participants who were not ready are
// returned either way.
func (e *Engine) AdvanceToReady(ctx context.Context, groupOrderID, hostID string, force bool) (*models.GroupOrder, []string, error) {
	res, notReady, err := e.phase.AdvanceToReady(ctx, groupOrderID, hostID, force)
	if err != nil {
		return nil, nil, err
	}
	return res.Order, notReady, nil
}

// CancelGroupOrder ends an open or selecting order on the host's request.
func (e *Engine) CancelGroupOrder(ctx context.Context, groupOrderID, actorID string) (*models.GroupOrder, error) {
	if actorID == "" {
		return nil, apperr.ErrInvalidInput.With("actor id is required")
	}
	if _, err := e.touch(ctx, groupOrderID); err != nil {
		return nil, err
	}
	res, err := e.phase.Cancel(ctx, groupOrderID, actorID, "cancelled by host")
	if err != nil {
		return nil, err
	}
	if res.Applied && res.Order.RefundRequired {
		slog.Info("Group order cancelled with funds to refund", "group_order_id", groupOrderID)
	}
	return res.Order, nil
}

// CloseGroupOrder finalizes a ready order and hands it to the Order
// Service. The order holds the closing status for the duration, so the
// pool cannot change and a duplicate close gets a conflict. Failures before
// the hand-over return the order to ready.
//
// The order ID is recorded before submission. From then on the order is
// never submitted again: if the final write fails, the sweep settles the
// order as closed instead of handing it back to the host.
func (e *Engine) CloseGroupOrder(ctx context.Context, groupOrderID, hostID string, allowUnderfunded bool) (*models.FinalizedOrder, error) {
	res, err := e.phase.BeginClose(ctx, groupOrderID, hostID)
	if err != nil {
		return nil, err
	}
	order := res.Order

	finalized, err := e.finalize(ctx, order, allowUnderfunded)
	if err != nil {
		e.rollback(ctx, groupOrderID, err)
		return nil, err
	}

	orderID := ordersink.OrderIDFor(groupOrderID)
	recorded, err := e.store.RecordOrderID(ctx, groupOrderID, orderID, e.nowFunc())
	if err == nil && !recorded {
		err = apperr.ErrConflictingTransition.With("group order left closing before submission")
	}
	if err != nil {
		e.rollback(ctx, groupOrderID, err)
		return nil, err
	}

	submittedID, err := e.sink.SubmitOrder(ctx, finalized)
	if err != nil {
		err = apperr.ErrOrderService.Wrap(err)
		e.rollback(ctx, groupOrderID, err)
		return nil, err
	}
	if submittedID != "" {
		orderID = submittedID
	}

	done, err := e.phase.CompleteClose(context.WithoutCancel(ctx), groupOrderID, hostID, orderID, finalized.Shortfall)
	if err != nil {
		slog.Error("Failed to record closed group order, the sweep will settle it",
			"group_order_id", groupOrderID,
			"order_id", orderID,
			"error", err,
		)
		return nil, err
	}

	finalized.OrderID = orderID
	if done.Order.ClosedAt != nil {
		finalized.ClosedAt = *done.Order.ClosedAt
	}

	slog.Info("Group order closed",
		"group_order_id", groupOrderID,
		"order_id", orderID,
		"items", len(finalized.Items),
		"total", finalized.Total.String(),
		"collected", finalized.Collected.String(),
	)
	return finalized, nil
}

// settle closes an order stuck in closing after it was submitted. The
// shortfall is recomputed from the frozen pool.
func (e *Engine) settle(ctx context.Context, order *models.GroupOrder, staleAfter time.Duration) (phase.Result, error) {
	finalized, err := e.finalize(ctx, order, true)
	if err != nil {
		return phase.Result{}, err
	}
	res, err := e.phase.SettleStuckClosing(ctx, order.ID, staleAfter, finalized.Shortfall)
	if err != nil {
		return res, err
	}
	slog.Warn("Settled group order stuck in closing without resubmitting",
		"group_order_id", order.ID,
		"order_id", order.OrderID,
	)
	return res, nil
}

// finalize builds the payload for a closing order.
func (e *Engine) finalize(ctx context.Context, order *models.GroupOrder, allowUnderfunded bool) (*models.FinalizedOrder, error) {
	participants, err := e.registry.List(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	selections, err := e.selections.List(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	contributions, err := e.store.ListContributions(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	members := make(map[string]bool, len(participants))
	for _, p := range participants {
		members[p.UserID] = true
	}
	for _, sel := range selections {
		if !members[sel.ParticipantID] {
			slog.Error("Selection without participant",
				"group_order_id", order.ID,
				"participant_id", sel.ParticipantID,
			)
			return nil, apperr.ErrCorrupt.With("selection for unknown participant %s", sel.ParticipantID)
		}
	}

	items := calculator.Merge(selections)
	if len(items) == 0 {
		return nil, apperr.ErrEmptySelection.With("no participant has selected any items")
	}

	totals, err := calculator.Price(selections, len(participants), e.cfg.Discount)
	if err != nil {
		return nil, apperr.ErrInvalidInput.With("order total out of range").Wrap(err)
	}

	// Contributions stopped at closing, so this read is final.
	collected, err := e.ledger.Collected(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if logged := ledger.Aggregate(contributions).Collected; logged != collected {
		slog.Error("Ledger sum disagrees with ledger entries",
			"group_order_id", order.ID,
			"sum", collected.String(),
			"entries", logged.String(),
		)
		return nil, apperr.ErrCorrupt.With("ledger sum %s disagrees with entries %s", collected, logged)
	}

	var shortfall models.Money
	if collected < totals.Total {
		shortfall = totals.Total - collected
		if !allowUnderfunded {
			return nil, apperr.ErrUnderfunded.With("collected %s of %s", collected, totals.Total)
		}
		slog.Warn("Closing under-funded group order",
			"group_order_id", order.ID,
			"host_id", order.HostID,
			"collected", collected.String(),
			"total", totals.Total.String(),
			"shortfall", shortfall.String(),
		)
	}

	payers, err := calculator.PayerBreakdown(participants, contributions, selections, totals)
	if err != nil {
		return nil, apperr.ErrInvalidInput.With("order total out of range").Wrap(err)
	}

	return &models.FinalizedOrder{
		GroupOrderID:    order.ID,
		CreatorID:       order.CreatorID,
		HostID:          order.HostID,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Discount:        totals.Discount,
		Total:           totals.Total,
		Collected:       collected,
		Shortfall:       shortfall,
		Underfunded:     shortfall > 0,
		DeliveryAddress: order.DeliveryAddress,
		DeliveryTime:    order.DeliveryTime,
		Payers:          payers,
		ClosedAt:        e.nowFunc(),
	}, nil
}

// rollback returns a closing order to ready after a failed close.
func (e *Engine) rollback(ctx context.Context, groupOrderID string, cause error) {
	if _, err := e.phase.AbortClose(context.WithoutCancel(ctx), groupOrderID, cause.Error()); err != nil {
		slog.Error("Failed to roll back close",
			"group_order_id", groupOrderID,
			"cause", cause,
			"error", err,
		)
		return
	}

	level := slog.LevelWarn
	if apperr.KindOf(cause) == apperr.KindFatal || apperr.KindOf(cause) == apperr.KindExternal {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "Close rolled back", "group_order_id", groupOrderID, "cause", cause)
}
