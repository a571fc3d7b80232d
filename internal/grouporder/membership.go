package grouporder

import (
	"context"
	"log/slog"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/registry"
)

// JoinRequest joins a user by share token or by group order ID.
// Exactly one of Token and GroupOrderID must be set.
type JoinRequest struct {
	Token        string
	GroupOrderID string
	UserID       string

	// IdempotencyKey dedupes the initial contribution across retries.
	IdempotencyKey      string
	InitialContribution *models.Money
}

// JoinGroupOrder adds the user to an open group order, returning the
// existing participant if they already joined.
func (e *Engine) JoinGroupOrder(ctx context.Context, req JoinRequest) (*models.Participant, error) {
	if (req.Token == "") == (req.GroupOrderID == "") {
		return nil, apperr.ErrInvalidInput.With("exactly one of token and group order id is required")
	}

	groupOrderID := req.GroupOrderID
	if req.Token != "" {
		id, err := e.links.Resolve(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		groupOrderID = id
	}

	if _, err := e.touch(ctx, groupOrderID); err != nil {
		return nil, err
	}

	var initial *registry.InitialContribution
	if req.InitialContribution != nil {
		initial = &registry.InitialContribution{
			Amount:         *req.InitialContribution,
			IdempotencyKey: req.IdempotencyKey,
		}
	}

	p, _, err := e.registry.Join(ctx, groupOrderID, req.UserID, initial)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateSelection replaces the participant's items. actorID must be the
// participant.
func (e *Engine) UpdateSelection(ctx context.Context, groupOrderID, actorID, participantID string, items []models.SelectionItem) (*models.Selection, error) {
	if actorID != participantID {
		return nil, apperr.ErrForbidden
	}
	order, err := e.load(ctx, groupOrderID)
	if err != nil {
		return nil, err
	}
	// The store checks again inside its transaction.
	if order.Status != models.StatusSelecting {
		return nil, apperr.ErrWrongPhase.With("selections cannot change while group order is %s", order.Status)
	}
	return e.selections.Update(ctx, groupOrderID, actorID, participantID, items)
}

// MarkSelectionReady flags the participant's selection final. When that
// makes everyone ready the order advances to ready on its own; the
// returned bool reports whether that happened on this call.
func (e *Engine) MarkSelectionReady(ctx context.Context, groupOrderID, actorID, participantID string) (bool, error) {
	if actorID != participantID {
		return false, apperr.ErrForbidden
	}
	if _, err := e.load(ctx, groupOrderID); err != nil {
		return false, err
	}

	if err := e.registry.MarkReady(ctx, groupOrderID, participantID); err != nil {
		return false, err
	}

	notReady, err := e.registry.Readiness(ctx, groupOrderID)
	if err != nil {
		return false, err
	}
	if len(notReady) > 0 {
		return false, nil
	}

	advanced, err := e.phase.AutoAdvance(ctx, groupOrderID)
	if err != nil {
		// The ready flag is already stored. Losing the advance to the host
		// or to another participant's auto-advance is fine.
		switch apperr.KindOf(err) {
		case apperr.KindPhase, apperr.KindConflict:
			slog.Debug("Auto-advance skipped", "group_order_id", groupOrderID, "reason", err)
			return false, nil
		}
		return false, err
	}
	return advanced, nil
}

// ContributeBudget adds to the shared pool. actorID must be the
// participant the contribution is recorded for.
func (e *Engine) ContributeBudget(ctx context.Context, groupOrderID, actorID, participantID string, amount models.Money, idempotencyKey string) (models.BudgetSummary, error) {
	if actorID != participantID {
		return models.BudgetSummary{}, apperr.ErrForbidden
	}
	if _, err := e.touch(ctx, groupOrderID); err != nil {
		return models.BudgetSummary{}, err
	}
	return e.ledger.Contribute(ctx, groupOrderID, participantID, amount, idempotencyKey)
}
