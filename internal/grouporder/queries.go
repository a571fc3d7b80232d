package grouporder

import (
	"context"

	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/notify"
)

// Status is a point-in-time view of a group order.
type Status struct {
	GroupOrder   *models.GroupOrder
	Participants []*models.Participant
	Budget       models.BudgetSummary
}

// GetGroupOrderStatus returns the order with its participants and pool.
func (e *Engine) GetGroupOrderStatus(ctx context.Context, groupOrderID string) (*Status, error) {
	order, err := e.touch(ctx, groupOrderID)
	if err != nil {
		return nil, err
	}

	participants, err := e.registry.List(ctx, groupOrderID)
	if err != nil {
		return nil, err
	}

	budget, err := e.ledger.Summary(ctx, groupOrderID)
	if err != nil {
		return nil, err
	}

	return &Status{
		GroupOrder:   order,
		Participants: participants,
		Budget:       budget,
	}, nil
}

// GetSelections returns every selection, or only participantID's when it is
// set. The caller must be a participant.
func (e *Engine) GetSelections(ctx context.Context, groupOrderID, actorID, participantID string) ([]*models.Selection, error) {
	if _, err := e.load(ctx, groupOrderID); err != nil {
		return nil, err
	}
	if _, err := e.requireParticipant(ctx, groupOrderID, actorID); err != nil {
		return nil, err
	}

	if participantID != "" {
		if _, err := e.requireParticipant(ctx, groupOrderID, participantID); err != nil {
			return nil, err
		}
		sel, err := e.selections.Get(ctx, groupOrderID, participantID)
		if err != nil {
			return nil, err
		}
		return []*models.Selection{sel}, nil
	}
	return e.selections.List(ctx, groupOrderID)
}

// Subscribe streams phase changes of the order to a participant. The
// returned function must be called to release the subscription.
func (e *Engine) Subscribe(ctx context.Context, groupOrderID, actorID string) (<-chan notify.Event, func(), error) {
	if _, err := e.load(ctx, groupOrderID); err != nil {
		return nil, nil, err
	}
	if _, err := e.requireParticipant(ctx, groupOrderID, actorID); err != nil {
		return nil, nil, err
	}
	events, cancel := e.hub.Subscribe(groupOrderID)
	return events, cancel, nil
}
