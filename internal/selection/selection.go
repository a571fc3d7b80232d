// Package selection stores each participant's chosen items.
//
// A participant only ever writes their own row, so writes from different
// participants never contend. Repeated writes from the same participant
// replace the whole item list; the last write wins.
package selection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/catalog"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

// Service is the SelectionStore component.
type Service struct {
	store    storage.SelectionStore
	catalog  catalog.Catalog
	validate *validatorv10.Validate
	nowFunc  func() time.Time
}

// NewService returns a Service. When cat is nil, client names and prices
// are kept as submitted. A nil now uses time.Now.
func NewService(store storage.SelectionStore, cat catalog.Catalog, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		catalog:  cat,
		validate: NewValidator(),
		nowFunc:  now,
	}
}

// Update replaces the participant's items. actorID is the authenticated
// caller and must be the participant.
func (s *Service) Update(ctx context.Context, groupOrderID, actorID, participantID string, items []models.SelectionItem) (*models.Selection, error) {
	if actorID != participantID {
		return nil, apperr.ErrForbidden
	}
	if len(items) == 0 {
		return nil, apperr.ErrEmptySelection
	}

	priced, err := s.price(ctx, items)
	if err != nil {
		return nil, err
	}

	sel := &models.Selection{
		GroupOrderID:  groupOrderID,
		ParticipantID: participantID,
		Items:         priced,
		UpdatedAt:     s.nowFunc(),
	}
	if err := s.validate.Struct(sel); err != nil {
		return nil, apperr.ErrInvalidInput.With("invalid selection: %s", Describe(err))
	}

	if err := s.store.PutSelection(ctx, sel); err != nil {
		return nil, mapStoreError(groupOrderID, err)
	}

	slog.Info("Selection updated",
		"group_order_id", groupOrderID,
		"participant_id", participantID,
		"items", len(sel.Items),
		"line_total", sel.LineTotal().String(),
	)
	return sel, nil
}

// Get returns one participant's selection. A participant who has not
// chosen anything yet gets an empty selection.
func (s *Service) Get(ctx context.Context, groupOrderID, participantID string) (*models.Selection, error) {
	sel, err := s.store.GetSelection(ctx, groupOrderID, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.Selection{GroupOrderID: groupOrderID, ParticipantID: participantID}, nil
	}
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// List returns every selection of the group order, in participant join order.
func (s *Service) List(ctx context.Context, groupOrderID string) ([]*models.Selection, error) {
	return s.store.ListSelections(ctx, groupOrderID)
}

// price replaces client-supplied dish names and unit prices with the
// catalog's.
func (s *Service) price(ctx context.Context, items []models.SelectionItem) ([]models.SelectionItem, error) {
	priced := make([]models.SelectionItem, len(items))
	copy(priced, items)
	if s.catalog == nil {
		return priced, nil
	}

	for i := range priced {
		if priced[i].DishID == "" {
			return nil, apperr.ErrInvalidInput.With("item %d has no dish id", i)
		}
		dish, err := s.catalog.Lookup(ctx, priced[i].DishID)
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) {
				return nil, err
			}
			return nil, apperr.ErrCatalog.Wrap(err)
		}
		if dish.Name != "" {
			priced[i].Name = dish.Name
		}
		priced[i].UnitPrice = dish.Price
	}
	return priced, nil
}

func mapStoreError(groupOrderID string, err error) error {
	var mismatch *storage.StatusMismatchError
	switch {
	case errors.As(err, &mismatch):
		return apperr.ErrWrongPhase.With("selections cannot change while group order is %s", mismatch.Actual)
	case errors.Is(err, storage.ErrNotParticipant):
		return apperr.ErrNotParticipant
	case errors.Is(err, storage.ErrNotFound):
		return apperr.ErrNotFound.With("group order %s not found", groupOrderID)
	default:
		return err
	}
}
