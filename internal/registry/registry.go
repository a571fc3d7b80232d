// Package registry manages who belongs to a group order.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/ledger"
	"github.com/mmynk/grouporder/internal/metrics"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

// InitialContribution is pledged as part of a join.
type InitialContribution struct {
	Amount         models.Money
	IdempotencyKey string
}

// Registry is the ParticipantRegistry.
type Registry struct {
	store   storage.ParticipantStore
	metrics *metrics.Metrics
	nowFunc func() time.Time
}

// New returns a Registry. A nil now uses time.Now.
func New(store storage.ParticipantStore, m *metrics.Metrics, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Registry{store: store, metrics: m, nowFunc: now}
}

// Join adds userID to an open group order. Joining again returns the
// existing participant with created=false, whatever phase the order is in
// by then. The initial contribution, if any, lands in the same transaction
// as the membership row.
func (r *Registry) Join(ctx context.Context, groupOrderID, userID string, initial *InitialContribution) (*models.Participant, bool, error) {
	if userID == "" {
		return nil, false, apperr.ErrInvalidInput.With("user id is required")
	}

	now := r.nowFunc()
	var first *models.Contribution
	if initial != nil {
		c, err := ledger.NewContribution(groupOrderID, userID, initial.Amount, initial.IdempotencyKey, now)
		if err != nil {
			return nil, false, err
		}
		first = c
	}

	p := &models.Participant{
		UserID:       userID,
		GroupOrderID: groupOrderID,
		Role:         models.RoleMember,
		JoinedAt:     now,
	}

	participant, created, err := r.store.AddParticipant(ctx, p, first)
	if err != nil {
		var mismatch *storage.StatusMismatchError
		switch {
		case errors.As(err, &mismatch):
			return nil, false, apperr.ErrNotJoinable.With("group order is %s and no longer accepting participants", mismatch.Actual)
		case errors.Is(err, storage.ErrNotFound):
			return nil, false, apperr.ErrNotFound.With("group order %s not found", groupOrderID)
		case errors.Is(err, storage.ErrDuplicateKey), errors.Is(err, storage.ErrPoolLimit):
			return nil, false, ledger.MapStoreError(groupOrderID, err)
		default:
			return nil, false, err
		}
	}

	if created && first != nil {
		r.metrics.Contributions.WithLabelValues("recorded").Inc()
		r.metrics.ContributedAmount.Add(float64(first.Amount))
	}
	if created {
		slog.Info("Participant joined", "group_order_id", groupOrderID, "user_id", userID)
	}
	return participant, created, nil
}

// MarkReady flags the participant's selection as final. Marking twice is
// harmless.
func (r *Registry) MarkReady(ctx context.Context, groupOrderID, userID string) error {
	err := r.store.SetSelectionReady(ctx, groupOrderID, userID)
	if err == nil {
		return nil
	}

	var mismatch *storage.StatusMismatchError
	switch {
	case errors.As(err, &mismatch):
		return apperr.ErrWrongPhase.With("cannot mark selection ready while group order is %s", mismatch.Actual)
	case errors.Is(err, storage.ErrEmptySelection):
		return apperr.ErrEmptySelection
	case errors.Is(err, storage.ErrNotParticipant):
		return apperr.ErrNotParticipant
	case errors.Is(err, storage.ErrNotFound):
		return apperr.ErrNotFound.With("group order %s not found", groupOrderID)
	default:
		return err
	}
}

// Get returns one participant, or apperr.ErrNotParticipant.
func (r *Registry) Get(ctx context.Context, groupOrderID, userID string) (*models.Participant, error) {
	p, err := r.store.GetParticipant(ctx, groupOrderID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrNotParticipant
	}
	return p, err
}

// List returns every participant in join order.
func (r *Registry) List(ctx context.Context, groupOrderID string) ([]*models.Participant, error) {
	return r.store.ListParticipants(ctx, groupOrderID)
}

// Readiness returns the IDs of members who have not marked ready.
func (r *Registry) Readiness(ctx context.Context, groupOrderID string) (notReady []string, err error) {
	participants, err := r.store.ListParticipants(ctx, groupOrderID)
	if err != nil {
		return nil, err
	}
	return NotReady(participants), nil
}

// NotReady lists members whose selection is not final. The host is left
// out: advancing or closing the order is the host's own confirmation.
func NotReady(participants []*models.Participant) []string {
	var ids []string
	for _, p := range participants {
		if !p.IsHost() && !p.SelectionReady {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// Members counts participants other than the host.
func Members(participants []*models.Participant) int {
	n := 0
	for _, p := range participants {
		if !p.IsHost() {
			n++
		}
	}
	return n
}
