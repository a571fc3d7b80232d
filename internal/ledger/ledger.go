// Package ledger records budget contributions to a group order's shared pool.
//
// The ledger is append-only. The collected total is recomputed from the log
// on every read and never cached, so concurrent contributors only rely on
// the atomicity of each individual append.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/metrics"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

// Store is the persistence the ledger needs.
type Store interface {
	storage.LedgerStore
	GetGroupOrder(ctx context.Context, id string) (*models.GroupOrder, error)
}

// Ledger is the BudgetLedger of the engine.
type Ledger struct {
	store   Store
	metrics *metrics.Metrics
	nowFunc func() time.Time
}

// New returns a Ledger. A nil now uses time.Now.
func New(store Store, m *metrics.Metrics, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Ledger{store: store, metrics: m, nowFunc: now}
}

// Contribute appends amount to the pool on behalf of participantID and
// returns the updated summary. Retrying with the same key is a no-op that
// returns the current summary.
func (l *Ledger) Contribute(ctx context.Context, groupOrderID, participantID string, amount models.Money, key string) (models.BudgetSummary, error) {
	c, err := NewContribution(groupOrderID, participantID, amount, key, l.nowFunc())
	if err != nil {
		l.metrics.Contributions.WithLabelValues("rejected").Inc()
		return models.BudgetSummary{}, err
	}

	stored, duplicate, err := l.store.AppendContribution(ctx, c)
	if err != nil {
		l.metrics.Contributions.WithLabelValues("rejected").Inc()
		return models.BudgetSummary{}, MapStoreError(groupOrderID, err)
	}

	if duplicate {
		if stored.ParticipantID != participantID || stored.Amount != amount {
			l.metrics.Contributions.WithLabelValues("rejected").Inc()
			return models.BudgetSummary{}, apperr.ErrIdempotencyMismatch
		}
		l.metrics.Contributions.WithLabelValues("duplicate").Inc()
		slog.Info("Duplicate contribution ignored",
			"group_order_id", groupOrderID,
			"participant_id", participantID,
			"idempotency_key", key,
		)
	} else {
		l.metrics.Contributions.WithLabelValues("recorded").Inc()
		l.metrics.ContributedAmount.Add(float64(amount))
		slog.Info("Contribution recorded",
			"group_order_id", groupOrderID,
			"participant_id", participantID,
			"amount", amount.String(),
		)
	}

	return l.Summary(ctx, groupOrderID)
}

// Summary derives the pool totals from the ledger.
func (l *Ledger) Summary(ctx context.Context, groupOrderID string) (models.BudgetSummary, error) {
	order, err := l.store.GetGroupOrder(ctx, groupOrderID)
	if err != nil {
		return models.BudgetSummary{}, MapStoreError(groupOrderID, err)
	}

	contributions, err := l.store.ListContributions(ctx, groupOrderID)
	if err != nil {
		return models.BudgetSummary{}, err
	}

	summary := Aggregate(contributions)
	summary.Target = order.BudgetTarget
	return summary, nil
}

// Collected recomputes the pool total straight from the store.
func (l *Ledger) Collected(ctx context.Context, groupOrderID string) (models.Money, error) {
	return l.store.SumContributions(ctx, groupOrderID)
}

// NewContribution validates input and builds an unsaved ledger entry.
func NewContribution(groupOrderID, participantID string, amount models.Money, key string, at time.Time) (*models.Contribution, error) {
	if amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	if amount > models.MaxContribution {
		return nil, apperr.ErrInvalidAmount.With("amount must not exceed %s", models.MaxContribution)
	}
	if key == "" {
		return nil, apperr.ErrInvalidInput.With("idempotency key is required")
	}
	return &models.Contribution{
		GroupOrderID:   groupOrderID,
		ParticipantID:  participantID,
		Amount:         amount,
		IdempotencyKey: key,
		CreatedAt:      at,
	}, nil
}

// Aggregate sums a contribution log. Per-participant totals keep the order
// of each participant's first contribution. Stored logs never exceed
// models.MaxPool, so the sums fit.
func Aggregate(contributions []*models.Contribution) models.BudgetSummary {
	var summary models.BudgetSummary
	index := make(map[string]int)

	for _, c := range contributions {
		summary.Collected += c.Amount
		i, ok := index[c.ParticipantID]
		if !ok {
			i = len(summary.PerParticipant)
			index[c.ParticipantID] = i
			summary.PerParticipant = append(summary.PerParticipant, models.ParticipantTotal{ParticipantID: c.ParticipantID})
		}
		summary.PerParticipant[i].Amount += c.Amount
		summary.PerParticipant[i].Count++
	}
	return summary
}

// MapStoreError translates storage errors on ledger writes into engine errors.
func MapStoreError(groupOrderID string, err error) error {
	var mismatch *storage.StatusMismatchError
	switch {
	case errors.As(err, &mismatch):
		return apperr.ErrGroupOrderClosed.With("group order is %s and no longer accepts contributions", mismatch.Actual)
	case errors.Is(err, storage.ErrNotFound):
		return apperr.ErrNotFound.With("group order %s not found", groupOrderID)
	case errors.Is(err, storage.ErrNotParticipant):
		return apperr.ErrNotParticipant
	case errors.Is(err, storage.ErrDuplicateKey):
		return apperr.ErrIdempotencyMismatch
	case errors.Is(err, storage.ErrPoolLimit):
		return apperr.ErrInvalidAmount.With("pool cannot exceed %s", models.MaxPool)
	default:
		return err
	}
}
