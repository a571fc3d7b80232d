// Package grouporder is the aggregate root of the group order engine. It
// wires the share links, participant registry, selections, budget ledger
// and phase controller together behind one operation per use case.
//
// Identity is always passed in explicitly. The engine never decides who the
// caller is; it only checks that the given identity may do what it asks.
package grouporder

import (
	"context"
	"errors"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/calculator"
	"github.com/mmynk/grouporder/internal/catalog"
	"github.com/mmynk/grouporder/internal/ledger"
	"github.com/mmynk/grouporder/internal/metrics"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/notify"
	"github.com/mmynk/grouporder/internal/ordersink"
	"github.com/mmynk/grouporder/internal/phase"
	"github.com/mmynk/grouporder/internal/registry"
	"github.com/mmynk/grouporder/internal/selection"
	"github.com/mmynk/grouporder/internal/sharelink"
	"github.com/mmynk/grouporder/internal/storage"
)

// Config holds engine policy.
type Config struct {
	// DefaultTTL applies when a create request has no TTL.
	DefaultTTL time.Duration

	// MinMembersToStart is the number of participants besides the host
	// required before selection can start.
	MinMembersToStart int

	Discount calculator.DiscountPolicy
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:        24 * time.Hour,
		MinMembersToStart: 1,
	}
}

// Deps are the engine's collaborators. Only Store is required.
type Deps struct {
	Store   storage.Store
	Catalog catalog.Catalog
	Sink    ordersink.Sink

	// Notifier receives phase changes in addition to the engine's own hub.
	Notifier notify.Notifier
	Hub      *notify.Hub
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Engine implements the group order operations.
type Engine struct {
	store      storage.Store
	links      *sharelink.Service
	ledger     *ledger.Ledger
	registry   *registry.Registry
	selections *selection.Service
	phase      *phase.Controller
	sink       ordersink.Sink
	hub        *notify.Hub
	metrics    *metrics.Metrics
	validate   *validatorv10.Validate
	cfg        Config
	nowFunc    func() time.Time
}

// New builds an Engine from deps and cfg.
func New(deps Deps, cfg Config) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	hub := deps.Hub
	if hub == nil {
		hub = notify.NewHub(0)
	}
	sink := deps.Sink
	if sink == nil {
		sink = ordersink.Log{}
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}

	var notifier notify.Notifier = hub
	if deps.Notifier != nil {
		notifier = notify.Multi{hub, deps.Notifier}
	}

	return &Engine{
		store:      deps.Store,
		links:      sharelink.NewService(deps.Store, now),
		ledger:     ledger.New(deps.Store, m, now),
		registry:   registry.New(deps.Store, m, now),
		selections: selection.NewService(deps.Store, deps.Catalog, now),
		phase:      phase.New(deps.Store, notifier, m, now),
		sink:       sink,
		hub:        hub,
		metrics:    m,
		validate:   selection.NewValidator(),
		cfg:        cfg,
		nowFunc:    now,
	}
}

// touch loads the order and applies lazy expiry.
func (e *Engine) touch(ctx context.Context, groupOrderID string) (*models.GroupOrder, error) {
	order, err := e.load(ctx, groupOrderID)
	if err != nil {
		return nil, err
	}
	return e.phase.ExpireIfDue(ctx, order)
}

func (e *Engine) load(ctx context.Context, groupOrderID string) (*models.GroupOrder, error) {
	if groupOrderID == "" {
		return nil, apperr.ErrInvalidInput.With("group order id is required")
	}
	order, err := e.store.GetGroupOrder(ctx, groupOrderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrNotFound.With("group order %s not found", groupOrderID)
	}
	return order, err
}

// requireParticipant fails with apperr.ErrNotParticipant unless userID has
// joined the order.
func (e *Engine) requireParticipant(ctx context.Context, groupOrderID, userID string) (*models.Participant, error) {
	return e.registry.Get(ctx, groupOrderID, userID)
}
