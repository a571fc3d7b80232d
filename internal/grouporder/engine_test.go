package grouporder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/catalog"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/ordersink"
	"github.com/mmynk/grouporder/internal/storage"
	"github.com/mmynk/grouporder/internal/storage/sqlite"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSink records submitted orders and can be told to fail.
type fakeSink struct {
	mu     sync.Mutex
	orders []*models.FinalizedOrder
	err    error
}

func (s *fakeSink) SubmitOrder(_ context.Context, order *models.FinalizedOrder) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.orders = append(s.orders, order)
	return ordersink.OrderIDFor(order.GroupOrderID), nil
}

func (s *fakeSink) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSink) submitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

var menu = catalog.NewStatic(
	catalog.Dish{DishID: "tenner", Name: "Ten pound dish", Price: 1000},
	catalog.Dish{DishID: "salad", Name: "Salad", Price: 1000},
	catalog.Dish{DishID: "twelver", Name: "Twelve pound dish", Price: 1200},
	catalog.Dish{DishID: "feast", Name: "Feast", Price: 9000},
)

// failingStore fails the write that moves an order to closed while
// failClose is set.
type failingStore struct {
	*sqlite.SQLiteStore
	mu        sync.Mutex
	failClose bool
}

func (s *failingStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, change storage.StatusChange) (bool, error) {
	s.mu.Lock()
	fail := s.failClose && to == models.StatusClosed
	s.mu.Unlock()
	if fail {
		return false, errors.New("disk I/O error")
	}
	return s.SQLiteStore.CompareAndSetStatus(ctx, id, from, to, change)
}

func (s *failingStore) setFailClose(fail bool) {
	s.mu.Lock()
	s.failClose = fail
	s.mu.Unlock()
}

type harness struct {
	engine  *Engine
	store   *sqlite.SQLiteStore
	failing *failingStore
	clock   *fakeClock
	sink    *fakeSink
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, menu)
}

// newHarnessWith builds an engine over cat; a nil cat trusts client prices.
func newHarnessWith(t *testing.T, cat catalog.Catalog) *harness {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:   store,
		failing: &failingStore{SQLiteStore: store},
		clock:   &fakeClock{now: baseTime},
		sink:    &fakeSink{},
	}
	h.engine = New(Deps{
		Store:   h.failing,
		Catalog: cat,
		Sink:    h.sink,
		Now:     h.clock.Now,
	}, DefaultConfig())
	return h
}

func money(m models.Money) *models.Money { return &m }

// scenario creates an order with a 50.00 target and a one hour link, joins
// p1 and p2 through the token contributing 20.00 and 15.00, starts
// selection and records two 10.00 dishes for p1 and one 12.00 dish for p2.
func (h *harness) scenario(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	created, err := h.engine.CreateGroupOrder(ctx, CreateRequest{
		HostID:          "host",
		CreatorID:       "kitchen-1",
		RestaurantName:  "Mama's",
		BudgetTarget:    money(5000),
		DeliveryAddress: &models.DeliveryAddress{Street: "1 High St", City: "Leeds", Postcode: "LS1 1AA", Country: "UK"},
		DeliveryTime:    "12:30",
		TTL:             time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateGroupOrder failed: %v", err)
	}
	id := created.GroupOrder.ID

	for _, j := range []struct {
		user   string
		amount models.Money
	}{{"p1", 2000}, {"p2", 1500}} {
		h.clock.Advance(time.Second)
		_, err := h.engine.JoinGroupOrder(ctx, JoinRequest{
			Token:               created.ShareToken,
			UserID:              j.user,
			IdempotencyKey:      "join-" + j.user,
			InitialContribution: money(j.amount),
		})
		if err != nil {
			t.Fatalf("JoinGroupOrder(%s) failed: %v", j.user, err)
		}
	}

	if _, err := h.engine.StartSelection(ctx, id, "host"); err != nil {
		t.Fatalf("StartSelection failed: %v", err)
	}

	if _, err := h.engine.UpdateSelection(ctx, id, "p1", "p1", []models.SelectionItem{
		{DishID: "tenner", Name: "Ten pound dish", Quantity: 1},
		{DishID: "salad", Name: "Salad", Quantity: 1},
	}); err != nil {
		t.Fatalf("UpdateSelection(p1) failed: %v", err)
	}
	if _, err := h.engine.UpdateSelection(ctx, id, "p2", "p2", []models.SelectionItem{
		{DishID: "twelver", Name: "Twelve pound dish", Quantity: 1},
	}); err != nil {
		t.Fatalf("UpdateSelection(p2) failed: %v", err)
	}
	return id
}

func (h *harness) status(t *testing.T, id string) *Status {
	t.Helper()
	st, err := h.engine.GetGroupOrderStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetGroupOrderStatus failed: %v", err)
	}
	return st
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCloseScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)

	st := h.status(t, id)
	if st.Budget.Collected != 3500 {
		t.Fatalf("Expected collected 3500, got %d", st.Budget.Collected)
	}

	advanced, err := h.engine.MarkSelectionReady(ctx, id, "p1", "p1")
	if err != nil {
		t.Fatalf("MarkSelectionReady(p1) failed: %v", err)
	}
	if advanced {
		t.Error("Expected no advance while p2 is pending")
	}
	advanced, err = h.engine.MarkSelectionReady(ctx, id, "p2", "p2")
	if err != nil {
		t.Fatalf("MarkSelectionReady(p2) failed: %v", err)
	}
	if !advanced {
		t.Error("Expected the last ready member to advance the order")
	}

	finalized, err := h.engine.CloseGroupOrder(ctx, id, "host", false)
	if err != nil {
		t.Fatalf("CloseGroupOrder failed: %v", err)
	}

	if len(finalized.Items) != 3 {
		t.Fatalf("Expected 3 merged lines, got %+v", finalized.Items)
	}
	if finalized.Items[0].ParticipantID != "p1" || finalized.Items[2].ParticipantID != "p2" {
		t.Errorf("Expected lines attributed in join order, got %+v", finalized.Items)
	}
	if finalized.Collected != 3500 || finalized.Total != 3200 || finalized.Underfunded {
		t.Errorf("Unexpected totals: collected %d total %d underfunded %v", finalized.Collected, finalized.Total, finalized.Underfunded)
	}
	if finalized.OrderID == "" || finalized.DeliveryTime != "12:30" || finalized.DeliveryAddress == nil {
		t.Errorf("Expected order id and delivery passthrough, got %+v", finalized)
	}
	if len(finalized.Payers) != 3 {
		t.Errorf("Expected payer entry per participant, got %d", len(finalized.Payers))
	}

	st = h.status(t, id)
	if st.GroupOrder.Status != models.StatusClosed || st.GroupOrder.ClosedAt == nil || st.GroupOrder.OrderID != finalized.OrderID {
		t.Errorf("Unexpected closed order %+v", st.GroupOrder)
	}
	if h.sink.submitted() != 1 {
		t.Errorf("Expected one submitted order, got %d", h.sink.submitted())
	}

	_, err = h.engine.ContributeBudget(ctx, id, "p1", "p1", 100, "late")
	if !errors.Is(err, apperr.ErrGroupOrderClosed) {
		t.Errorf("Expected ErrGroupOrderClosed after close, got %v", err)
	}
}

func TestForcedAdvance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)

	if _, err := h.engine.MarkSelectionReady(ctx, id, "p1", "p1"); err != nil {
		t.Fatalf("MarkSelectionReady failed: %v", err)
	}

	_, _, err := h.engine.AdvanceToReady(ctx, id, "host", false)
	if !errors.Is(err, apperr.ErrNotReady) {
		t.Fatalf("Expected ErrNotReady without force, got %v", err)
	}

	logs := captureLogs(t)
	order, notReady, err := h.engine.AdvanceToReady(ctx, id, "host", true)
	if err != nil {
		t.Fatalf("Forced AdvanceToReady failed: %v", err)
	}
	if order.Status != models.StatusReady {
		t.Errorf("Expected ready, got %s", order.Status)
	}
	if len(notReady) != 1 || notReady[0] != "p2" {
		t.Errorf("Expected [p2] not ready, got %v", notReady)
	}
	if out := logs.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "p2") {
		t.Errorf("Expected a warning naming p2, got logs:\n%s", out)
	}

	_, err = h.engine.UpdateSelection(ctx, id, "p2", "p2", []models.SelectionItem{{DishID: "tenner", Name: "Ten", Quantity: 1}})
	if !errors.Is(err, apperr.ErrWrongPhase) {
		t.Errorf("Expected ErrWrongPhase for selection edits after ready, got %v", err)
	}
}

func TestExpiredLink(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	created, err := h.engine.CreateGroupOrder(ctx, CreateRequest{HostID: "host", CreatorID: "kitchen-1", TTL: time.Hour})
	if err != nil {
		t.Fatalf("CreateGroupOrder failed: %v", err)
	}

	h.clock.Advance(time.Hour + time.Second)
	_, err = h.engine.JoinGroupOrder(ctx, JoinRequest{Token: created.ShareToken, UserID: "late"})
	if !errors.Is(err, apperr.ErrExpiredLink) {
		t.Fatalf("Expected ErrExpiredLink, got %v", err)
	}

	report, err := h.engine.NewSweeper(DefaultSweepConfig()).Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Expired != 1 {
		t.Errorf("Expected 1 expired order, got %+v", report)
	}
	if s := h.status(t, created.GroupOrder.ID).GroupOrder.Status; s != models.StatusExpired {
		t.Errorf("Expected expired, got %s", s)
	}
}

func TestLazyExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	created, err := h.engine.CreateGroupOrder(ctx, CreateRequest{HostID: "host", CreatorID: "kitchen-1", TTL: time.Hour})
	if err != nil {
		t.Fatalf("CreateGroupOrder failed: %v", err)
	}
	id := created.GroupOrder.ID

	h.clock.Advance(2 * time.Hour)
	if s := h.status(t, id).GroupOrder.Status; s != models.StatusExpired {
		t.Errorf("Expected status read to expire the order, got %s", s)
	}

	_, err = h.engine.JoinGroupOrder(ctx, JoinRequest{GroupOrderID: id, UserID: "late"})
	if !errors.Is(err, apperr.ErrNotJoinable) {
		t.Errorf("Expected ErrNotJoinable joining by id, got %v", err)
	}
}

func TestCloseRequiresFunding(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*harness, string) {
		h := newHarness(t)
		id := h.scenario(t)
		// p2 swaps to a dish the pool cannot cover.
		if _, err := h.engine.UpdateSelection(ctx, id, "p2", "p2", []models.SelectionItem{{DishID: "feast", Name: "Feast", Quantity: 1}}); err != nil {
			t.Fatalf("UpdateSelection failed: %v", err)
		}
		if _, _, err := h.engine.AdvanceToReady(ctx, id, "host", true); err != nil {
			t.Fatalf("AdvanceToReady failed: %v", err)
		}
		return h, id
	}

	t.Run("rejected without override", func(t *testing.T) {
		h, id := setup(t)

		_, err := h.engine.CloseGroupOrder(ctx, id, "host", false)
		if !errors.Is(err, apperr.ErrUnderfunded) {
			t.Fatalf("Expected ErrUnderfunded, got %v", err)
		}
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("Expected validation kind, got %s", apperr.KindOf(err))
		}
		if s := h.status(t, id).GroupOrder.Status; s != models.StatusReady {
			t.Errorf("Expected order back in ready, got %s", s)
		}
		if h.sink.submitted() != 0 {
			t.Error("Expected nothing submitted")
		}

		// The pool is open again for top-ups.
		if _, err := h.engine.ContributeBudget(ctx, id, "p1", "p1", 100, "top-up"); err != nil {
			t.Errorf("Expected contribution after rollback to succeed, got %v", err)
		}
	})

	t.Run("override records shortfall", func(t *testing.T) {
		h, id := setup(t)
		logs := captureLogs(t)

		finalized, err := h.engine.CloseGroupOrder(ctx, id, "host", true)
		if err != nil {
			t.Fatalf("CloseGroupOrder failed: %v", err)
		}
		// 2×10.00 + 90.00 against 35.00 collected.
		if finalized.Shortfall != 7500 || !finalized.Underfunded {
			t.Errorf("Expected shortfall 7500, got %d", finalized.Shortfall)
		}
		if got := h.status(t, id).GroupOrder.Shortfall; got != 7500 {
			t.Errorf("Expected stored shortfall 7500, got %d", got)
		}
		if out := logs.String(); !strings.Contains(out, "under-funded") || !strings.Contains(out, "level=WARN") {
			t.Errorf("Expected an under-funded warning, got logs:\n%s", out)
		}
	})
}

func TestCloseOrderServiceFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)
	if _, _, err := h.engine.AdvanceToReady(ctx, id, "host", true); err != nil {
		t.Fatalf("AdvanceToReady failed: %v", err)
	}

	h.sink.fail(errors.New("connection refused"))
	_, err := h.engine.CloseGroupOrder(ctx, id, "host", false)
	if !errors.Is(err, apperr.ErrOrderService) || !apperr.Retryable(err) {
		t.Fatalf("Expected retryable ErrOrderService, got %v", err)
	}
	if order := h.status(t, id).GroupOrder; order.Status != models.StatusReady || order.OrderID != "" {
		t.Errorf("Expected rollback to ready without an order id, got %s %q", order.Status, order.OrderID)
	}

	h.sink.fail(nil)
	if _, err := h.engine.CloseGroupOrder(ctx, id, "host", false); err != nil {
		t.Fatalf("Retried CloseGroupOrder failed: %v", err)
	}
	if s := h.status(t, id).GroupOrder.Status; s != models.StatusClosed {
		t.Errorf("Expected closed, got %s", s)
	}
}

func TestCloseRecordFailureIsNotResubmitted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)
	if _, _, err := h.engine.AdvanceToReady(ctx, id, "host", true); err != nil {
		t.Fatalf("AdvanceToReady failed: %v", err)
	}

	h.failing.setFailClose(true)
	if _, err := h.engine.CloseGroupOrder(ctx, id, "host", false); err == nil {
		t.Fatal("Expected CloseGroupOrder to fail when the final write fails")
	}
	if h.sink.submitted() != 1 {
		t.Fatalf("Expected 1 submission, got %d", h.sink.submitted())
	}
	order := h.status(t, id).GroupOrder
	if order.Status != models.StatusClosing || order.OrderID != ordersink.OrderIDFor(id) {
		t.Fatalf("Expected closing with the order id recorded, got %s %q", order.Status, order.OrderID)
	}

	h.failing.setFailClose(false)
	if _, err := h.engine.CloseGroupOrder(ctx, id, "host", false); !errors.Is(err, apperr.ErrConflictingTransition) {
		t.Errorf("Expected ErrConflictingTransition for a retry while closing, got %v", err)
	}

	h.clock.Advance(6 * time.Minute)
	report, err := h.engine.NewSweeper(DefaultSweepConfig()).Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Settled != 1 || report.Restored != 0 {
		t.Errorf("Expected the order to be settled, got %+v", report)
	}

	order = h.status(t, id).GroupOrder
	if order.Status != models.StatusClosed || order.OrderID != ordersink.OrderIDFor(id) || order.ClosedAt == nil {
		t.Errorf("Expected closed under the recorded order id, got %s %q", order.Status, order.OrderID)
	}
	if h.sink.submitted() != 1 {
		t.Errorf("Expected no resubmission, got %d submissions", h.sink.submitted())
	}
}

func TestUntrustedPrices(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, nil)
	id := h.scenario(t)

	_, err := h.engine.UpdateSelection(ctx, id, "p1", "p1", []models.SelectionItem{
		{DishID: "gold", Name: "Gold", Quantity: 2, UnitPrice: 1 << 62},
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput for an overflowing price, got %v", err)
	}

	if _, err := h.engine.UpdateSelection(ctx, id, "p1", "p1", []models.SelectionItem{
		{DishID: "gold", Name: "Gold", Quantity: 1, UnitPrice: 4000},
	}); err != nil {
		t.Fatalf("UpdateSelection failed: %v", err)
	}
	if _, _, err := h.engine.AdvanceToReady(ctx, id, "host", true); err != nil {
		t.Fatalf("AdvanceToReady failed: %v", err)
	}

	// 40.00 from p1 and a free dish from p2 against 35.00 collected.
	_, err = h.engine.CloseGroupOrder(ctx, id, "host", false)
	if !errors.Is(err, apperr.ErrUnderfunded) {
		t.Errorf("Expected ErrUnderfunded, got %v", err)
	}
	if h.sink.submitted() != 0 {
		t.Errorf("Expected nothing submitted, got %d", h.sink.submitted())
	}
}

func TestContributionLimits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)

	_, err := h.engine.ContributeBudget(ctx, id, "p1", "p1", math.MaxInt64, "huge")
	if !errors.Is(err, apperr.ErrInvalidAmount) {
		t.Fatalf("Expected ErrInvalidAmount, got %v", err)
	}

	summary, err := h.engine.ContributeBudget(ctx, id, "p2", "p2", 1, "penny")
	if err != nil {
		t.Fatalf("ContributeBudget failed: %v", err)
	}
	if summary.Collected != 3501 {
		t.Errorf("Expected collected 3501, got %d", summary.Collected)
	}
	if got := h.status(t, id).Budget.Collected; got != 3501 {
		t.Errorf("Expected status to report 3501, got %d", got)
	}
}

func TestUpdateSelectionChecksPhaseFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)
	if _, _, err := h.engine.AdvanceToReady(ctx, id, "host", true); err != nil {
		t.Fatalf("AdvanceToReady failed: %v", err)
	}

	tests := []struct {
		name  string
		items []models.SelectionItem
	}{
		{name: "empty items", items: nil},
		{name: "unknown dish", items: []models.SelectionItem{{DishID: "lobster", Name: "Lobster", Quantity: 1}}},
		{name: "invalid item", items: []models.SelectionItem{{DishID: "tenner", Name: "Ten pound dish", Quantity: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.UpdateSelection(ctx, id, "p1", "p1", tt.items)
			if !errors.Is(err, apperr.ErrWrongPhase) {
				t.Errorf("Expected ErrWrongPhase, got %v", err)
			}
		})
	}

	sel, err := h.engine.GetSelections(ctx, id, "p1", "p1")
	if err != nil {
		t.Fatalf("GetSelections failed: %v", err)
	}
	if len(sel) != 1 || len(sel[0].Items) != 2 {
		t.Errorf("Expected p1's two items to be kept, got %+v", sel)
	}
}

func TestConcurrentCloseSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)
	if _, _, err := h.engine.AdvanceToReady(ctx, id, "host", true); err != nil {
		t.Fatalf("AdvanceToReady failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = h.engine.CloseGroupOrder(ctx, id, "host", false)
		}(i)
	}
	close(start)
	wg.Wait()

	var won, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, apperr.ErrConflictingTransition):
			conflicted++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if won != 1 || conflicted != 1 {
		t.Errorf("Expected one success and one conflict, got %d and %d", won, conflicted)
	}
	if h.sink.submitted() != 1 {
		t.Errorf("Expected exactly one submitted order, got %d", h.sink.submitted())
	}
}

func TestParticipantRules(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent join through token", func(t *testing.T) {
		h := newHarness(t)
		created, err := h.engine.CreateGroupOrder(ctx, CreateRequest{HostID: "host", CreatorID: "kitchen-1"})
		if err != nil {
			t.Fatalf("CreateGroupOrder failed: %v", err)
		}
		for i := 0; i < 3; i++ {
			if _, err := h.engine.JoinGroupOrder(ctx, JoinRequest{
				Token: created.ShareToken, UserID: "p1", IdempotencyKey: "j1", InitialContribution: money(700),
			}); err != nil {
				t.Fatalf("JoinGroupOrder #%d failed: %v", i+1, err)
			}
		}

		st := h.status(t, created.GroupOrder.ID)
		if len(st.Participants) != 2 {
			t.Errorf("Expected host and p1, got %d participants", len(st.Participants))
		}
		if st.Budget.Collected != 700 {
			t.Errorf("Expected collected 700, got %d", st.Budget.Collected)
		}
	})

	t.Run("only the participant acts for themselves", func(t *testing.T) {
		h := newHarness(t)
		id := h.scenario(t)

		if _, err := h.engine.UpdateSelection(ctx, id, "p1", "p2", nil); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("UpdateSelection: expected ErrForbidden, got %v", err)
		}
		if _, err := h.engine.MarkSelectionReady(ctx, id, "p1", "p2"); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("MarkSelectionReady: expected ErrForbidden, got %v", err)
		}
		if _, err := h.engine.ContributeBudget(ctx, id, "p1", "p2", 100, "k"); !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("ContributeBudget: expected ErrForbidden, got %v", err)
		}
		if _, err := h.engine.StartSelection(ctx, id, "p1"); !errors.Is(err, apperr.ErrNotHost) {
			t.Errorf("StartSelection: expected ErrNotHost, got %v", err)
		}
		if _, err := h.engine.CloseGroupOrder(ctx, id, "p1", false); !errors.Is(err, apperr.ErrNotHost) {
			t.Errorf("CloseGroupOrder: expected ErrNotHost, got %v", err)
		}
	})

	t.Run("editing a selection clears ready", func(t *testing.T) {
		h := newHarness(t)
		id := h.scenario(t)

		if _, err := h.engine.MarkSelectionReady(ctx, id, "p1", "p1"); err != nil {
			t.Fatalf("MarkSelectionReady failed: %v", err)
		}
		if _, err := h.engine.UpdateSelection(ctx, id, "p1", "p1", []models.SelectionItem{{DishID: "tenner", Name: "Ten", Quantity: 1}}); err != nil {
			t.Fatalf("UpdateSelection failed: %v", err)
		}

		for _, p := range h.status(t, id).Participants {
			if p.UserID == "p1" && p.SelectionReady {
				t.Error("Expected p1 to need to mark ready again")
			}
		}
	})

	t.Run("selections visible to participants only", func(t *testing.T) {
		h := newHarness(t)
		id := h.scenario(t)

		all, err := h.engine.GetSelections(ctx, id, "p1", "")
		if err != nil {
			t.Fatalf("GetSelections failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("Expected 2 selections, got %d", len(all))
		}

		one, err := h.engine.GetSelections(ctx, id, "p1", "p2")
		if err != nil {
			t.Fatalf("GetSelections(p2) failed: %v", err)
		}
		if len(one) != 1 || one[0].ParticipantID != "p2" || one[0].Items[0].UnitPrice != 1200 {
			t.Errorf("Unexpected p2 selection %+v", one)
		}

		if _, err := h.engine.GetSelections(ctx, id, "outsider", ""); !errors.Is(err, apperr.ErrNotParticipant) {
			t.Errorf("Expected ErrNotParticipant, got %v", err)
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.scenario(t)

	if _, err := h.engine.CancelGroupOrder(ctx, id, "p1"); !errors.Is(err, apperr.ErrNotHost) {
		t.Errorf("Expected ErrNotHost, got %v", err)
	}

	order, err := h.engine.CancelGroupOrder(ctx, id, "host")
	if err != nil {
		t.Fatalf("CancelGroupOrder failed: %v", err)
	}
	if order.Status != models.StatusCancelled || !order.RefundRequired || order.ClosedAt == nil {
		t.Errorf("Unexpected cancelled order %+v", order)
	}

	if _, err := h.engine.ContributeBudget(ctx, id, "p1", "p1", 100, "after-cancel"); !errors.Is(err, apperr.ErrGroupOrderClosed) {
		t.Errorf("Expected ErrGroupOrderClosed, got %v", err)
	}
}

func TestCreateGroupOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	t.Run("defaults", func(t *testing.T) {
		created, err := h.engine.CreateGroupOrder(ctx, CreateRequest{HostID: "host", CreatorID: "kitchen-1", RestaurantName: "Mama's"})
		if err != nil {
			t.Fatalf("CreateGroupOrder failed: %v", err)
		}
		if created.GroupOrder.Title != "Group order from Mama's" {
			t.Errorf("Unexpected default title %q", created.GroupOrder.Title)
		}
		if want := baseTime.Add(24 * time.Hour); !created.ShareLinkExpiresAt.Equal(want) {
			t.Errorf("Expected 24h default expiry %v, got %v", want, created.ShareLinkExpiresAt)
		}
		if created.ShareToken == "" || strings.Contains(created.ShareToken, created.GroupOrder.ID) {
			t.Errorf("Expected an opaque token, got %q", created.ShareToken)
		}

		st := h.status(t, created.GroupOrder.ID)
		if len(st.Participants) != 1 || !st.Participants[0].IsHost() {
			t.Errorf("Expected the host to be the only participant, got %+v", st.Participants)
		}
	})

	t.Run("validation", func(t *testing.T) {
		bad := []CreateRequest{
			{CreatorID: "kitchen-1"},
			{HostID: "host"},
			{HostID: "host", CreatorID: "kitchen-1", BudgetTarget: money(0)},
			{HostID: "host", CreatorID: "kitchen-1", TTL: -time.Minute},
		}
		for i, req := range bad {
			if _, err := h.engine.CreateGroupOrder(ctx, req); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("request %d: expected ErrInvalidInput, got %v", i, err)
			}
		}
	})
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	created, err := h.engine.CreateGroupOrder(ctx, CreateRequest{HostID: "host", CreatorID: "kitchen-1"})
	if err != nil {
		t.Fatalf("CreateGroupOrder failed: %v", err)
	}
	id := created.GroupOrder.ID

	if _, _, err := h.engine.Subscribe(ctx, id, "outsider"); !errors.Is(err, apperr.ErrNotParticipant) {
		t.Errorf("Expected ErrNotParticipant, got %v", err)
	}

	events, unsubscribe, err := h.engine.Subscribe(ctx, id, "host")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()

	if _, err := h.engine.CancelGroupOrder(ctx, id, "host"); err != nil {
		t.Fatalf("CancelGroupOrder failed: %v", err)
	}

	select {
	case e := <-events:
		if e.To != models.StatusCancelled || e.From != models.StatusOpen {
			t.Errorf("Unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a cancellation event")
	}
}
