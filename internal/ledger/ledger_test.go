package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
	"github.com/mmynk/grouporder/internal/storage/sqlite"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupLedger(t *testing.T, members ...string) (*Ledger, *sqlite.SQLiteStore, string) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	target := models.Money(2000)
	order := &models.GroupOrder{
		HostID:             "host",
		CreatorID:          "kitchen-1",
		RestaurantName:     "Mama's",
		Status:             models.StatusOpen,
		BudgetTarget:       &target,
		ShareLinkExpiresAt: baseTime.Add(time.Hour),
		CreatedAt:          baseTime,
	}
	host := &models.Participant{UserID: "host", Role: models.RoleHost, JoinedAt: baseTime}
	link := &models.ShareLink{TokenHash: "hash", ExpiresAt: order.ShareLinkExpiresAt, CreatedAt: baseTime}
	if err := store.CreateGroupOrder(ctx, order, host, link); err != nil {
		t.Fatalf("CreateGroupOrder failed: %v", err)
	}

	for i, m := range members {
		p := &models.Participant{GroupOrderID: order.ID, UserID: m, Role: models.RoleMember, JoinedAt: baseTime.Add(time.Duration(i+1) * time.Second)}
		if _, _, err := store.AddParticipant(ctx, p, nil); err != nil {
			t.Fatalf("AddParticipant(%s) failed: %v", m, err)
		}
	}

	return New(store, nil, func() time.Time { return baseTime }), store, order.ID
}

func TestContribute(t *testing.T) {
	ctx := context.Background()

	t.Run("records contribution and returns summary", func(t *testing.T) {
		l, _, id := setupLedger(t, "u1")

		summary, err := l.Contribute(ctx, id, "u1", 1500, "k1")
		if err != nil {
			t.Fatalf("Contribute failed: %v", err)
		}
		if summary.Collected != 1500 {
			t.Errorf("Expected collected 1500, got %d", summary.Collected)
		}
		if summary.Target == nil || *summary.Target != 2000 {
			t.Errorf("Expected target 2000, got %v", summary.Target)
		}
		if summary.Remaining() != 500 {
			t.Errorf("Expected remaining 500, got %d", summary.Remaining())
		}
	})

	t.Run("same key is applied once", func(t *testing.T) {
		l, _, id := setupLedger(t, "u1")

		if _, err := l.Contribute(ctx, id, "u1", 1500, "k1"); err != nil {
			t.Fatalf("First Contribute failed: %v", err)
		}
		summary, err := l.Contribute(ctx, id, "u1", 1500, "k1")
		if err != nil {
			t.Fatalf("Retry Contribute failed: %v", err)
		}
		if summary.Collected != 1500 {
			t.Errorf("Expected collected 1500 after retry, got %d", summary.Collected)
		}
		if len(summary.PerParticipant) != 1 || summary.PerParticipant[0].Count != 1 {
			t.Errorf("Expected a single entry for u1, got %+v", summary.PerParticipant)
		}
	})

	t.Run("reused key with different amount is rejected", func(t *testing.T) {
		l, _, id := setupLedger(t, "u1")

		if _, err := l.Contribute(ctx, id, "u1", 1500, "k1"); err != nil {
			t.Fatalf("First Contribute failed: %v", err)
		}
		_, err := l.Contribute(ctx, id, "u1", 900, "k1")
		if !errors.Is(err, apperr.ErrIdempotencyMismatch) {
			t.Errorf("Expected ErrIdempotencyMismatch, got %v", err)
		}
	})

	t.Run("invalid amount", func(t *testing.T) {
		l, _, id := setupLedger(t, "u1")

		for _, amount := range []models.Money{0, -100} {
			_, err := l.Contribute(ctx, id, "u1", amount, "k")
			if !errors.Is(err, apperr.ErrInvalidAmount) {
				t.Errorf("Contribute(%d): expected ErrInvalidAmount, got %v", amount, err)
			}
		}
	})

	t.Run("amount above limit", func(t *testing.T) {
		l, _, id := setupLedger(t, "u1", "u2")

		_, err := l.Contribute(ctx, id, "u1", math.MaxInt64, "k1")
		if !errors.Is(err, apperr.ErrInvalidAmount) {
			t.Fatalf("Expected ErrInvalidAmount, got %v", err)
		}
		summary, err := l.Contribute(ctx, id, "u2", 1, "k2")
		if err != nil {
			t.Fatalf("Contribute after rejected amount failed: %v", err)
		}
		if summary.Collected != 1 {
			t.Errorf("Expected collected 1, got %d", summary.Collected)
		}

		summary, err = l.Contribute(ctx, id, "u1", models.MaxContribution, "k3")
		if err != nil {
			t.Fatalf("Contribute at the limit failed: %v", err)
		}
		if summary.Collected != models.MaxContribution+1 {
			t.Errorf("Expected collected %d, got %d", models.MaxContribution+1, summary.Collected)
		}
		if summary.Collected.String() != "1000000.01" {
			t.Errorf("Collected formats as %q", summary.Collected.String())
		}
	})

	t.Run("full pool is rejected", func(t *testing.T) {
		l, store, id := setupLedger(t, "u1")

		_, _, err := store.AppendContribution(ctx, &models.Contribution{GroupOrderID: id, ParticipantID: "u1", Amount: models.MaxPool, IdempotencyKey: "seed", CreatedAt: baseTime})
		if err != nil {
			t.Fatalf("Failed to fill the pool: %v", err)
		}

		_, err = l.Contribute(ctx, id, "u1", 1, "k")
		if !errors.Is(err, apperr.ErrInvalidAmount) {
			t.Errorf("Expected ErrInvalidAmount, got %v", err)
		}
		summary, err := l.Summary(ctx, id)
		if err != nil {
			t.Fatalf("Summary failed: %v", err)
		}
		collected, err := l.Collected(ctx, id)
		if err != nil {
			t.Fatalf("Collected failed: %v", err)
		}
		if summary.Collected != models.MaxPool || collected != models.MaxPool {
			t.Errorf("Summary %d and Collected %d, want %d", summary.Collected, collected, models.MaxPool)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		l, _, id := setupLedger(t, "u1")

		_, err := l.Contribute(ctx, id, "u1", 100, "")
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("Expected validation error, got %v", err)
		}
	})

	t.Run("non participant is rejected", func(t *testing.T) {
		l, _, id := setupLedger(t)

		_, err := l.Contribute(ctx, id, "stranger", 100, "k")
		if !errors.Is(err, apperr.ErrNotParticipant) {
			t.Errorf("Expected ErrNotParticipant, got %v", err)
		}
	})

	t.Run("unknown group order", func(t *testing.T) {
		l, _, _ := setupLedger(t)

		_, err := l.Contribute(ctx, "missing", "u1", 100, "k")
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("terminal order is rejected", func(t *testing.T) {
		l, store, id := setupLedger(t, "u1")

		ok, err := store.CompareAndSetStatus(ctx, id, models.StatusOpen, models.StatusCancelled,
			storage.StatusChange{At: baseTime, Terminal: true})
		if err != nil || !ok {
			t.Fatalf("Cancel failed: ok=%v err=%v", ok, err)
		}

		_, err = l.Contribute(ctx, id, "u1", 100, "k")
		if !errors.Is(err, apperr.ErrGroupOrderClosed) {
			t.Errorf("Expected ErrGroupOrderClosed, got %v", err)
		}
	})

	t.Run("concurrent contributions all land", func(t *testing.T) {
		members := []string{"u1", "u2", "u3", "u4"}
		l, _, id := setupLedger(t, members...)

		var wg sync.WaitGroup
		errs := make(chan error, len(members)*5)
		for _, m := range members {
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(member string, n int) {
					defer wg.Done()
					_, err := l.Contribute(ctx, id, member, 100, fmt.Sprintf("%s-%d", member, n))
					errs <- err
				}(m, i)
			}
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Fatalf("Concurrent Contribute failed: %v", err)
			}
		}

		summary, err := l.Summary(ctx, id)
		if err != nil {
			t.Fatalf("Summary failed: %v", err)
		}
		if summary.Collected != 2000 {
			t.Errorf("Expected collected 2000, got %d", summary.Collected)
		}
		collected, err := l.Collected(ctx, id)
		if err != nil {
			t.Fatalf("Collected failed: %v", err)
		}
		if collected != summary.Collected {
			t.Errorf("Collected %d disagrees with summary %d", collected, summary.Collected)
		}
	})
}

func TestAggregate(t *testing.T) {
	entries := []*models.Contribution{
		{ParticipantID: "b", Amount: 300},
		{ParticipantID: "a", Amount: 200},
		{ParticipantID: "b", Amount: 100},
	}

	summary := Aggregate(entries)
	if summary.Collected != 600 {
		t.Errorf("Expected collected 600, got %d", summary.Collected)
	}
	want := []models.ParticipantTotal{
		{ParticipantID: "b", Amount: 400, Count: 2},
		{ParticipantID: "a", Amount: 200, Count: 1},
	}
	if len(summary.PerParticipant) != len(want) {
		t.Fatalf("Expected %d participants, got %d", len(want), len(summary.PerParticipant))
	}
	for i := range want {
		if summary.PerParticipant[i] != want[i] {
			t.Errorf("PerParticipant[%d] = %+v, want %+v", i, summary.PerParticipant[i], want[i])
		}
	}

	if empty := Aggregate(nil); empty.Collected != 0 || len(empty.PerParticipant) != 0 {
		t.Errorf("Expected empty summary, got %+v", empty)
	}
}
