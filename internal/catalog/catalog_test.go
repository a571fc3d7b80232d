package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	c := NewStatic(Dish{DishID: "margherita", Name: "Margherita", Price: 1000})

	price, err := c.PriceFor(ctx, "margherita")
	if err != nil {
		t.Fatalf("PriceFor failed: %v", err)
	}
	if price != 1000 {
		t.Errorf("Expected price 1000, got %d", price)
	}

	_, err = c.PriceFor(ctx, "calzone")
	if !errors.Is(err, apperr.ErrUnknownDish) {
		t.Errorf("Expected ErrUnknownDish, got %v", err)
	}

	c.Put(Dish{DishID: "calzone", Name: "Calzone", Price: 1250})
	if c.Len() != 2 {
		t.Errorf("Expected 2 dishes, got %d", c.Len())
	}

	d, err := c.Lookup(ctx, "calzone")
	if err != nil || d.Name != "Calzone" || d.Price != 1250 {
		t.Errorf("Lookup(calzone) = %+v, %v; want Calzone at 1250", d, err)
	}

	c.Put(Dish{DishID: "truffle", Name: "Truffle", Price: models.MaxUnitPrice + 1})
	if _, err := c.Lookup(ctx, "truffle"); !errors.Is(err, apperr.ErrCatalog) {
		t.Errorf("Expected ErrCatalog for overpriced dish, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.PriceFor(cancelled, "calzone")
	if apperr.KindOf(err) != apperr.KindExternal {
		t.Errorf("Expected external error on cancelled context, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "menu.json")
		data := `[{"dish_id":"pad-thai","name":"Pad Thai","price":1150},{"dish_id":"spring-rolls","name":"Spring Rolls","price":450}]`
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatalf("Failed to write catalog: %v", err)
		}

		c, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		price, err := c.PriceFor(context.Background(), "spring-rolls")
		if err != nil || price != 450 {
			t.Errorf("PriceFor(spring-rolls) = %d, %v; want 450", price, err)
		}
	})

	t.Run("negative price", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		if err := os.WriteFile(path, []byte(`[{"dish_id":"x","name":"X","price":-1}]`), 0o600); err != nil {
			t.Fatalf("Failed to write catalog: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Expected error for negative price")
		}
	})

	t.Run("price above limit", func(t *testing.T) {
		path := filepath.Join(dir, "dear.json")
		if err := os.WriteFile(path, []byte(`[{"dish_id":"x","name":"X","price":4611686018427387904}]`), 0o600); err != nil {
			t.Fatalf("Failed to write catalog: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Expected error for price above the limit")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}
