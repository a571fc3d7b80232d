// Package catalog resolves authoritative dish prices.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
)

// Catalog looks up dishes.
type Catalog interface {
	// Lookup returns apperr.ErrUnknownDish for dishes it does not sell.
	Lookup(ctx context.Context, dishID string) (Dish, error)
}

// Dish is one catalog entry.
type Dish struct {
	DishID string       `json:"dish_id"`
	Name   string       `json:"name"`
	Price  models.Money `json:"price"`
}

// Static is an in-memory catalog.
type Static struct {
	mu     sync.RWMutex
	dishes map[string]Dish
}

var _ Catalog = (*Static)(nil)

// NewStatic returns a catalog holding dishes.
func NewStatic(dishes ...Dish) *Static {
	s := &Static{dishes: make(map[string]Dish, len(dishes))}
	for _, d := range dishes {
		s.dishes[d.DishID] = d
	}
	return s
}

// Load reads a JSON array of dishes from path.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var dishes []Dish
	if err := json.Unmarshal(data, &dishes); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for _, d := range dishes {
		if d.DishID == "" {
			return nil, fmt.Errorf("catalog %s: dish without dish_id", path)
		}
		if err := checkPrice(d); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	return NewStatic(dishes...), nil
}

// Lookup returns the listed dish. Entries priced outside
// [0, models.MaxUnitPrice] are reported as catalog faults.
func (s *Static) Lookup(ctx context.Context, dishID string) (Dish, error) {
	if err := ctx.Err(); err != nil {
		return Dish{}, apperr.ErrCatalog.Wrap(err)
	}

	s.mu.RLock()
	d, ok := s.dishes[dishID]
	s.mu.RUnlock()
	if !ok {
		return Dish{}, apperr.ErrUnknownDish.With("dish %s not found in catalog", dishID)
	}
	if err := checkPrice(d); err != nil {
		return Dish{}, apperr.ErrCatalog.Wrap(err)
	}
	return d, nil
}

// PriceFor returns the listed price of dishID.
func (s *Static) PriceFor(ctx context.Context, dishID string) (models.Money, error) {
	d, err := s.Lookup(ctx, dishID)
	if err != nil {
		return 0, err
	}
	return d.Price, nil
}

// Put adds or replaces a dish.
func (s *Static) Put(d Dish) {
	s.mu.Lock()
	s.dishes[d.DishID] = d
	s.mu.Unlock()
}

// Len returns the number of dishes.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dishes)
}

func checkPrice(d Dish) error {
	if d.Price < 0 {
		return fmt.Errorf("dish %s has negative price", d.DishID)
	}
	if d.Price > models.MaxUnitPrice {
		return fmt.Errorf("dish %s costs more than %s", d.DishID, models.MaxUnitPrice)
	}
	return nil
}
