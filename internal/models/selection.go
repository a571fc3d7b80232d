package models

import "time"

// SelectionItem is one line in a participant's selection.
type SelectionItem struct {
	DishID              string `validate:"required"`
	Name                string `validate:"required,max=200,nocontrol"`
	Quantity            int    `validate:"min=1,max=99"`
	UnitPrice           Money  `validate:"gte=0,max=10000000"`
	SpecialInstructions string `validate:"max=500,nocontrol"`
}

// LineTotal returns quantity × unit price.
func (i SelectionItem) LineTotal() Money {
	return Money(i.Quantity) * i.UnitPrice
}

// Selection holds the items one participant has chosen.
// There is exactly one per (participant, group order).
type Selection struct {
	GroupOrderID  string
	ParticipantID string
	Items         []SelectionItem `validate:"required,min=1,max=50,dive"`
	UpdatedAt     time.Time
}

// LineTotal returns the sum of all item line totals. Validated selections
// stay far inside the int64 range.
func (s *Selection) LineTotal() Money {
	var total Money
	for _, item := range s.Items {
		total += item.LineTotal()
	}
	return total
}
