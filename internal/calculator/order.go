// Package calculator computes the money side of a finalized group order:
// line totals, the merged item list, the group discount and each payer's share.
package calculator

import (
	"fmt"

	"github.com/mmynk/grouporder/internal/models"
)

// DiscountPolicy describes the group discount applied at close.
type DiscountPolicy struct {
	// Percent off the subtotal, 0 to 100. Zero disables the discount.
	Percent int

	// MinParticipants is the head count from which the discount applies.
	MinParticipants int
}

// Enabled reports whether the policy can ever produce a discount.
func (p DiscountPolicy) Enabled() bool {
	return p.Percent > 0
}

// LineTotal returns Σ quantity × unit price over items. It fails with
// models.ErrOverflow when the sum leaves the int64 range.
func LineTotal(items []models.SelectionItem) (models.Money, error) {
	var total models.Money
	for _, item := range items {
		if item.UnitPrice < 0 {
			return 0, fmt.Errorf("dish %s: negative unit price", item.DishID)
		}
		line, err := item.UnitPrice.Times(item.Quantity)
		if err != nil {
			return 0, fmt.Errorf("dish %s: %w", item.DishID, err)
		}
		if total, err = total.Add(line); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// SelectionsTotal returns the combined line total of every selection.
func SelectionsTotal(selections []*models.Selection) (models.Money, error) {
	var total models.Money
	for _, sel := range selections {
		line, err := LineTotal(sel.Items)
		if err != nil {
			return 0, fmt.Errorf("participant %s: %w", sel.ParticipantID, err)
		}
		if total, err = total.Add(line); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Merge concatenates every participant's lines into one list, attributed to
// the participant. Selections are expected in participant join order; item
// order within a selection is preserved. Identical dishes from different
// participants stay separate lines.
func Merge(selections []*models.Selection) []models.MergedItem {
	var merged []models.MergedItem
	for _, sel := range selections {
		for _, item := range sel.Items {
			merged = append(merged, models.MergedItem{
				ParticipantID: sel.ParticipantID,
				SelectionItem: item,
			})
		}
	}
	return merged
}

// Discount returns the amount taken off subtotal for a group of the given
// size. Fractions of a minor unit are rounded down.
func Discount(subtotal models.Money, participants int, policy DiscountPolicy) models.Money {
	if !policy.Enabled() || subtotal <= 0 || participants < policy.MinParticipants {
		return 0
	}
	percent := policy.Percent
	if percent > 100 {
		percent = 100
	}
	// Split so the product cannot overflow; the result still rounds down.
	p := models.Money(percent)
	return subtotal/100*p + subtotal%100*p/100
}

// Totals is the priced summary of a merged order.
type Totals struct {
	Subtotal models.Money
	Discount models.Money
	Total    models.Money
}

// Price computes subtotal, discount and total for the given selections.
func Price(selections []*models.Selection, participants int, policy DiscountPolicy) (Totals, error) {
	subtotal, err := SelectionsTotal(selections)
	if err != nil {
		return Totals{}, err
	}
	discount := Discount(subtotal, participants, policy)
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal - discount,
	}, nil
}
