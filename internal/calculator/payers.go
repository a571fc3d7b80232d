package calculator

import (
	"math/bits"

	"github.com/mmynk/grouporder/internal/models"
)

// PayerBreakdown returns, for every participant in join order, what they put
// into the pool and what their selection costs after the group discount.
//
// Consumed amounts are scaled from each participant's line total by
// total / subtotal, so they sum exactly to total. Minor units lost to
// integer division go one at a time to participants in join order.
// totals must come from Price over the same selections.
func PayerBreakdown(participants []*models.Participant, contributions []*models.Contribution, selections []*models.Selection, totals Totals) ([]models.Payer, error) {
	contributed := make(map[string]models.Money)
	for _, c := range contributions {
		contributed[c.ParticipantID] += c.Amount
	}

	lines := make(map[string]models.Money)
	for _, sel := range selections {
		line, err := LineTotal(sel.Items)
		if err != nil {
			return nil, err
		}
		if lines[sel.ParticipantID], err = lines[sel.ParticipantID].Add(line); err != nil {
			return nil, err
		}
	}

	payers := make([]models.Payer, 0, len(participants))
	for _, p := range participants {
		payers = append(payers, models.Payer{
			ParticipantID: p.UserID,
			Contributed:   contributed[p.UserID],
			Consumed:      scale(lines[p.UserID], totals),
		})
	}

	if totals.Subtotal == 0 {
		return payers, nil
	}

	// Hand out the rounding remainder.
	var assigned models.Money
	for _, payer := range payers {
		assigned += payer.Consumed
	}
	remainder := totals.Total - assigned
	for i := 0; remainder > 0 && i < len(payers); i++ {
		if lines[payers[i].ParticipantID] == 0 {
			continue
		}
		payers[i].Consumed++
		remainder--
	}

	return payers, nil
}

// scale returns line × total / subtotal rounded down. The product is taken
// in 128 bits; line <= subtotal keeps the quotient within total.
func scale(line models.Money, totals Totals) models.Money {
	if totals.Subtotal <= 0 || line <= 0 || totals.Total <= 0 {
		return 0
	}
	if line >= totals.Subtotal {
		return totals.Total
	}
	hi, lo := bits.Mul64(uint64(line), uint64(totals.Total))
	q, _ := bits.Div64(hi, lo, uint64(totals.Subtotal))
	return models.Money(q)
}
