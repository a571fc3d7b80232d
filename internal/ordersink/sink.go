// Package ordersink hands finalized group orders to the Order Service.
package ordersink

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/grouporder/internal/models"
)

// Sink is the Order Service contract. SubmitOrder returns the external
// order ID. The engine calls it again for the same group order only after
// it returned an error; implementations send under OrderIDFor so the Order
// Service can drop such a repeat.
type Sink interface {
	SubmitOrder(ctx context.Context, order *models.FinalizedOrder) (string, error)
}

// orderNamespace scopes order IDs derived from group order IDs.
var orderNamespace = uuid.MustParse("5b0c7a8e-3f1d-4f6b-9a57-2d8c4e1b6f90")

// OrderIDFor derives the external order ID from the group order ID, so a
// close retried after a lost response maps to the same order.
func OrderIDFor(groupOrderID string) string {
	return uuid.NewSHA1(orderNamespace, []byte(groupOrderID)).String()
}

// Line is one merged item in the submitted payload.
type Line struct {
	ParticipantID       string       `json:"participant_id"`
	DishID              string       `json:"dish_id"`
	Name                string       `json:"name"`
	Quantity            int          `json:"quantity"`
	UnitPrice           models.Money `json:"unit_price"`
	SpecialInstructions string       `json:"special_instructions,omitempty"`
}

// Payer is one entry of the payer breakdown.
type Payer struct {
	ParticipantID string       `json:"participant_id"`
	Contributed   models.Money `json:"contributed"`
	Consumed      models.Money `json:"consumed"`
}

// Payload is the message body sent to the Order Service.
type Payload struct {
	OrderID         string                  `json:"order_id"`
	GroupOrderID    string                  `json:"group_order_id"`
	CreatorID       string                  `json:"creator_id"`
	HostID          string                  `json:"host_id"`
	Items           []Line                  `json:"items"`
	Subtotal        models.Money            `json:"subtotal"`
	Discount        models.Money            `json:"discount"`
	Total           models.Money            `json:"total"`
	Collected       models.Money            `json:"collected"`
	Shortfall       models.Money            `json:"shortfall"`
	DeliveryAddress *models.DeliveryAddress `json:"delivery_address,omitempty"`
	DeliveryTime    string                  `json:"delivery_time,omitempty"`
	Payers          []Payer                 `json:"payers"`
	ClosedAt        time.Time               `json:"closed_at"`
}

// NewPayload converts a finalized order to its wire form.
func NewPayload(orderID string, o *models.FinalizedOrder) Payload {
	p := Payload{
		OrderID:         orderID,
		GroupOrderID:    o.GroupOrderID,
		CreatorID:       o.CreatorID,
		HostID:          o.HostID,
		Items:           make([]Line, 0, len(o.Items)),
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		Total:           o.Total,
		Collected:       o.Collected,
		Shortfall:       o.Shortfall,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryTime:    o.DeliveryTime,
		Payers:          make([]Payer, 0, len(o.Payers)),
		ClosedAt:        o.ClosedAt,
	}
	for _, item := range o.Items {
		p.Items = append(p.Items, Line{
			ParticipantID:       item.ParticipantID,
			DishID:              item.DishID,
			Name:                item.Name,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			SpecialInstructions: item.SpecialInstructions,
		})
	}
	for _, payer := range o.Payers {
		p.Payers = append(p.Payers, Payer(payer))
	}
	return p
}
