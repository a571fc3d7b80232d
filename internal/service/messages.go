package service

import (
	"time"

	"github.com/mmynk/grouporder/internal/grouporder"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/notify"
)

// Amounts on the wire are integer minor currency units.

type GroupOrder struct {
	ID                 string                  `json:"id"`
	HostID             string                  `json:"host_id"`
	CreatorID          string                  `json:"creator_id"`
	RestaurantName     string                  `json:"restaurant_name,omitempty"`
	Title              string                  `json:"title"`
	Status             models.Status           `json:"status"`
	BudgetTarget       *int64                  `json:"budget_target,omitempty"`
	DeliveryAddress    *models.DeliveryAddress `json:"delivery_address,omitempty"`
	DeliveryTime       string                  `json:"delivery_time,omitempty"`
	ShareLinkExpiresAt time.Time               `json:"share_link_expires_at"`
	CreatedAt          time.Time               `json:"created_at"`
	SelectionStartedAt *time.Time              `json:"selection_started_at,omitempty"`
	ClosedAt           *time.Time              `json:"closed_at,omitempty"`
	OrderID            string                  `json:"order_id,omitempty"`
	Shortfall          int64                   `json:"shortfall,omitempty"`
	RefundRequired     bool                    `json:"refund_required,omitempty"`
}

type Participant struct {
	UserID         string      `json:"user_id"`
	Role           models.Role `json:"role"`
	JoinedAt       time.Time   `json:"joined_at"`
	SelectionReady bool        `json:"selection_ready"`
}

type ParticipantTotal struct {
	ParticipantID string `json:"participant_id"`
	Amount        int64  `json:"amount"`
	Count         int    `json:"count"`
}

type BudgetSummary struct {
	Collected      int64              `json:"collected"`
	Target         *int64             `json:"target,omitempty"`
	Remaining      int64              `json:"remaining"`
	PerParticipant []ParticipantTotal `json:"per_participant"`
}

type SelectionItem struct {
	DishID              string `json:"dish_id"`
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	UnitPrice           int64  `json:"unit_price"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

type Selection struct {
	ParticipantID string          `json:"participant_id"`
	Items         []SelectionItem `json:"items"`
	LineTotal     int64           `json:"line_total"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

type OrderLine struct {
	ParticipantID string `json:"participant_id"`
	SelectionItem
}

type Payer struct {
	ParticipantID string `json:"participant_id"`
	Contributed   int64  `json:"contributed"`
	Consumed      int64  `json:"consumed"`
}

type FinalizedOrder struct {
	GroupOrderID    string                  `json:"group_order_id"`
	OrderID         string                  `json:"order_id"`
	CreatorID       string                  `json:"creator_id"`
	Items           []OrderLine             `json:"items"`
	Subtotal        int64                   `json:"subtotal"`
	Discount        int64                   `json:"discount"`
	Total           int64                   `json:"total"`
	Collected       int64                   `json:"collected"`
	Shortfall       int64                   `json:"shortfall"`
	Underfunded     bool                    `json:"underfunded"`
	DeliveryAddress *models.DeliveryAddress `json:"delivery_address,omitempty"`
	DeliveryTime    string                  `json:"delivery_time,omitempty"`
	Payers          []Payer                 `json:"payers"`
	ClosedAt        time.Time               `json:"closed_at"`
}

type PhaseEvent struct {
	GroupOrderID string        `json:"group_order_id"`
	From         models.Status `json:"from,omitempty"`
	To           models.Status `json:"to"`
	ActorID      string        `json:"actor_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	At           time.Time     `json:"at"`
}

type CreateGroupOrderRequest struct {
	CreatorID       string                  `json:"creator_id"`
	RestaurantName  string                  `json:"restaurant_name"`
	Title           string                  `json:"title"`
	BudgetTarget    *int64                  `json:"budget_target"`
	DeliveryAddress *models.DeliveryAddress `json:"delivery_address"`
	DeliveryTime    string                  `json:"delivery_time"`
	TTLHours        int                     `json:"ttl_hours"`
}

type CreateGroupOrderResponse struct {
	GroupOrder         GroupOrder `json:"group_order"`
	ShareToken         string     `json:"share_token"`
	ShareLinkExpiresAt time.Time  `json:"share_link_expires_at"`
}

type JoinGroupOrderRequest struct {
	Token               string `json:"token"`
	GroupOrderID        string `json:"group_order_id"`
	IdempotencyKey      string `json:"idempotency_key"`
	InitialContribution *int64 `json:"initial_contribution"`
}

type JoinGroupOrderResponse struct {
	GroupOrderID string      `json:"group_order_id"`
	Participant  Participant `json:"participant"`
}

type StartSelectionRequest struct {
	GroupOrderID string `json:"group_order_id"`
}

type StartSelectionResponse struct {
	GroupOrder GroupOrder `json:"group_order"`
}

type UpdateSelectionRequest struct {
	GroupOrderID string          `json:"group_order_id"`
	Items        []SelectionItem `json:"items"`
}

type UpdateSelectionResponse struct {
	Selection Selection `json:"selection"`
}

type MarkSelectionReadyRequest struct {
	GroupOrderID string `json:"group_order_id"`
}

type MarkSelectionReadyResponse struct {
	// Advanced is set when this call made everyone ready and moved the
	// order to ready.
	Advanced bool `json:"advanced"`
}

type AdvanceToReadyRequest struct {
	GroupOrderID string `json:"group_order_id"`
	Force        bool   `json:"force"`
}

type AdvanceToReadyResponse struct {
	GroupOrder GroupOrder `json:"group_order"`
	NotReady   []string   `json:"not_ready"`
}

type ContributeBudgetRequest struct {
	GroupOrderID   string `json:"group_order_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type ContributeBudgetResponse struct {
	Budget BudgetSummary `json:"budget"`
}

type GetGroupOrderStatusRequest struct {
	GroupOrderID string `json:"group_order_id"`
}

type GetGroupOrderStatusResponse struct {
	GroupOrder   GroupOrder    `json:"group_order"`
	Participants []Participant `json:"participants"`
	Budget       BudgetSummary `json:"budget"`
}

type GetSelectionsRequest struct {
	GroupOrderID  string `json:"group_order_id"`
	ParticipantID string `json:"participant_id"`
}

type GetSelectionsResponse struct {
	Selections []Selection `json:"selections"`
}

type CloseGroupOrderRequest struct {
	GroupOrderID     string `json:"group_order_id"`
	AllowUnderfunded bool   `json:"allow_underfunded"`
}

type CloseGroupOrderResponse struct {
	Order FinalizedOrder `json:"order"`
}

type CancelGroupOrderRequest struct {
	GroupOrderID string `json:"group_order_id"`
}

type CancelGroupOrderResponse struct {
	GroupOrder GroupOrder `json:"group_order"`
}

type WatchGroupOrderRequest struct {
	GroupOrderID string `json:"group_order_id"`
}

func moneyPtr(m *models.Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}

func toGroupOrder(o *models.GroupOrder) GroupOrder {
	return GroupOrder{
		ID:                 o.ID,
		HostID:             o.HostID,
		CreatorID:          o.CreatorID,
		RestaurantName:     o.RestaurantName,
		Title:              o.Title,
		Status:             o.Status,
		BudgetTarget:       moneyPtr(o.BudgetTarget),
		DeliveryAddress:    o.DeliveryAddress,
		DeliveryTime:       o.DeliveryTime,
		ShareLinkExpiresAt: o.ShareLinkExpiresAt,
		CreatedAt:          o.CreatedAt,
		SelectionStartedAt: o.SelectionStartedAt,
		ClosedAt:           o.ClosedAt,
		OrderID:            o.OrderID,
		Shortfall:          int64(o.Shortfall),
		RefundRequired:     o.RefundRequired,
	}
}

func toParticipant(p *models.Participant) Participant {
	return Participant{
		UserID:         p.UserID,
		Role:           p.Role,
		JoinedAt:       p.JoinedAt,
		SelectionReady: p.SelectionReady,
	}
}

func toParticipants(ps []*models.Participant) []Participant {
	out := make([]Participant, len(ps))
	for i, p := range ps {
		out[i] = toParticipant(p)
	}
	return out
}

func toBudget(b models.BudgetSummary) BudgetSummary {
	out := BudgetSummary{
		Collected:      int64(b.Collected),
		Target:         moneyPtr(b.Target),
		Remaining:      int64(b.Remaining()),
		PerParticipant: make([]ParticipantTotal, len(b.PerParticipant)),
	}
	for i, pt := range b.PerParticipant {
		out.PerParticipant[i] = ParticipantTotal{
			ParticipantID: pt.ParticipantID,
			Amount:        int64(pt.Amount),
			Count:         pt.Count,
		}
	}
	return out
}

func toItem(item models.SelectionItem) SelectionItem {
	return SelectionItem{
		DishID:              item.DishID,
		Name:                item.Name,
		Quantity:            item.Quantity,
		UnitPrice:           int64(item.UnitPrice),
		SpecialInstructions: item.SpecialInstructions,
	}
}

func fromItems(items []SelectionItem) []models.SelectionItem {
	out := make([]models.SelectionItem, len(items))
	for i, item := range items {
		out[i] = models.SelectionItem{
			DishID:              item.DishID,
			Name:                item.Name,
			Quantity:            item.Quantity,
			UnitPrice:           models.Money(item.UnitPrice),
			SpecialInstructions: item.SpecialInstructions,
		}
	}
	return out
}

func toSelection(sel *models.Selection) Selection {
	out := Selection{
		ParticipantID: sel.ParticipantID,
		Items:         make([]SelectionItem, len(sel.Items)),
		LineTotal:     int64(sel.LineTotal()),
	}
	for i, item := range sel.Items {
		out.Items[i] = toItem(item)
	}
	if !sel.UpdatedAt.IsZero() {
		updated := sel.UpdatedAt
		out.UpdatedAt = &updated
	}
	return out
}

func toSelections(sels []*models.Selection) []Selection {
	out := make([]Selection, len(sels))
	for i, sel := range sels {
		out[i] = toSelection(sel)
	}
	return out
}

func toFinalized(o *models.FinalizedOrder) FinalizedOrder {
	out := FinalizedOrder{
		GroupOrderID:    o.GroupOrderID,
		OrderID:         o.OrderID,
		CreatorID:       o.CreatorID,
		Items:           make([]OrderLine, len(o.Items)),
		Subtotal:        int64(o.Subtotal),
		Discount:        int64(o.Discount),
		Total:           int64(o.Total),
		Collected:       int64(o.Collected),
		Shortfall:       int64(o.Shortfall),
		Underfunded:     o.Underfunded,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryTime:    o.DeliveryTime,
		Payers:          make([]Payer, len(o.Payers)),
		ClosedAt:        o.ClosedAt,
	}
	for i, item := range o.Items {
		out.Items[i] = OrderLine{ParticipantID: item.ParticipantID, SelectionItem: toItem(item.SelectionItem)}
	}
	for i, p := range o.Payers {
		out.Payers[i] = Payer{
			ParticipantID: p.ParticipantID,
			Contributed:   int64(p.Contributed),
			Consumed:      int64(p.Consumed),
		}
	}
	return out
}

func toEvent(e notify.Event) *PhaseEvent {
	return &PhaseEvent{
		GroupOrderID: e.GroupOrderID,
		From:         e.From,
		To:           e.To,
		ActorID:      e.ActorID,
		Reason:       e.Reason,
		At:           e.At,
	}
}

func toStatusResponse(st *grouporder.Status) *GetGroupOrderStatusResponse {
	return &GetGroupOrderStatusResponse{
		GroupOrder:   toGroupOrder(st.GroupOrder),
		Participants: toParticipants(st.Participants),
		Budget:       toBudget(st.Budget),
	}
}
