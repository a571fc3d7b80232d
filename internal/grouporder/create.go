package grouporder

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/selection"
)

// CreateRequest holds the fields needed to open a group order.
type CreateRequest struct {
	HostID         string `validate:"required"`
	CreatorID      string `validate:"required"`
	RestaurantName string `validate:"max=200,nocontrol"`
	Title          string `validate:"max=200,nocontrol"`

	// BudgetTarget is optional; when set it must be positive.
	BudgetTarget *models.Money `validate:"omitempty,gt=0"`

	DeliveryAddress *models.DeliveryAddress
	DeliveryTime    string `validate:"max=100"`

	// TTL is how long the share link stays valid. Zero uses the default.
	TTL time.Duration
}

// CreateResult is what the host gets back from CreateGroupOrder.
type CreateResult struct {
	GroupOrder         *models.GroupOrder
	ShareToken         string
	ShareLinkExpiresAt time.Time
}

// CreateGroupOrder opens a group order with the caller as host and issues
// its share link.
func (e *Engine) CreateGroupOrder(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, apperr.ErrInvalidInput.With("invalid group order: %s", selection.Describe(err))
	}
	if req.TTL < 0 {
		return nil, apperr.ErrInvalidInput.With("ttl must not be negative")
	}

	ttl := req.TTL
	if ttl == 0 {
		ttl = e.cfg.DefaultTTL
	}

	token, link, err := e.links.Mint(ttl)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = defaultTitle(req.RestaurantName)
	}

	now := link.CreatedAt
	order := &models.GroupOrder{
		HostID:             req.HostID,
		CreatorID:          req.CreatorID,
		RestaurantName:     req.RestaurantName,
		Title:              title,
		Status:             models.StatusOpen,
		BudgetTarget:       req.BudgetTarget,
		DeliveryAddress:    req.DeliveryAddress,
		DeliveryTime:       req.DeliveryTime,
		ShareLinkExpiresAt: link.ExpiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	host := &models.Participant{
		UserID:   req.HostID,
		Role:     models.RoleHost,
		JoinedAt: now,
	}

	if err := e.store.CreateGroupOrder(ctx, order, host, link); err != nil {
		return nil, err
	}

	slog.Info("Group order created",
		"group_order_id", order.ID,
		"host_id", order.HostID,
		"creator_id", order.CreatorID,
		"expires_at", order.ShareLinkExpiresAt,
	)
	e.phase.Announce(ctx, order)

	return &CreateResult{
		GroupOrder:         order,
		ShareToken:         token,
		ShareLinkExpiresAt: link.ExpiresAt,
	}, nil
}

func defaultTitle(restaurant string) string {
	if restaurant == "" {
		return "Group order"
	}
	return "Group order from " + restaurant
}
