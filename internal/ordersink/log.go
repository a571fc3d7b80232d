package ordersink

import (
	"context"
	"log/slog"

	"github.com/mmynk/grouporder/internal/models"
)

// Log is a Sink for local runs that only logs the order.
type Log struct{}

var _ Sink = Log{}

func (Log) SubmitOrder(_ context.Context, order *models.FinalizedOrder) (string, error) {
	orderID := OrderIDFor(order.GroupOrderID)
	slog.Info("Order submitted",
		"order_id", orderID,
		"group_order_id", order.GroupOrderID,
		"creator_id", order.CreatorID,
		"items", len(order.Items),
		"total", order.Total.String(),
	)
	return orderID, nil
}
