package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

const groupOrderColumns = `id, host_id, creator_id, restaurant_name, title, status, budget_target,
	delivery_address, delivery_time, share_link_expires_at, created_at, selection_started_at,
	closed_at, closing_since, order_id, shortfall, refund_required, updated_at`

// CreateGroupOrder persists a new group order together with its host
// participant and share link.
func (s *SQLiteStore) CreateGroupOrder(ctx context.Context, order *models.GroupOrder, host *models.Participant, link *models.ShareLink) error {
	// Generate ID if not set
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	host.GroupOrderID = order.ID
	link.GroupOrderID = order.ID

	var address sql.NullString
	if order.DeliveryAddress != nil {
		b, err := json.Marshal(order.DeliveryAddress)
		if err != nil {
			return fmt.Errorf("failed to encode delivery address: %w", err)
		}
		address = sql.NullString{String: string(b), Valid: true}
	}

	var target sql.NullInt64
	if order.BudgetTarget != nil {
		target = sql.NullInt64{Int64: int64(*order.BudgetTarget), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO group_orders (id, host_id, creator_id, restaurant_name, title, status, budget_target,
			delivery_address, delivery_time, share_link_expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.HostID, order.CreatorID, order.RestaurantName, order.Title, string(order.Status), target,
		address, order.DeliveryTime, toMillis(order.ShareLinkExpiresAt), toMillis(order.CreatedAt), toMillis(order.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert group order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO participants (group_order_id, user_id, role, joined_at, selection_ready) VALUES (?, ?, ?, ?, 0)",
		order.ID, host.UserID, string(host.Role), toMillis(host.JoinedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert host participant: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO share_links (token_hash, group_order_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		link.TokenHash, order.ID, toMillis(link.ExpiresAt), toMillis(link.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert share link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetGroupOrder retrieves a group order by ID.
func (s *SQLiteStore) GetGroupOrder(ctx context.Context, id string) (*models.GroupOrder, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+groupOrderColumns+" FROM group_orders WHERE id = ?", id)

	order, err := scanGroupOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group order %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group order: %w", err)
	}
	return order, nil
}

// CompareAndSetStatus applies a status transition only if the stored status
// still equals from.
func (s *SQLiteStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, change storage.StatusChange) (bool, error) {
	at := toMillis(change.At)
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(to), at}

	if change.SelectionStarted {
		sets = append(sets, "selection_started_at = ?")
		args = append(args, at)
	}
	if change.Closing {
		sets = append(sets, "closing_since = ?")
		args = append(args, at)
	} else {
		sets = append(sets, "closing_since = NULL")
	}
	if change.Terminal {
		sets = append(sets, "closed_at = ?")
		args = append(args, at)
	}
	if change.OrderID != "" {
		sets = append(sets, "order_id = ?")
		args = append(args, change.OrderID)
	} else if change.ClearOrderID {
		sets = append(sets, "order_id = ''")
	}
	if change.Shortfall != 0 {
		sets = append(sets, "shortfall = ?")
		args = append(args, int64(change.Shortfall))
	}
	if change.FlagRefund {
		sets = append(sets,
			"refund_required = (SELECT COALESCE(SUM(amount), 0) > 0 FROM contributions WHERE group_order_id = group_orders.id)")
	}

	query := "UPDATE group_orders SET " + strings.Join(sets, ", ") + " WHERE id = ? AND status = ?"
	args = append(args, id, string(from))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update group order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// RecordOrderID sets order_id on a closing order that has none yet.
func (s *SQLiteStore) RecordOrderID(ctx context.Context, id, orderID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE group_orders SET order_id = ?, updated_at = ? WHERE id = ? AND status = ? AND order_id = ''",
		orderID, toMillis(at), id, string(models.StatusClosing),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record order id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// ListGroupOrdersByStatus returns all group orders in the given status,
// oldest first.
func (s *SQLiteStore) ListGroupOrdersByStatus(ctx context.Context, status models.Status) ([]*models.GroupOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+groupOrderColumns+" FROM group_orders WHERE status = ? ORDER BY created_at",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list group orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.GroupOrder
	for rows.Next() {
		order, err := scanGroupOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group orders: %w", err)
	}
	return orders, nil
}

// ListReapable returns IDs of terminal group orders closed before cutoff
// that have not been reaped yet.
func (s *SQLiteStore) ListReapable(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM group_orders
		 WHERE status IN (?, ?, ?) AND closed_at IS NOT NULL AND closed_at < ? AND reaped_at IS NULL
		 ORDER BY closed_at`,
		string(models.StatusClosed), string(models.StatusExpired), string(models.StatusCancelled), toMillis(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reapable group orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group order ids: %w", err)
	}
	return ids, nil
}

// PurgeMembership removes participants and selections of a terminal group
// order and stamps reaped_at.
func (s *SQLiteStore) PurgeMembership(ctx context.Context, id string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := checkStatus(ctx, tx, id, models.StatusClosed, models.StatusExpired, models.StatusCancelled); err != nil {
		return err
	}

	for _, stmt := range []string{
		"DELETE FROM selection_items WHERE group_order_id = ?",
		"DELETE FROM selections WHERE group_order_id = ?",
		"DELETE FROM participants WHERE group_order_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to purge membership: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE group_orders SET reaped_at = ? WHERE id = ?", toMillis(at), id); err != nil {
		return fmt.Errorf("failed to mark group order reaped: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanGroupOrder(row scanner) (*models.GroupOrder, error) {
	var (
		order                           models.GroupOrder
		status                          string
		target                          sql.NullInt64
		address                         sql.NullString
		expiresAt, createdAt, updated   int64
		selectionStarted, closed, since sql.NullInt64
		shortfall                       int64
		refund                          bool
	)

	err := row.Scan(&order.ID, &order.HostID, &order.CreatorID, &order.RestaurantName, &order.Title, &status, &target,
		&address, &order.DeliveryTime, &expiresAt, &createdAt, &selectionStarted,
		&closed, &since, &order.OrderID, &shortfall, &refund, &updated)
	if err != nil {
		return nil, err
	}

	order.Status = models.Status(status)
	if target.Valid {
		t := models.Money(target.Int64)
		order.BudgetTarget = &t
	}
	if address.Valid {
		var a models.DeliveryAddress
		if err := json.Unmarshal([]byte(address.String), &a); err != nil {
			return nil, fmt.Errorf("failed to decode delivery address: %w", err)
		}
		order.DeliveryAddress = &a
	}
	order.ShareLinkExpiresAt = fromMillis(expiresAt)
	order.CreatedAt = fromMillis(createdAt)
	order.UpdatedAt = fromMillis(updated)
	order.SelectionStartedAt = timePtr(selectionStarted)
	order.ClosedAt = timePtr(closed)
	order.ClosingSince = timePtr(since)
	order.Shortfall = models.Money(shortfall)
	order.RefundRequired = refund

	return &order, nil
}
