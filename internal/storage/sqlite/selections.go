package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

// PutSelection replaces a participant's selection and clears their ready flag.
func (s *SQLiteStore) PutSelection(ctx context.Context, sel *models.Selection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := checkStatus(ctx, tx, sel.GroupOrderID, models.StatusSelecting); err != nil {
		return err
	}

	ok, err := participantExists(ctx, tx, sel.GroupOrderID, sel.ParticipantID)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotParticipant
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO selections (group_order_id, participant_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (group_order_id, participant_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sel.GroupOrderID, sel.ParticipantID, toMillis(sel.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert selection: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM selection_items WHERE group_order_id = ? AND participant_id = ?",
		sel.GroupOrderID, sel.ParticipantID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear selection items: %w", err)
	}

	for i, item := range sel.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO selection_items (group_order_id, participant_id, position, dish_id, name, quantity, unit_price, special_instructions)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sel.GroupOrderID, sel.ParticipantID, i, item.DishID, item.Name, item.Quantity, int64(item.UnitPrice), item.SpecialInstructions,
		)
		if err != nil {
			return fmt.Errorf("failed to insert selection item: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE participants SET selection_ready = 0 WHERE group_order_id = ? AND user_id = ?",
		sel.GroupOrderID, sel.ParticipantID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset ready flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSelection retrieves one participant's selection.
func (s *SQLiteStore) GetSelection(ctx context.Context, groupOrderID, participantID string) (*models.Selection, error) {
	sel := &models.Selection{GroupOrderID: groupOrderID, ParticipantID: participantID}
	var updatedAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT updated_at FROM selections WHERE group_order_id = ? AND participant_id = ?",
		groupOrderID, participantID,
	).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("selection for %s: %w", participantID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}
	sel.UpdatedAt = fromMillis(updatedAt)

	items, err := s.listItems(ctx,
		"WHERE group_order_id = ? AND participant_id = ?", groupOrderID, participantID)
	if err != nil {
		return nil, err
	}
	sel.Items = items[participantID]
	return sel, nil
}

// ListSelections retrieves every selection of a group order, ordered by
// participant join order.
func (s *SQLiteStore) ListSelections(ctx context.Context, groupOrderID string) ([]*models.Selection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.participant_id, s.updated_at
		 FROM selections s
		 LEFT JOIN participants p ON p.group_order_id = s.group_order_id AND p.user_id = s.participant_id
		 WHERE s.group_order_id = ?
		 ORDER BY p.joined_at, s.participant_id`,
		groupOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}

	var selections []*models.Selection
	for rows.Next() {
		sel := &models.Selection{GroupOrderID: groupOrderID}
		var updatedAt int64
		if err := rows.Scan(&sel.ParticipantID, &updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		sel.UpdatedAt = fromMillis(updatedAt)
		selections = append(selections, sel)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate selections: %w", err)
	}

	// Items are read after the selection rows are closed: the store runs on
	// a single connection.
	items, err := s.listItems(ctx, "WHERE group_order_id = ?", groupOrderID)
	if err != nil {
		return nil, err
	}
	for _, sel := range selections {
		sel.Items = items[sel.ParticipantID]
	}
	return selections, nil
}

// listItems returns selection items keyed by participant, in position order.
func (s *SQLiteStore) listItems(ctx context.Context, where string, args ...any) (map[string][]models.SelectionItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, dish_id, name, quantity, unit_price, special_instructions
		 FROM selection_items `+where+` ORDER BY participant_id, position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get selection items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]models.SelectionItem)
	for rows.Next() {
		var (
			participantID string
			item          models.SelectionItem
			price         int64
		)
		if err := rows.Scan(&participantID, &item.DishID, &item.Name, &item.Quantity, &price, &item.SpecialInstructions); err != nil {
			return nil, fmt.Errorf("failed to scan selection item: %w", err)
		}
		item.UnitPrice = models.Money(price)
		items[participantID] = append(items[participantID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate selection items: %w", err)
	}
	return items, nil
}
