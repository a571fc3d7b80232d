package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

const participantColumns = "user_id, group_order_id, role, joined_at, selection_ready"

// AddParticipant joins a user to an open group order, optionally recording
// their first contribution in the same transaction.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *models.Participant, initial *models.Contribution) (*models.Participant, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Retries of a successful join return the existing row whatever the
	// order's status is now.
	existing, err := scanParticipant(tx.QueryRowContext(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE group_order_id = ? AND user_id = ?",
		p.GroupOrderID, p.UserID,
	))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to get participant: %w", err)
	}

	if _, err := checkStatus(ctx, tx, p.GroupOrderID, models.StatusOpen); err != nil {
		return nil, false, err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO participants (group_order_id, user_id, role, joined_at, selection_ready) VALUES (?, ?, ?, ?, 0)",
		p.GroupOrderID, p.UserID, string(p.Role), toMillis(p.JoinedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert participant: %w", err)
	}

	if initial != nil {
		prior, err := findContributionByKey(ctx, tx, initial.GroupOrderID, initial.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if prior != nil {
			return nil, false, storage.ErrDuplicateKey
		}
		if err := insertContribution(ctx, tx, initial); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.SelectionReady = false
	return p, true, nil
}

// GetParticipant retrieves one participant of a group order.
func (s *SQLiteStore) GetParticipant(ctx context.Context, groupOrderID, userID string) (*models.Participant, error) {
	p, err := scanParticipant(s.db.QueryRowContext(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE group_order_id = ? AND user_id = ?",
		groupOrderID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("participant %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}

// ListParticipants retrieves all participants of a group order in join order.
func (s *SQLiteStore) ListParticipants(ctx context.Context, groupOrderID string) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+participantColumns+" FROM participants WHERE group_order_id = ? ORDER BY joined_at, rowid",
		groupOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

// SetSelectionReady flags a participant's selection as final.
func (s *SQLiteStore) SetSelectionReady(ctx context.Context, groupOrderID, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := checkStatus(ctx, tx, groupOrderID, models.StatusSelecting); err != nil {
		return err
	}

	ok, err := participantExists(ctx, tx, groupOrderID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotParticipant
	}

	var count int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM selection_items WHERE group_order_id = ? AND participant_id = ?",
		groupOrderID, userID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count selection items: %w", err)
	}
	if count == 0 {
		return storage.ErrEmptySelection
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE participants SET selection_ready = 1 WHERE group_order_id = ? AND user_id = ?",
		groupOrderID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark selection ready: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanParticipant(row scanner) (*models.Participant, error) {
	var (
		p        models.Participant
		role     string
		joinedAt int64
	)
	if err := row.Scan(&p.UserID, &p.GroupOrderID, &role, &joinedAt, &p.SelectionReady); err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	p.JoinedAt = fromMillis(joinedAt)
	return &p, nil
}
