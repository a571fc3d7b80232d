package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

const contributionColumns = "id, group_order_id, participant_id, amount, idempotency_key, created_at"

// AppendContribution adds an entry to the ledger. A key seen before returns
// the original entry instead of inserting.
func (s *SQLiteStore) AppendContribution(ctx context.Context, c *models.Contribution) (*models.Contribution, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prior, err := findContributionByKey(ctx, tx, c.GroupOrderID, c.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if prior != nil {
		return prior, true, nil
	}

	if _, err := checkStatus(ctx, tx, c.GroupOrderID,
		models.StatusOpen, models.StatusSelecting, models.StatusReady); err != nil {
		return nil, false, err
	}

	ok, err := participantExists(ctx, tx, c.GroupOrderID, c.ParticipantID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, storage.ErrNotParticipant
	}

	if err := insertContribution(ctx, tx, c); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return c, false, nil
}

// ListContributions returns the ledger of a group order in append order.
func (s *SQLiteStore) ListContributions(ctx context.Context, groupOrderID string) ([]*models.Contribution, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE group_order_id = ? ORDER BY created_at, rowid",
		groupOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []*models.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contributions: %w", err)
	}
	return contributions, nil
}

// SumContributions recomputes the collected total from the ledger.
func (s *SQLiteStore) SumContributions(ctx context.Context, groupOrderID string) (models.Money, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE group_order_id = ?",
		groupOrderID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum contributions: %w", err)
	}
	return models.Money(total), nil
}

func findContributionByKey(ctx context.Context, tx *sql.Tx, groupOrderID, key string) (*models.Contribution, error) {
	c, err := scanContribution(tx.QueryRowContext(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE group_order_id = ? AND idempotency_key = ?",
		groupOrderID, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return c, nil
}

func insertContribution(ctx context.Context, tx *sql.Tx, c *models.Contribution) error {
	// Generate ID if not set
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var collected int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE group_order_id = ?",
		c.GroupOrderID,
	).Scan(&collected); err != nil {
		return fmt.Errorf("failed to sum contributions: %w", err)
	}
	if c.Amount > models.MaxPool-models.Money(collected) {
		return storage.ErrPoolLimit
	}

	_, err := tx.ExecContext(ctx,
		"INSERT INTO contributions ("+contributionColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.GroupOrderID, c.ParticipantID, int64(c.Amount), c.IdempotencyKey, toMillis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert contribution: %w", err)
	}
	return nil
}

func scanContribution(row scanner) (*models.Contribution, error) {
	var (
		c         models.Contribution
		amount    int64
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.GroupOrderID, &c.ParticipantID, &amount, &c.IdempotencyKey, &createdAt); err != nil {
		return nil, err
	}
	c.Amount = models.Money(amount)
	c.CreatedAt = fromMillis(createdAt)
	return &c, nil
}
