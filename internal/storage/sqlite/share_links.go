package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

// GetShareLink looks a link up by token digest.
func (s *SQLiteStore) GetShareLink(ctx context.Context, tokenHash string) (*models.ShareLink, error) {
	link := &models.ShareLink{TokenHash: tokenHash}
	var expiresAt, createdAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT group_order_id, expires_at, created_at FROM share_links WHERE token_hash = ?",
		tokenHash,
	).Scan(&link.GroupOrderID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("share link: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share link: %w", err)
	}

	link.ExpiresAt = fromMillis(expiresAt)
	link.CreatedAt = fromMillis(createdAt)
	return link, nil
}
