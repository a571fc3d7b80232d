// Package sharelink issues and resolves the opaque tokens participants use
// to join a group order.
//
// Tokens are 256 bits from crypto/rand, unrelated to the group order ID.
// Only a BLAKE2b digest of each token is stored, so a leaked database does
// not leak working links.
package sharelink

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/mmynk/grouporder/internal/apperr"
	"github.com/mmynk/grouporder/internal/models"
	"github.com/mmynk/grouporder/internal/storage"
)

const tokenBytes = 32

// Service generates and validates share tokens.
type Service struct {
	store   storage.ShareLinkStore
	nowFunc func() time.Time
}

// NewService returns a Service backed by store. A nil now uses time.Now.
func NewService(store storage.ShareLinkStore, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, nowFunc: now}
}

// Mint creates a new token and the link record for it without storing it,
// for callers that persist the link inside their own transaction.
func (s *Service) Mint(ttl time.Duration) (string, *models.ShareLink, error) {
	if ttl <= 0 {
		return "", nil, apperr.ErrInvalidInput.With("share link ttl must be positive")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.nowFunc()
	return token, &models.ShareLink{
		TokenHash: Digest(token),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// Resolve returns the group order a token points at. It does not extend
// the link's lifetime.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.ErrNotFound.With("share link not found")
	}

	link, err := s.store.GetShareLink(ctx, Digest(token))
	if errors.Is(err, storage.ErrNotFound) {
		return "", apperr.ErrNotFound.With("share link not found")
	}
	if err != nil {
		return "", err
	}

	if s.nowFunc().After(link.ExpiresAt) {
		return "", apperr.ErrExpiredLink
	}
	return link.GroupOrderID, nil
}

// Digest returns the hex BLAKE2b-256 digest under which a token is stored.
func Digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
