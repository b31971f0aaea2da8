package repository

import (
	"context"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
)

// TokenRepository persists credentials keyed by the fingerprint of their
// bearer value. It is the single source of truth for revocation and expiry.
type TokenRepository interface {
	// Create stores a new token. For single-use purposes it atomically revokes
	// any other active token of the same purpose for the user, so a user holds
	// at most one active token per single-use purpose.
	Create(ctx context.Context, token *domain.Token) (*domain.Token, error)

	// FindByHash returns the token in any state, or domain.ErrTokenNotFound.
	FindByHash(ctx context.Context, tokenHash string) (*domain.Token, error)

	// Consume atomically moves an issued token of the given purpose to consumed.
	// Returns domain.ErrTokenExpired if it exists, is unused and past expiry,
	// domain.ErrTokenNotFound for anything else.
	Consume(ctx context.Context, tokenHash string, purpose domain.TokenPurpose, now time.Time) (*domain.Token, error)

	// Revoke revokes one active token. domain.ErrTokenNotFound if none.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeAllForUser revokes every unexpired, unused token of purpose held by userID.
	RevokeAllForUser(ctx context.Context, userID string, purpose domain.TokenPurpose, now time.Time) (int, error)

	// DeleteExpired removes up to limit tokens that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
