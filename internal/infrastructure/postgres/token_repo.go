package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tokenColumns = `id, user_id, token_hash, purpose, issued_at, expires_at, consumed_at, revoked_at`

type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Create(ctx context.Context, t *domain.Token) (*domain.Token, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.Purpose.SingleUse() {
		// Serialize single-use issuance per user so two concurrent requests
		// cannot both leave an active token behind.
		if _, err = tx.Exec(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, t.UserID); err != nil {
			return nil, fmt.Errorf("lock user: %w", err)
		}
		if _, err = tx.Exec(ctx, `
			UPDATE auth_tokens SET revoked_at = $3
			WHERE user_id = $1 AND purpose = $2
			  AND consumed_at IS NULL AND revoked_at IS NULL`,
			t.UserID, t.Purpose, t.IssuedAt,
		); err != nil {
			return nil, fmt.Errorf("revoke previous tokens: %w", err)
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO auth_tokens (user_id, token_hash, purpose, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+tokenColumns,
		t.UserID, t.TokenHash, t.Purpose, t.IssuedAt, t.ExpiresAt,
	)
	created, err := scanToken(row)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*domain.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM auth_tokens WHERE token_hash = $1`
	return scanToken(r.pool.QueryRow(ctx, query, hash))
}

// Consume claims the token with a single conditional UPDATE, so two
// concurrent consumers cannot both succeed.
func (r *TokenRepository) Consume(ctx context.Context, hash string, purpose domain.TokenPurpose, now time.Time) (*domain.Token, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE auth_tokens SET consumed_at = $3
		WHERE token_hash = $1 AND purpose = $2
		  AND consumed_at IS NULL AND revoked_at IS NULL
		  AND expires_at > $3
		RETURNING `+tokenColumns,
		hash, purpose, now,
	)
	t, err := scanToken(row)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, domain.ErrTokenNotFound) {
		return nil, fmt.Errorf("consume token: %w", err)
	}

	// Distinguish expired from absent/used.
	existing, findErr := r.FindByHash(ctx, hash)
	if findErr != nil {
		return nil, findErr
	}
	if existing.Purpose == purpose && existing.State(now) == domain.TokenExpired {
		return nil, domain.ErrTokenExpired
	}
	return nil, domain.ErrTokenNotFound
}

func (r *TokenRepository) Revoke(ctx context.Context, hash string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE auth_tokens SET revoked_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL AND revoked_at IS NULL`,
		hash, now)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string, purpose domain.TokenPurpose, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE auth_tokens SET revoked_at = $3
		WHERE user_id = $1 AND purpose = $2
		  AND consumed_at IS NULL AND revoked_at IS NULL
		  AND expires_at > $3`,
		userID, purpose, now)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *TokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM auth_tokens
		WHERE id IN (
			SELECT id FROM auth_tokens
			WHERE  expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var t domain.Token
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.Purpose,
		&t.IssuedAt, &t.ExpiresAt, &t.ConsumedAt, &t.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return &t, nil
}
