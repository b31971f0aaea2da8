package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, tenant_id, email, name, password_hash, email_verified,
		       role, deactivated_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (tenant_id, email, name, password_hash, email_verified, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query,
		u.TenantID, strings.ToLower(u.Email), u.Name, u.PasswordHash, u.EmailVerified, u.Role,
	)

	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, hash string) error {
	return r.exec(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.exec(ctx, "mark email verified",
		`UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`, userID)
}

func (r *UserRepository) SetRole(ctx context.Context, userID string, role domain.Role) error {
	return r.exec(ctx, "set role",
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, role)
}

func (r *UserRepository) Deactivate(ctx context.Context, userID string, at time.Time) error {
	return r.exec(ctx, "deactivate user",
		`UPDATE users SET deactivated_at = COALESCE(deactivated_at, $2), updated_at = NOW()
		 WHERE id = $1`, userID, at)
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if isInvalidText(err) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailVerified,
		&u.Role, &u.DeactivatedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
