package repository

import (
	"context"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
)

type UserRepository interface {
	// Create inserts a new user. Returns domain.ErrEmailTaken when the
	// lower-cased email already exists.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	SetRole(ctx context.Context, userID string, role domain.Role) error
	// Deactivate is a soft delete; the row is kept.
	Deactivate(ctx context.Context, userID string, at time.Time) error
}
