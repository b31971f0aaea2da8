package repository

import (
	"context"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
)

type InvitationRepository interface {
	Create(ctx context.Context, inv *domain.Invitation) (*domain.Invitation, error)
	// GetByID is tenant-scoped: another tenant's invitation is reported as
	// domain.ErrInvitationNotFound.
	GetByID(ctx context.Context, tenantID, id string) (*domain.Invitation, error)
	ListByAssessment(ctx context.Context, tenantID, assessmentID string) ([]*domain.Invitation, error)

	// ListDue returns open invitations whose next reminder or expiry has been
	// reached at now, ordered by (DueAt, ID). With after set, only entries
	// strictly past that key are returned.
	ListDue(ctx context.Context, now time.Time, after *DueInvitation, limit int) ([]DueInvitation, error)

	Counts(ctx context.Context, tenantID, assessmentID string) (domain.InvitationCounts, error)

	// WithLock runs fn while holding an exclusive lock on the invitation row.
	// Everything fn writes through tx is committed atomically when fn returns
	// nil and discarded otherwise. Concurrent callers for the same id are
	// serialized. domain.ErrInvitationNotFound if the row does not exist.
	WithLock(ctx context.Context, id string, fn func(ctx context.Context, tx InvitationTx) error) error
}

// DueInvitation is one ListDue entry and doubles as the paging cursor.
type DueInvitation struct {
	ID    string
	DueAt time.Time
}

// InvitationTx is the view of one locked invitation.
type InvitationTx interface {
	// Invitation is the row as read under the lock.
	Invitation() *domain.Invitation
	// LatestReminder returns the highest-sequence reminder, or nil.
	LatestReminder(ctx context.Context) (*domain.Reminder, error)
	// SaveReminder inserts the reminder or, if its sequence already exists,
	// overwrites the outcome fields of that row.
	SaveReminder(ctx context.Context, r *domain.Reminder) (*domain.Reminder, error)
	// Update writes status, viewed/completed timestamps and next reminder time.
	Update(ctx context.Context, inv *domain.Invitation) error
}
