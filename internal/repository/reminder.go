package repository

import (
	"context"

	"github.com/blackbelt-platform/core/internal/domain"
)

type ReminderRepository interface {
	// ListByInvitation returns reminders ordered by sequence ASC.
	// Ownership is assumed to have been verified by the caller.
	ListByInvitation(ctx context.Context, invitationID string) ([]*domain.Reminder, error)
}
