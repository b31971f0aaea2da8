package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/notify"
	"github.com/blackbelt-platform/core/internal/repository"
)

// Respondent is one person to invite to an assessment.
type Respondent struct {
	Name     string `validate:"required,max=200"`
	Email    string `validate:"required,email,max=254"`
	Position string `validate:"max=200"`
}

type InvitationUsecase struct {
	invitations repository.InvitationRepository
	sender      notify.Sender
	appBaseURL  string
	logger      *slog.Logger
	now         func() time.Time
}

func NewInvitationUsecase(
	invitations repository.InvitationRepository,
	sender notify.Sender,
	appBaseURL string,
	logger *slog.Logger,
) *InvitationUsecase {
	return &InvitationUsecase{
		invitations: invitations,
		sender:      sender,
		appBaseURL:  appBaseURL,
		logger:      logger.With("component", "invitations"),
		now:         time.Now,
	}
}

func (u *InvitationUsecase) WithClock(now func() time.Time) *InvitationUsecase {
	u.now = now
	return u
}

// Invite creates one invitation per respondent and emails each of them. A
// failed email is logged; the invitation stays and the cadence will remind.
func (u *InvitationUsecase) Invite(ctx context.Context, tenantID, assessmentID string, respondents []Respondent) ([]*domain.Invitation, error) {
	if strings.TrimSpace(assessmentID) == "" {
		return nil, domain.Validationf("assessment id is required")
	}
	if len(respondents) == 0 {
		return nil, domain.Validationf("at least one respondent is required")
	}
	for i := range respondents {
		respondents[i].Email = normalizeEmail(respondents[i].Email)
		respondents[i].Name = strings.TrimSpace(respondents[i].Name)
		if err := validate.Struct(respondents[i]); err != nil {
			return nil, domain.Validationf("respondent %d: %v", i, err)
		}
	}

	now := u.now()
	firstReminder := domain.ReminderDueAt(now, 1)

	created := make([]*domain.Invitation, 0, len(respondents))
	for _, r := range respondents {
		next := firstReminder
		inv, err := u.invitations.Create(ctx, &domain.Invitation{
			TenantID:           tenantID,
			AssessmentID:       assessmentID,
			RespondentName:     r.Name,
			RespondentEmail:    r.Email,
			RespondentPosition: r.Position,
			Status:             domain.InvitationPending,
			SentAt:             now,
			ExpiresAt:          now.Add(domain.ExpiryWindow),
			NextReminderAt:     &next,
		})
		if err != nil {
			return created, fmt.Errorf("create invitation: %w", err)
		}

		msg := notify.Invitation(u.appBaseURL, inv.RespondentName, inv.ID)
		if err := u.sender.Send(ctx, inv.RespondentEmail, msg.Subject, msg.Body); err != nil {
			u.logger.WarnContext(ctx, "invitation email not sent", "invitation_id", inv.ID, "error", err)
		}
		created = append(created, inv)
	}

	u.logger.InfoContext(ctx, "invitations created", "assessment_id", assessmentID, "count", len(created))
	return created, nil
}

func (u *InvitationUsecase) List(ctx context.Context, tenantID, assessmentID string) ([]*domain.Invitation, error) {
	invitations, err := u.invitations.ListByAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

func (u *InvitationUsecase) MarkViewed(ctx context.Context, tenantID, invitationID string) (*domain.Invitation, error) {
	return u.transition(ctx, tenantID, invitationID, domain.InvitationViewed)
}

// MarkCompleted stops the cadence for the invitation.
func (u *InvitationUsecase) MarkCompleted(ctx context.Context, tenantID, invitationID string) (*domain.Invitation, error) {
	return u.transition(ctx, tenantID, invitationID, domain.InvitationCompleted)
}

func (u *InvitationUsecase) transition(ctx context.Context, tenantID, invitationID string, to domain.InvitationStatus) (*domain.Invitation, error) {
	if _, err := u.invitations.GetByID(ctx, tenantID, invitationID); err != nil {
		return nil, err
	}

	var updated *domain.Invitation
	err := u.invitations.WithLock(ctx, invitationID, func(ctx context.Context, tx repository.InvitationTx) error {
		now := u.now()
		inv := tx.Invitation()

		// Viewing again is a no-op, not a conflict.
		if inv.Status == to && to == domain.InvitationViewed {
			updated = inv
			return nil
		}
		if inv.PastExpiry(now) || !inv.CanTransition(to) {
			return fmt.Errorf("%w: cannot move invitation from %s to %s", domain.ErrInvalidState, displayStatus(inv, now), to)
		}

		inv.Status = to
		switch to {
		case domain.InvitationViewed:
			inv.ViewedAt = &now
		case domain.InvitationCompleted:
			if inv.ViewedAt == nil {
				inv.ViewedAt = &now
			}
			inv.CompletedAt = &now
			inv.NextReminderAt = nil
		}
		if err := tx.Update(ctx, inv); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
