package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/metrics"
	"github.com/blackbelt-platform/core/internal/notify"
	"github.com/blackbelt-platform/core/internal/repository"
)

// Outcome is what evaluating one invitation did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeReminded
	OutcomeFailed
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReminded:
		return "reminded"
	case OutcomeFailed:
		return "failed"
	case OutcomeExpired:
		return "expired"
	default:
		return "none"
	}
}

const (
	triggerScheduled = "scheduled"
	triggerManual    = "manual"
)

type ReminderUsecase struct {
	invitations repository.InvitationRepository
	reminders   repository.ReminderRepository
	sender      notify.Sender
	appBaseURL  string
	logger      *slog.Logger
	now         func() time.Time
}

func NewReminderUsecase(
	invitations repository.InvitationRepository,
	reminders repository.ReminderRepository,
	sender notify.Sender,
	appBaseURL string,
	logger *slog.Logger,
) *ReminderUsecase {
	return &ReminderUsecase{
		invitations: invitations,
		reminders:   reminders,
		sender:      sender,
		appBaseURL:  appBaseURL,
		logger:      logger.With("component", "reminders"),
		now:         time.Now,
	}
}

// WithClock replaces the time source used by manual reminders.
func (u *ReminderUsecase) WithClock(now func() time.Time) *ReminderUsecase {
	u.now = now
	return u
}

// Process evaluates one invitation at now under its row lock: it expires the
// invitation, sends the due reminder, or does nothing. A dispatch failure is
// recorded as a failed reminder and reported as OutcomeFailed, not as an error.
func (u *ReminderUsecase) Process(ctx context.Context, invitationID string, now time.Time) (Outcome, error) {
	outcome := OutcomeNone
	err := u.invitations.WithLock(ctx, invitationID, func(ctx context.Context, tx repository.InvitationTx) error {
		inv := tx.Invitation()
		latest, err := tx.LatestReminder(ctx)
		if err != nil {
			return fmt.Errorf("latest reminder: %w", err)
		}

		plan := domain.PlanReminder(inv, latest, now)
		switch plan.Action {
		case domain.PlanExpire:
			inv.Status = domain.InvitationExpired
			inv.NextReminderAt = nil
			if err := tx.Update(ctx, inv); err != nil {
				return err
			}
			metrics.InvitationsExpiredTotal.Inc()
			outcome = OutcomeExpired
			return nil

		case domain.PlanRemind:
			rem, err := u.dispatch(ctx, tx, inv, latest, plan, now, triggerScheduled)
			if err != nil {
				return err
			}
			outcome = OutcomeReminded
			if !rem.Delivered() {
				outcome = OutcomeFailed
			}
			return nil

		default:
			// Keep next_reminder_at consistent with the reminder rows so the
			// invitation is not listed as due again.
			if !inv.Status.Open() {
				return nil
			}
			next := domain.NextReminderAt(inv.SentAt, latest)
			if sameTime(next, inv.NextReminderAt) {
				return nil
			}
			inv.NextReminderAt = next
			return tx.Update(ctx, inv)
		}
	})
	if err != nil {
		return OutcomeNone, err
	}
	return outcome, nil
}

// SendManualReminder sends the next reminder now regardless of cadence.
func (u *ReminderUsecase) SendManualReminder(ctx context.Context, tenantID, invitationID string) (*domain.Reminder, error) {
	// Tenant check outside the lock; WithLock is keyed by id only.
	if _, err := u.invitations.GetByID(ctx, tenantID, invitationID); err != nil {
		return nil, err
	}

	var sent *domain.Reminder
	err := u.invitations.WithLock(ctx, invitationID, func(ctx context.Context, tx repository.InvitationTx) error {
		now := u.now()
		inv := tx.Invitation()
		if !inv.Status.Open() || inv.PastExpiry(now) {
			return fmt.Errorf("%w: invitation is %s", domain.ErrInvalidState, displayStatus(inv, now))
		}

		latest, err := tx.LatestReminder(ctx)
		if err != nil {
			return fmt.Errorf("latest reminder: %w", err)
		}
		seq, retry, err := domain.NextManualSequence(latest)
		if err != nil {
			return err
		}

		plan := domain.ReminderPlan{Action: domain.PlanRemind, Sequence: seq, Retry: retry}
		sent, err = u.dispatch(ctx, tx, inv, latest, plan, now, triggerManual)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sent, nil
}

func (u *ReminderUsecase) ListReminders(ctx context.Context, tenantID, invitationID string) ([]*domain.Reminder, error) {
	if _, err := u.invitations.GetByID(ctx, tenantID, invitationID); err != nil {
		return nil, err
	}
	reminders, err := u.reminders.ListByInvitation(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return reminders, nil
}

func (u *ReminderUsecase) GetStatistics(ctx context.Context, tenantID, assessmentID string) (*domain.ReminderStatistics, error) {
	counts, err := u.invitations.Counts(ctx, tenantID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("count invitations: %w", err)
	}
	return domain.NewReminderStatistics(assessmentID, counts), nil
}

// dispatch sends reminder plan.Sequence and persists its outcome together
// with the invitation's new next_reminder_at. Only persistence errors are
// returned.
func (u *ReminderUsecase) dispatch(
	ctx context.Context,
	tx repository.InvitationTx,
	inv *domain.Invitation,
	latest *domain.Reminder,
	plan domain.ReminderPlan,
	now time.Time,
	trigger string,
) (*domain.Reminder, error) {
	rem := &domain.Reminder{
		InvitationID: inv.ID,
		Sequence:     plan.Sequence,
		Status:       domain.ReminderSent,
		Attempts:     1,
		SentAt:       now,
	}
	if plan.Retry && latest != nil && latest.Sequence == plan.Sequence {
		rem.Attempts = latest.Attempts + 1
	}

	msg := notify.Reminder(u.appBaseURL, inv.RespondentName, inv.ID, plan.Sequence)
	if err := u.sender.Send(ctx, inv.RespondentEmail, msg.Subject, msg.Body); err != nil {
		errMsg := fmt.Errorf("%w: %v", domain.ErrDispatchFailed, err).Error()
		rem.Status = domain.ReminderFailed
		rem.LastError = &errMsg
		u.logger.WarnContext(ctx, "reminder dispatch failed",
			"invitation_id", inv.ID,
			"sequence", plan.Sequence,
			"attempt", rem.Attempts,
			"trigger", trigger,
			"error", err,
		)
	}

	inv.NextReminderAt = domain.NextReminderAt(inv.SentAt, rem)
	rem.NextReminderAt = inv.NextReminderAt

	saved, err := tx.SaveReminder(ctx, rem)
	if err != nil {
		return nil, err
	}
	if err := tx.Update(ctx, inv); err != nil {
		return nil, err
	}

	metrics.RemindersTotal.WithLabelValues(trigger, string(rem.Status)).Inc()
	if rem.Delivered() {
		u.logger.InfoContext(ctx, "reminder sent",
			"invitation_id", inv.ID,
			"sequence", plan.Sequence,
			"trigger", trigger,
		)
	}
	return saved, nil
}

func displayStatus(inv *domain.Invitation, now time.Time) domain.InvitationStatus {
	if inv.Status.Open() && inv.PastExpiry(now) {
		return domain.InvitationExpired
	}
	return inv.Status
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
