package domain

import (
	"time"
)

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationViewed    InvitationStatus = "viewed"
	InvitationCompleted InvitationStatus = "completed"
	InvitationExpired   InvitationStatus = "expired"
)

// Open reports whether the invitation can still receive reminders or transitions.
func (s InvitationStatus) Open() bool {
	return s == InvitationPending || s == InvitationViewed
}

// Invitation assigns one COPSOQ-II assessment to one respondent.
type Invitation struct {
	ID                 string
	TenantID           string
	AssessmentID       string
	RespondentName     string
	RespondentEmail    string
	RespondentPosition string

	Status         InvitationStatus
	SentAt         time.Time
	ViewedAt       *time.Time
	CompletedAt    *time.Time
	ExpiresAt      time.Time
	NextReminderAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransition enforces monotonic status changes:
// pending -> viewed -> completed, and any open state -> expired.
func (inv *Invitation) CanTransition(to InvitationStatus) bool {
	switch inv.Status {
	case InvitationPending:
		return to == InvitationViewed || to == InvitationCompleted || to == InvitationExpired
	case InvitationViewed:
		return to == InvitationCompleted || to == InvitationExpired
	default:
		return false
	}
}

// PastExpiry reports whether now has reached the invitation's expiry.
func (inv *Invitation) PastExpiry(now time.Time) bool {
	return !now.Before(inv.ExpiresAt)
}

type ReminderStatus string

const (
	ReminderSent    ReminderStatus = "sent"
	ReminderFailed  ReminderStatus = "failed"
	ReminderBounced ReminderStatus = "bounced"
)

// Reminder records a notification for one cadence sequence of an invitation.
// A failed reminder is retried in place, so (InvitationID, Sequence) is unique.
type Reminder struct {
	ID             string
	InvitationID   string
	Sequence       int
	Status         ReminderStatus
	Attempts       int
	LastError      *string
	SentAt         time.Time
	NextReminderAt *time.Time
	CreatedAt      time.Time
}

// Delivered reports whether the reminder counts toward the cap.
func (r *Reminder) Delivered() bool {
	return r.Status != ReminderFailed
}

// InvitationCounts is the raw aggregate a store returns for one assessment.
type InvitationCounts struct {
	Total           int
	Pending         int
	Viewed          int
	Completed       int
	Expired         int
	TotalReminders  int
	FailedReminders int
}

type ReminderStatistics struct {
	AssessmentID              string  `json:"assessment_id"`
	TotalInvites              int     `json:"total_invites"`
	CompletedInvites          int     `json:"completed_invites"`
	PendingInvites            int     `json:"pending_invites"`
	ViewedInvites             int     `json:"viewed_invites"`
	ExpiredInvites            int     `json:"expired_invites"`
	ResponseRate              float64 `json:"response_rate"`
	TotalReminders            int     `json:"total_reminders"`
	FailedReminders           int     `json:"failed_reminders"`
	AverageRemindersPerInvite float64 `json:"average_reminders_per_invite"`
}

// NewReminderStatistics derives rates from raw counts. Pending covers both
// pending and viewed invitations.
func NewReminderStatistics(assessmentID string, c InvitationCounts) *ReminderStatistics {
	s := &ReminderStatistics{
		AssessmentID:     assessmentID,
		TotalInvites:     c.Total,
		CompletedInvites: c.Completed,
		PendingInvites:   c.Pending + c.Viewed,
		ViewedInvites:    c.Viewed,
		ExpiredInvites:   c.Expired,
		TotalReminders:   c.TotalReminders,
		FailedReminders:  c.FailedReminders,
	}
	if c.Total > 0 {
		s.ResponseRate = float64(c.Completed) / float64(c.Total) * 100
		s.AverageRemindersPerInvite = float64(c.TotalReminders) / float64(c.Total)
	}
	return s
}
