package domain

import (
	"time"
)

const (
	day = 24 * time.Hour

	MaxReminders = 3
	ExpiryWindow = 14 * day
)

// reminderOffsets[i] is the delay after SentAt at which reminder i+1 is due.
var reminderOffsets = [MaxReminders]time.Duration{2 * day, 5 * day, 9 * day}

// ReminderDueAt returns when reminder seq (1-based) falls due.
func ReminderDueAt(sentAt time.Time, seq int) time.Time {
	return sentAt.Add(reminderOffsets[seq-1])
}

// CrossedThresholds returns the highest reminder sequence whose due time
// now has reached, or 0 if none.
func CrossedThresholds(sentAt, now time.Time) int {
	k := 0
	for i := range reminderOffsets {
		if !now.Before(sentAt.Add(reminderOffsets[i])) {
			k = i + 1
		}
	}
	return k
}

// NextReminderAt returns the due time of the next unfired sequence given the
// latest reminder row (nil if none). A failed latest row is still unfired.
// Returns nil once the sequence is exhausted.
func NextReminderAt(sentAt time.Time, latest *Reminder) *time.Time {
	next := 1
	if latest != nil {
		next = latest.Sequence
		if latest.Delivered() {
			next++
		}
	}
	if next > MaxReminders {
		return nil
	}
	at := ReminderDueAt(sentAt, next)
	return &at
}

type PlanAction int

const (
	PlanNone PlanAction = iota
	PlanExpire
	PlanRemind
)

func (a PlanAction) String() string {
	switch a {
	case PlanExpire:
		return "expire"
	case PlanRemind:
		return "remind"
	default:
		return "none"
	}
}

type ReminderPlan struct {
	Action   PlanAction
	Sequence int
	// Retry is set when Sequence already has a failed row to be re-attempted.
	Retry bool
}

// PlanReminder decides what a scheduled pass does with one invitation at now.
// latest is the invitation's highest-sequence reminder, or nil.
//
// When several thresholds were crossed since the last pass they collapse into
// one reminder carrying the highest crossed sequence.
func PlanReminder(inv *Invitation, latest *Reminder, now time.Time) ReminderPlan {
	if !inv.Status.Open() {
		return ReminderPlan{Action: PlanNone}
	}
	if inv.PastExpiry(now) {
		return ReminderPlan{Action: PlanExpire}
	}

	k := CrossedThresholds(inv.SentAt, now)
	switch {
	case k == 0:
		return ReminderPlan{Action: PlanNone}
	case latest == nil || k > latest.Sequence:
		return ReminderPlan{Action: PlanRemind, Sequence: k}
	case k == latest.Sequence && !latest.Delivered():
		return ReminderPlan{Action: PlanRemind, Sequence: k, Retry: true}
	default:
		return ReminderPlan{Action: PlanNone}
	}
}

// NextManualSequence picks the sequence for an out-of-cadence reminder.
func NextManualSequence(latest *Reminder) (seq int, retry bool, err error) {
	switch {
	case latest == nil:
		return 1, false, nil
	case !latest.Delivered():
		return latest.Sequence, true, nil
	case latest.Sequence >= MaxReminders:
		return 0, false, ErrReminderLimitExceeded
	default:
		return latest.Sequence + 1, false, nil
	}
}
