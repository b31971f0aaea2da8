package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/infrastructure/memory"
	"github.com/blackbelt-platform/core/internal/usecase"
)

const (
	day        = 24 * time.Hour
	tenantA    = "tenant-a"
	tenantB    = "tenant-b"
	assessment = "assessment-1"
)

type reminderFixture struct {
	store       *memory.Store
	sender      *fakeSender
	clock       *clock
	invitations *usecase.InvitationUsecase
	reminders   *usecase.ReminderUsecase
}

func newReminderFixture() *reminderFixture {
	store := memory.New()
	sender := &fakeSender{}
	clk := newClock()
	return &reminderFixture{
		store:  store,
		sender: sender,
		clock:  clk,
		invitations: usecase.NewInvitationUsecase(store.Invitations(), sender, testBaseURL, discardLogger()).
			WithClock(clk.Now),
		reminders: usecase.NewReminderUsecase(store.Invitations(), store.Reminders(), sender, testBaseURL, discardLogger()).
			WithClock(clk.Now),
	}
}

func (f *reminderFixture) invite(t *testing.T, tenantID string, n int) []*domain.Invitation {
	t.Helper()
	respondents := make([]usecase.Respondent, n)
	for i := range respondents {
		respondents[i] = usecase.Respondent{Name: "Resp", Email: "resp@example.com", Position: "Analyst"}
	}
	invs, err := f.invitations.Invite(context.Background(), tenantID, assessment, respondents)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	return invs
}

func (f *reminderFixture) process(t *testing.T, id string, at time.Time) usecase.Outcome {
	t.Helper()
	out, err := f.reminders.Process(context.Background(), id, at)
	if err != nil {
		t.Fatalf("process at %s: %v", at, err)
	}
	return out
}

func (f *reminderFixture) rows(t *testing.T, id string) []*domain.Reminder {
	t.Helper()
	rows, err := f.store.Reminders().ListByInvitation(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func (f *reminderFixture) invitation(t *testing.T, tenantID, id string) *domain.Invitation {
	t.Helper()
	inv, err := f.store.Invitations().GetByID(context.Background(), tenantID, id)
	if err != nil {
		t.Fatal(err)
	}
	return inv
}

// ---- cadence scenario ----

func TestProcess_FullCadence(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]
	sent := inv.SentAt

	steps := []struct {
		at       time.Duration
		want     usecase.Outcome
		rows     int
		nextDays int // 0 means nil
	}{
		{2 * day, usecase.OutcomeReminded, 1, 5},
		{5 * day, usecase.OutcomeReminded, 2, 9},
		{9 * day, usecase.OutcomeReminded, 3, 0},
		{14 * day, usecase.OutcomeExpired, 3, 0},
	}
	for _, s := range steps {
		if got := f.process(t, inv.ID, sent.Add(s.at)); got != s.want {
			t.Fatalf("day %d: outcome = %s, want %s", s.at/day, got, s.want)
		}
		rows := f.rows(t, inv.ID)
		if len(rows) != s.rows {
			t.Fatalf("day %d: %d reminders, want %d", s.at/day, len(rows), s.rows)
		}
		if rows[len(rows)-1].Sequence != s.rows {
			t.Errorf("day %d: latest sequence = %d, want %d", s.at/day, rows[len(rows)-1].Sequence, s.rows)
		}

		got := f.invitation(t, tenantA, inv.ID).NextReminderAt
		switch {
		case s.nextDays == 0 && got != nil:
			t.Errorf("day %d: next_reminder_at = %v, want nil", s.at/day, *got)
		case s.nextDays != 0 && (got == nil || !got.Equal(sent.Add(time.Duration(s.nextDays)*day))):
			t.Errorf("day %d: next_reminder_at = %v, want day %d", s.at/day, got, s.nextDays)
		}
	}

	if st := f.invitation(t, tenantA, inv.ID).Status; st != domain.InvitationExpired {
		t.Fatalf("status = %s, want expired", st)
	}

	f.clock.Advance(14 * day)
	_, err := f.reminders.SendManualReminder(context.Background(), tenantA, inv.ID)
	if !errors.Is(err, domain.ErrInvalidState) && !errors.Is(err, domain.ErrReminderLimitExceeded) {
		t.Fatalf("manual after expiry: want ErrInvalidState or ErrReminderLimitExceeded, got %v", err)
	}
	if n := len(f.rows(t, inv.ID)); n != 3 {
		t.Errorf("reminders = %d, want 3", n)
	}
}

func TestProcess_IdempotentForSameNow(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]
	at := inv.SentAt.Add(2 * day)

	f.process(t, inv.ID, at)
	if got := f.process(t, inv.ID, at); got != usecase.OutcomeNone {
		t.Errorf("second pass outcome = %s, want none", got)
	}

	rows := f.rows(t, inv.ID)
	if len(rows) != 1 || rows[0].Sequence != 1 {
		t.Fatalf("reminders = %+v, want exactly one with sequence 1", rows)
	}
}

func TestProcess_BeforeFirstThreshold(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]

	if got := f.process(t, inv.ID, inv.SentAt.Add(2*day-time.Second)); got != usecase.OutcomeNone {
		t.Errorf("outcome = %s, want none", got)
	}
	if n := len(f.rows(t, inv.ID)); n != 0 {
		t.Errorf("reminders = %d, want 0", n)
	}
}

func TestProcess_MissedThresholdsCollapse(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]

	f.process(t, inv.ID, inv.SentAt.Add(6*day))

	rows := f.rows(t, inv.ID)
	if len(rows) != 1 || rows[0].Sequence != 2 {
		t.Fatalf("reminders = %+v, want one with sequence 2", rows)
	}
	next := f.invitation(t, tenantA, inv.ID).NextReminderAt
	if next == nil || !next.Equal(inv.SentAt.Add(9*day)) {
		t.Errorf("next_reminder_at = %v, want day 9", next)
	}
}

func TestProcess_FailedDispatchRetriedWithoutCountingTowardCap(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]
	f.sender.fail(errors.New("mailbox unavailable"))

	at := inv.SentAt.Add(2 * day)
	if got := f.process(t, inv.ID, at); got != usecase.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", got)
	}
	rows := f.rows(t, inv.ID)
	if len(rows) != 1 || rows[0].Status != domain.ReminderFailed || rows[0].LastError == nil {
		t.Fatalf("reminders = %+v, want one failed row with an error", rows)
	}

	// Still due: next_reminder_at points at the failed threshold.
	due, _ := f.store.Invitations().ListDue(context.Background(), at.Add(time.Hour), nil, 10)
	if len(due) != 1 {
		t.Fatalf("due = %v, want the invitation listed", due)
	}

	f.sender.fail(nil)
	if got := f.process(t, inv.ID, at.Add(time.Hour)); got != usecase.OutcomeReminded {
		t.Fatalf("retry outcome = %s, want reminded", got)
	}
	rows = f.rows(t, inv.ID)
	if len(rows) != 1 || rows[0].Status != domain.ReminderSent || rows[0].Attempts != 2 {
		t.Fatalf("reminders = %+v, want the same row sent on attempt 2", rows)
	}

	// The cap still allows reminders 2 and 3.
	f.process(t, inv.ID, inv.SentAt.Add(5*day))
	f.process(t, inv.ID, inv.SentAt.Add(9*day))
	if n := len(f.rows(t, inv.ID)); n != 3 {
		t.Errorf("reminders = %d, want 3", n)
	}
}

func TestProcess_CompletedInvitationGetsNothing(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]

	if _, err := f.invitations.MarkCompleted(context.Background(), tenantA, inv.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.process(t, inv.ID, inv.SentAt.Add(20*day)); got != usecase.OutcomeNone {
		t.Errorf("outcome = %s, want none", got)
	}
	if st := f.invitation(t, tenantA, inv.ID).Status; st != domain.InvitationCompleted {
		t.Errorf("status = %s, completed must never revert", st)
	}
}

// ---- manual reminders ----

func TestSendManualReminder_SequenceAndCap(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]

	for want := 1; want <= domain.MaxReminders; want++ {
		rem, err := f.reminders.SendManualReminder(context.Background(), tenantA, inv.ID)
		if err != nil {
			t.Fatalf("manual %d: %v", want, err)
		}
		if rem.Sequence != want {
			t.Errorf("sequence = %d, want %d", rem.Sequence, want)
		}
	}

	_, err := f.reminders.SendManualReminder(context.Background(), tenantA, inv.ID)
	if !errors.Is(err, domain.ErrReminderLimitExceeded) {
		t.Fatalf("fourth manual: want ErrReminderLimitExceeded, got %v", err)
	}
}

func TestSendManualReminder_ThenScheduledDoesNotRepeat(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]

	f.clock.Advance(day)
	if _, err := f.reminders.SendManualReminder(context.Background(), tenantA, inv.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.process(t, inv.ID, inv.SentAt.Add(2*day)); got != usecase.OutcomeNone {
		t.Errorf("scheduled outcome = %s, want none (sequence 1 already sent)", got)
	}
	if got := f.process(t, inv.ID, inv.SentAt.Add(5*day)); got != usecase.OutcomeReminded {
		t.Errorf("scheduled outcome = %s, want reminded", got)
	}
	if n := len(f.rows(t, inv.ID)); n != 2 {
		t.Errorf("reminders = %d, want 2", n)
	}
}

func TestSendManualReminder_InvalidStates(t *testing.T) {
	f := newReminderFixture()
	invs := f.invite(t, tenantA, 2)

	if _, err := f.invitations.MarkCompleted(context.Background(), tenantA, invs[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reminders.SendManualReminder(context.Background(), tenantA, invs[0].ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("completed: want ErrInvalidState, got %v", err)
	}

	// Past expiry but not yet swept by a pass.
	f.clock.Advance(15 * day)
	if _, err := f.reminders.SendManualReminder(context.Background(), tenantA, invs[1].ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("past expiry: want ErrInvalidState, got %v", err)
	}
}

func TestSendManualReminder_OtherTenant(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]

	if _, err := f.reminders.SendManualReminder(context.Background(), tenantB, inv.ID); !errors.Is(err, domain.ErrInvitationNotFound) {
		t.Errorf("want ErrInvitationNotFound, got %v", err)
	}
	if _, err := f.reminders.ListReminders(context.Background(), tenantB, inv.ID); !errors.Is(err, domain.ErrInvitationNotFound) {
		t.Errorf("list: want ErrInvitationNotFound, got %v", err)
	}
}

func TestSendManualReminder_RacingScheduledPassFiresOnce(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]
	f.clock.Advance(2 * day)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.reminders.SendManualReminder(context.Background(), tenantA, inv.ID)
	}()
	go func() {
		defer wg.Done()
		_, _ = f.reminders.Process(context.Background(), inv.ID, inv.SentAt.Add(2*day))
	}()
	wg.Wait()

	// Either order leaves sequence 1 exactly once; a manual send that wins
	// the lock first may be followed by nothing, or precede sequence 2.
	seen := map[int]int{}
	for _, r := range f.rows(t, inv.ID) {
		seen[r.Sequence]++
	}
	for seq, n := range seen {
		if n != 1 {
			t.Errorf("sequence %d stored %d times", seq, n)
		}
	}
	if seen[1] != 1 {
		t.Errorf("sequence 1 not stored")
	}
}

// ---- statistics ----

func TestGetStatistics_ResponseRate(t *testing.T) {
	f := newReminderFixture()
	invs := f.invite(t, tenantA, 10)
	for _, inv := range invs[:4] {
		if _, err := f.invitations.MarkCompleted(context.Background(), tenantA, inv.ID); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.invitations.MarkViewed(context.Background(), tenantA, invs[4].ID); err != nil {
		t.Fatal(err)
	}
	for _, inv := range invs[4:7] {
		f.process(t, inv.ID, inv.SentAt.Add(2*day))
	}

	stats, err := f.reminders.GetStatistics(context.Background(), tenantA, assessment)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalInvites != 10 || stats.CompletedInvites != 4 || stats.PendingInvites != 6 {
		t.Errorf("counts = %d/%d/%d, want 10/4/6", stats.TotalInvites, stats.CompletedInvites, stats.PendingInvites)
	}
	if stats.ResponseRate != 40 {
		t.Errorf("response rate = %v, want 40", stats.ResponseRate)
	}
	if stats.TotalReminders != 3 {
		t.Errorf("total reminders = %d, want 3", stats.TotalReminders)
	}
	if stats.AverageRemindersPerInvite != 0.3 {
		t.Errorf("average = %v, want 0.3", stats.AverageRemindersPerInvite)
	}

	other, err := f.reminders.GetStatistics(context.Background(), tenantB, assessment)
	if err != nil {
		t.Fatal(err)
	}
	if other.TotalInvites != 0 || other.ResponseRate != 0 || other.AverageRemindersPerInvite != 0 {
		t.Errorf("other tenant sees %+v, want empty", other)
	}
}

// ---- invitations ----

func TestInvite_SetsCadenceFields(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]

	if inv.Status != domain.InvitationPending {
		t.Errorf("status = %s, want pending", inv.Status)
	}
	if !inv.ExpiresAt.Equal(inv.SentAt.Add(14 * day)) {
		t.Errorf("expires_at = %v, want sent_at + 14d", inv.ExpiresAt)
	}
	if inv.NextReminderAt == nil || !inv.NextReminderAt.Equal(inv.SentAt.Add(2*day)) {
		t.Errorf("next_reminder_at = %v, want sent_at + 2d", inv.NextReminderAt)
	}
	if n := f.sender.count(); n != 1 {
		t.Errorf("sent %d emails, want 1", n)
	}
}

func TestInvite_Validation(t *testing.T) {
	f := newReminderFixture()

	_, err := f.invitations.Invite(context.Background(), tenantA, assessment, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("no respondents: want ErrValidation, got %v", err)
	}
	_, err = f.invitations.Invite(context.Background(), tenantA, assessment, []usecase.Respondent{{Name: "X", Email: "bad"}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad email: want ErrValidation, got %v", err)
	}
}

func TestTransitions_AreMonotonic(t *testing.T) {
	f := newReminderFixture()
	inv := f.invite(t, tenantA, 1)[0]
	ctx := context.Background()

	if _, err := f.invitations.MarkViewed(ctx, tenantA, inv.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.invitations.MarkViewed(ctx, tenantA, inv.ID); err != nil {
		t.Errorf("viewing twice should be a no-op, got %v", err)
	}
	done, err := f.invitations.MarkCompleted(ctx, tenantA, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.CompletedAt == nil || done.NextReminderAt != nil {
		t.Errorf("completed invitation = %+v, want completed_at set and no next reminder", done)
	}
	if _, err := f.invitations.MarkViewed(ctx, tenantA, inv.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("completed -> viewed: want ErrInvalidState, got %v", err)
	}
	if _, err := f.invitations.MarkCompleted(ctx, tenantB, inv.ID); !errors.Is(err, domain.ErrInvitationNotFound) {
		t.Errorf("other tenant: want ErrInvitationNotFound, got %v", err)
	}
}
