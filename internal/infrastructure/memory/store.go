// Package memory implements the repository interfaces on process-local maps.
// It backs use-case and scheduler tests; production always runs on Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu          sync.Mutex
	users       map[string]*domain.User
	tokens      map[string]*domain.Token // keyed by hash
	invitations map[string]*domain.Invitation
	reminders   map[string][]*domain.Reminder // keyed by invitation id, sequence ASC
	rowLocks    map[string]*sync.Mutex
}

func New() *Store {
	return &Store{
		users:       make(map[string]*domain.User),
		tokens:      make(map[string]*domain.Token),
		invitations: make(map[string]*domain.Invitation),
		reminders:   make(map[string][]*domain.Reminder),
		rowLocks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) Users() *UserRepository             { return &UserRepository{s: s} }
func (s *Store) Tokens() *TokenRepository           { return &TokenRepository{s: s} }
func (s *Store) Invitations() *InvitationRepository { return &InvitationRepository{s: s} }
func (s *Store) Reminders() *ReminderRepository     { return &ReminderRepository{s: s} }

var (
	_ repository.UserRepository       = (*UserRepository)(nil)
	_ repository.TokenRepository      = (*TokenRepository)(nil)
	_ repository.InvitationRepository = (*InvitationRepository)(nil)
	_ repository.ReminderRepository   = (*ReminderRepository)(nil)
)

// ---- users ----

type UserRepository struct{ s *Store }

func (r *UserRepository) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(u.Email)
	for _, existing := range r.s.users {
		if existing.Email == email {
			return nil, domain.ErrEmailTaken
		}
	}

	now := time.Now()
	c := *u
	c.ID = uuid.NewString()
	c.Email = email
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.users[c.ID] = &c
	out := c
	return &out, nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) UpdatePassword(_ context.Context, userID, hash string) error {
	return r.update(userID, func(u *domain.User) { u.PasswordHash = hash })
}

func (r *UserRepository) MarkEmailVerified(_ context.Context, userID string) error {
	return r.update(userID, func(u *domain.User) { u.EmailVerified = true })
}

func (r *UserRepository) SetRole(_ context.Context, userID string, role domain.Role) error {
	return r.update(userID, func(u *domain.User) { u.Role = role })
}

func (r *UserRepository) Deactivate(_ context.Context, userID string, at time.Time) error {
	return r.update(userID, func(u *domain.User) {
		if u.DeactivatedAt == nil {
			u.DeactivatedAt = &at
		}
	})
}

func (r *UserRepository) update(userID string, fn func(*domain.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

// ---- tokens ----

type TokenRepository struct{ s *Store }

func (r *TokenRepository) Create(_ context.Context, t *domain.Token) (*domain.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if t.Purpose.SingleUse() {
		for _, existing := range r.s.tokens {
			if existing.UserID == t.UserID && existing.Purpose == t.Purpose &&
				existing.State(t.IssuedAt) == domain.TokenIssued {
				revokedAt := t.IssuedAt
				existing.RevokedAt = &revokedAt
			}
		}
	}

	c := *t
	c.ID = uuid.NewString()
	r.s.tokens[c.TokenHash] = &c
	out := c
	return &out, nil
}

func (r *TokenRepository) FindByHash(_ context.Context, hash string) (*domain.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[hash]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	c := *t
	return &c, nil
}

func (r *TokenRepository) Consume(_ context.Context, hash string, purpose domain.TokenPurpose, now time.Time) (*domain.Token, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[hash]
	if !ok || t.Purpose != purpose {
		return nil, domain.ErrTokenNotFound
	}
	switch t.State(now) {
	case domain.TokenIssued:
	case domain.TokenExpired:
		return nil, domain.ErrTokenExpired
	default:
		return nil, domain.ErrTokenNotFound
	}

	consumedAt := now
	t.ConsumedAt = &consumedAt
	c := *t
	return &c, nil
}

func (r *TokenRepository) Revoke(_ context.Context, hash string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tokens[hash]
	if !ok || t.ConsumedAt != nil || t.RevokedAt != nil {
		return domain.ErrTokenNotFound
	}
	revokedAt := now
	t.RevokedAt = &revokedAt
	return nil
}

func (r *TokenRepository) RevokeAllForUser(_ context.Context, userID string, purpose domain.TokenPurpose, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.Purpose == purpose && t.State(now) == domain.TokenIssued {
			revokedAt := now
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (r *TokenRepository) DeleteExpired(_ context.Context, cutoff time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for hash, t := range r.s.tokens {
		if n >= limit {
			break
		}
		if t.ExpiresAt.Before(cutoff) {
			delete(r.s.tokens, hash)
			n++
		}
	}
	return n, nil
}

// ---- invitations ----

type InvitationRepository struct{ s *Store }

func (r *InvitationRepository) Create(_ context.Context, inv *domain.Invitation) (*domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	c := cloneInvitation(inv)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	r.s.invitations[c.ID] = c
	return cloneInvitation(c), nil
}

func (r *InvitationRepository) GetByID(_ context.Context, tenantID, id string) (*domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	inv, ok := r.s.invitations[id]
	if !ok || inv.TenantID != tenantID {
		return nil, domain.ErrInvitationNotFound
	}
	return cloneInvitation(inv), nil
}

func (r *InvitationRepository) ListByAssessment(_ context.Context, tenantID, assessmentID string) ([]*domain.Invitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Invitation
	for _, inv := range r.s.invitations {
		if inv.TenantID == tenantID && inv.AssessmentID == assessmentID {
			out = append(out, cloneInvitation(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (r *InvitationRepository) ListDue(_ context.Context, now time.Time, after *repository.DueInvitation, limit int) ([]repository.DueInvitation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var candidates []repository.DueInvitation
	for _, inv := range r.s.invitations {
		if !inv.Status.Open() {
			continue
		}
		at := inv.ExpiresAt
		if inv.NextReminderAt != nil && inv.NextReminderAt.Before(at) {
			at = *inv.NextReminderAt
		}
		d := repository.DueInvitation{ID: inv.ID, DueAt: at}
		if at.After(now) || (after != nil && !dueAfter(d, *after)) {
			continue
		}
		candidates = append(candidates, d)
	}
	sort.Slice(candidates, func(i, j int) bool { return dueAfter(candidates[j], candidates[i]) })

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// dueAfter reports whether a sorts strictly after b on (DueAt, ID).
func dueAfter(a, b repository.DueInvitation) bool {
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.After(b.DueAt)
	}
	return a.ID > b.ID
}

func (r *InvitationRepository) Counts(_ context.Context, tenantID, assessmentID string) (domain.InvitationCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var c domain.InvitationCounts
	for _, inv := range r.s.invitations {
		if inv.TenantID != tenantID || inv.AssessmentID != assessmentID {
			continue
		}
		c.Total++
		switch inv.Status {
		case domain.InvitationPending:
			c.Pending++
		case domain.InvitationViewed:
			c.Viewed++
		case domain.InvitationCompleted:
			c.Completed++
		case domain.InvitationExpired:
			c.Expired++
		}
		for _, rem := range r.s.reminders[inv.ID] {
			c.TotalReminders++
			if rem.Status == domain.ReminderFailed {
				c.FailedReminders++
			}
		}
	}
	return c, nil
}

func (r *InvitationRepository) WithLock(ctx context.Context, id string, fn func(ctx context.Context, tx repository.InvitationTx) error) error {
	r.s.mu.Lock()
	inv, ok := r.s.invitations[id]
	if !ok {
		r.s.mu.Unlock()
		return domain.ErrInvitationNotFound
	}
	lock, ok := r.s.rowLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.s.rowLocks[id] = lock
	}
	r.s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	r.s.mu.Lock()
	tx := &invitationTx{s: r.s, inv: cloneInvitation(inv)}
	r.s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// invitationTx buffers writes until commit so a failing fn leaves no trace.
type invitationTx struct {
	s         *Store
	inv       *domain.Invitation
	updated   *domain.Invitation
	reminders []*domain.Reminder
}

func (t *invitationTx) Invitation() *domain.Invitation { return cloneInvitation(t.inv) }

func (t *invitationTx) LatestReminder(_ context.Context) (*domain.Reminder, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var latest *domain.Reminder
	for _, r := range t.s.reminders[t.inv.ID] {
		if latest == nil || r.Sequence > latest.Sequence {
			latest = r
		}
	}
	for _, r := range t.reminders {
		if latest == nil || r.Sequence >= latest.Sequence {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (t *invitationTx) SaveReminder(_ context.Context, r *domain.Reminder) (*domain.Reminder, error) {
	c := *r
	c.InvitationID = t.inv.ID
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	t.reminders = append(t.reminders, &c)
	out := c
	return &out, nil
}

func (t *invitationTx) Update(_ context.Context, inv *domain.Invitation) error {
	t.updated = cloneInvitation(inv)
	return nil
}

func (t *invitationTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	id := t.inv.ID
	for _, r := range t.reminders {
		rows := t.s.reminders[id]
		replaced := false
		for i, existing := range rows {
			if existing.Sequence == r.Sequence {
				r.ID, r.CreatedAt = existing.ID, existing.CreatedAt
				rows[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			rows = append(rows, r)
			sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
		}
		t.s.reminders[id] = rows
	}

	if t.updated != nil {
		cur := t.s.invitations[id]
		cur.Status = t.updated.Status
		cur.ViewedAt = t.updated.ViewedAt
		cur.CompletedAt = t.updated.CompletedAt
		cur.NextReminderAt = t.updated.NextReminderAt
		cur.UpdatedAt = time.Now()
	}
}

// ---- reminders ----

type ReminderRepository struct{ s *Store }

func (r *ReminderRepository) ListByInvitation(_ context.Context, invitationID string) ([]*domain.Reminder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rows := r.s.reminders[invitationID]
	out := make([]*domain.Reminder, len(rows))
	for i, rem := range rows {
		c := *rem
		out[i] = &c
	}
	return out, nil
}

func cloneInvitation(inv *domain.Invitation) *domain.Invitation {
	c := *inv
	c.ViewedAt = cloneTime(inv.ViewedAt)
	c.CompletedAt = cloneTime(inv.CompletedAt)
	c.NextReminderAt = cloneTime(inv.NextReminderAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
