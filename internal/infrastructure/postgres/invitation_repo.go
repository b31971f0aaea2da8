package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invitationColumns = `id, tenant_id, assessment_id, respondent_name, respondent_email,
		       respondent_position, status, sent_at, viewed_at, completed_at,
		       expires_at, next_reminder_at, created_at, updated_at`

const reminderColumns = `id, invitation_id, sequence, status, attempts, last_error,
		       sent_at, next_reminder_at, created_at`

type InvitationRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewInvitationRepository(pool *pgxpool.Pool, logger *slog.Logger) *InvitationRepository {
	return &InvitationRepository{pool: pool, logger: logger.With("component", "invitation_repo")}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *domain.Invitation) (*domain.Invitation, error) {
	query := `
		INSERT INTO invitations (
			tenant_id, assessment_id, respondent_name, respondent_email,
			respondent_position, status, sent_at, expires_at, next_reminder_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + invitationColumns

	row := r.pool.QueryRow(ctx, query,
		inv.TenantID, inv.AssessmentID, inv.RespondentName, inv.RespondentEmail,
		inv.RespondentPosition, inv.Status, inv.SentAt, inv.ExpiresAt, inv.NextReminderAt,
	)
	return scanInvitation(row)
}

func (r *InvitationRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1 AND tenant_id = $2`
	return scanInvitation(r.pool.QueryRow(ctx, query, id, tenantID))
}

func (r *InvitationRepository) ListByAssessment(ctx context.Context, tenantID, assessmentID string) ([]*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE tenant_id = $1 AND assessment_id = $2
		ORDER BY sent_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, tenantID, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (r *InvitationRepository) ListDue(ctx context.Context, now time.Time, after *repository.DueInvitation, limit int) ([]repository.DueInvitation, error) {
	var (
		afterAt *time.Time
		afterID *string
	)
	if after != nil {
		afterAt, afterID = &after.DueAt, &after.ID
	}

	// LEAST skips NULL, so an exhausted cadence falls back to expires_at.
	rows, err := r.pool.Query(ctx, `
		SELECT id, LEAST(next_reminder_at, expires_at) AS due_at
		FROM   invitations
		WHERE  status IN ('pending', 'viewed')
		  AND  LEAST(next_reminder_at, expires_at) <= $1
		  AND  ($2::timestamptz IS NULL
		        OR (LEAST(next_reminder_at, expires_at), id) > ($2::timestamptz, $3::uuid))
		ORDER BY due_at ASC, id ASC
		LIMIT $4`, now, afterAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list due invitations: %w", err)
	}
	defer rows.Close()

	var due []repository.DueInvitation
	for rows.Next() {
		var d repository.DueInvitation
		if err := rows.Scan(&d.ID, &d.DueAt); err != nil {
			return nil, fmt.Errorf("scan due invitation: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (r *InvitationRepository) Counts(ctx context.Context, tenantID, assessmentID string) (domain.InvitationCounts, error) {
	var c domain.InvitationCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE i.status = 'pending'),
			COUNT(*) FILTER (WHERE i.status = 'viewed'),
			COUNT(*) FILTER (WHERE i.status = 'completed'),
			COUNT(*) FILTER (WHERE i.status = 'expired'),
			COALESCE(SUM(rem.total), 0),
			COALESCE(SUM(rem.failed), 0)
		FROM invitations i
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS total,
			       COUNT(*) FILTER (WHERE status = 'failed') AS failed
			FROM reminders WHERE invitation_id = i.id
		) rem ON TRUE
		WHERE i.tenant_id = $1 AND i.assessment_id = $2`,
		tenantID, assessmentID,
	).Scan(&c.Total, &c.Pending, &c.Viewed, &c.Completed, &c.Expired, &c.TotalReminders, &c.FailedReminders)
	if err != nil {
		return c, fmt.Errorf("count invitations: %w", err)
	}
	return c, nil
}

// WithLock holds SELECT ... FOR UPDATE on the invitation for the lifetime of
// fn. A manual reminder and a scheduled pass racing on the same row queue
// behind each other instead of both firing.
func (r *InvitationRepository) WithLock(ctx context.Context, id string, fn func(ctx context.Context, tx repository.InvitationTx) error) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				r.logger.Warn("rollback invitation tx", "invitation_id", id, "error", rbErr)
			}
		}
	}()

	inv, err := scanInvitation(tx.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}

	if err = fn(ctx, &invitationTx{tx: tx, inv: inv}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type invitationTx struct {
	tx  pgx.Tx
	inv *domain.Invitation
}

func (t *invitationTx) Invitation() *domain.Invitation {
	c := *t.inv
	return &c
}

func (t *invitationTx) LatestReminder(ctx context.Context) (*domain.Reminder, error) {
	rem, err := scanReminder(t.tx.QueryRow(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE invitation_id = $1
		ORDER BY sequence DESC
		LIMIT 1`, t.inv.ID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rem, err
}

func (t *invitationTx) SaveReminder(ctx context.Context, rem *domain.Reminder) (*domain.Reminder, error) {
	saved, err := scanReminder(t.tx.QueryRow(ctx, `
		INSERT INTO reminders (
			invitation_id, sequence, status, attempts, last_error, sent_at, next_reminder_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invitation_id, sequence) DO UPDATE
		SET status           = EXCLUDED.status,
		    attempts         = EXCLUDED.attempts,
		    last_error       = EXCLUDED.last_error,
		    sent_at          = EXCLUDED.sent_at,
		    next_reminder_at = EXCLUDED.next_reminder_at
		RETURNING `+reminderColumns,
		t.inv.ID, rem.Sequence, rem.Status, rem.Attempts, rem.LastError, rem.SentAt, rem.NextReminderAt,
	))
	if err != nil {
		return nil, fmt.Errorf("save reminder: %w", err)
	}
	return saved, nil
}

func (t *invitationTx) Update(ctx context.Context, inv *domain.Invitation) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE invitations
		SET    status           = $2,
		       viewed_at        = $3,
		       completed_at     = $4,
		       next_reminder_at = $5,
		       updated_at       = NOW()
		WHERE id = $1`,
		t.inv.ID, inv.Status, inv.ViewedAt, inv.CompletedAt, inv.NextReminderAt)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	return nil
}

type ReminderRepository struct {
	pool *pgxpool.Pool
}

func NewReminderRepository(pool *pgxpool.Pool) *ReminderRepository {
	return &ReminderRepository{pool: pool}
}

func (r *ReminderRepository) ListByInvitation(ctx context.Context, invitationID string) ([]*domain.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE invitation_id = $1
		ORDER BY sequence ASC`, invitationID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.AssessmentID, &inv.RespondentName, &inv.RespondentEmail,
		&inv.RespondentPosition, &inv.Status, &inv.SentAt, &inv.ViewedAt, &inv.CompletedAt,
		&inv.ExpiresAt, &inv.NextReminderAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("scan invitation: %w", err)
	}
	return &inv, nil
}

// scanReminder passes pgx.ErrNoRows through so LatestReminder can map it to nil.
func scanReminder(row rowScanner) (*domain.Reminder, error) {
	var rem domain.Reminder
	err := row.Scan(
		&rem.ID, &rem.InvitationID, &rem.Sequence, &rem.Status, &rem.Attempts, &rem.LastError,
		&rem.SentAt, &rem.NextReminderAt, &rem.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	return &rem, nil
}
