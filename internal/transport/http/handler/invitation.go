package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/transport/http/middleware"
	"github.com/blackbelt-platform/core/internal/usecase"
	"github.com/gin-gonic/gin"
)

type invitationUsecaser interface {
	Invite(ctx context.Context, tenantID, assessmentID string, respondents []usecase.Respondent) ([]*domain.Invitation, error)
	List(ctx context.Context, tenantID, assessmentID string) ([]*domain.Invitation, error)
	MarkViewed(ctx context.Context, tenantID, invitationID string) (*domain.Invitation, error)
	MarkCompleted(ctx context.Context, tenantID, invitationID string) (*domain.Invitation, error)
}

type reminderUsecaser interface {
	SendManualReminder(ctx context.Context, tenantID, invitationID string) (*domain.Reminder, error)
	ListReminders(ctx context.Context, tenantID, invitationID string) ([]*domain.Reminder, error)
	GetStatistics(ctx context.Context, tenantID, assessmentID string) (*domain.ReminderStatistics, error)
}

type InvitationHandler struct {
	invitations invitationUsecaser
	reminders   reminderUsecaser
	logger      *slog.Logger
}

func NewInvitationHandler(invitations invitationUsecaser, reminders reminderUsecaser, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations: invitations,
		reminders:   reminders,
		logger:      logger.With("component", "invitation_handler"),
	}
}

type respondentRequest struct {
	Name     string `json:"name"     binding:"required,max=200"`
	Email    string `json:"email"    binding:"required,email,max=254"`
	Position string `json:"position" binding:"max=200"`
}

type inviteRequest struct {
	Respondents []respondentRequest `json:"respondents" binding:"required,min=1,max=500,dive"`
}

type invitationResponse struct {
	ID                 string                  `json:"id"`
	AssessmentID       string                  `json:"assessment_id"`
	RespondentName     string                  `json:"respondent_name"`
	RespondentEmail    string                  `json:"respondent_email"`
	RespondentPosition string                  `json:"respondent_position,omitempty"`
	Status             domain.InvitationStatus `json:"status"`
	SentAt             time.Time               `json:"sent_at"`
	ViewedAt           *time.Time              `json:"viewed_at,omitempty"`
	CompletedAt        *time.Time              `json:"completed_at,omitempty"`
	ExpiresAt          time.Time               `json:"expires_at"`
	NextReminderAt     *time.Time              `json:"next_reminder_at"`
}

type reminderResponse struct {
	ID             string                `json:"id"`
	InvitationID   string                `json:"invitation_id"`
	Sequence       int                   `json:"sequence"`
	Status         domain.ReminderStatus `json:"status"`
	Attempts       int                   `json:"attempts"`
	LastError      *string               `json:"last_error,omitempty"`
	SentAt         time.Time             `json:"sent_at"`
	NextReminderAt *time.Time            `json:"next_reminder_at"`
}

func toInvitationResponse(inv *domain.Invitation) invitationResponse {
	return invitationResponse{
		ID:                 inv.ID,
		AssessmentID:       inv.AssessmentID,
		RespondentName:     inv.RespondentName,
		RespondentEmail:    inv.RespondentEmail,
		RespondentPosition: inv.RespondentPosition,
		Status:             inv.Status,
		SentAt:             inv.SentAt,
		ViewedAt:           inv.ViewedAt,
		CompletedAt:        inv.CompletedAt,
		ExpiresAt:          inv.ExpiresAt,
		NextReminderAt:     inv.NextReminderAt,
	}
}

func toInvitationResponses(invs []*domain.Invitation) []invitationResponse {
	resp := make([]invitationResponse, len(invs))
	for i, inv := range invs {
		resp[i] = toInvitationResponse(inv)
	}
	return resp
}

func toReminderResponse(r *domain.Reminder) reminderResponse {
	return reminderResponse{
		ID:             r.ID,
		InvitationID:   r.InvitationID,
		Sequence:       r.Sequence,
		Status:         r.Status,
		Attempts:       r.Attempts,
		LastError:      r.LastError,
		SentAt:         r.SentAt,
		NextReminderAt: r.NextReminderAt,
	}
}

// POST /assessments/:id/invitations
func (h *InvitationHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	respondents := make([]usecase.Respondent, len(req.Respondents))
	for i, r := range req.Respondents {
		respondents[i] = usecase.Respondent{Name: r.Name, Email: r.Email, Position: r.Position}
	}

	invs, err := h.invitations.Invite(c.Request.Context(), c.GetString(middleware.KeyTenantID), c.Param("id"), respondents)
	if err != nil {
		respondError(c, h.logger, "invite respondents", err)
		return
	}
	c.JSON(http.StatusCreated, toInvitationResponses(invs))
}

// GET /assessments/:id/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	invs, err := h.invitations.List(c.Request.Context(), c.GetString(middleware.KeyTenantID), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "list invitations", err)
		return
	}
	c.JSON(http.StatusOK, toInvitationResponses(invs))
}

// GET /assessments/:id/reminder-stats
func (h *InvitationHandler) Statistics(c *gin.Context) {
	stats, err := h.reminders.GetStatistics(c.Request.Context(), c.GetString(middleware.KeyTenantID), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "reminder statistics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /invitations/:id/reminders
func (h *InvitationHandler) ListReminders(c *gin.Context) {
	id, ok := pathID(c, errInvitationNotFound)
	if !ok {
		return
	}
	rows, err := h.reminders.ListReminders(c.Request.Context(), c.GetString(middleware.KeyTenantID), id)
	if err != nil {
		respondError(c, h.logger, "list reminders", err)
		return
	}
	resp := make([]reminderResponse, len(rows))
	for i, r := range rows {
		resp[i] = toReminderResponse(r)
	}
	c.JSON(http.StatusOK, resp)
}

// POST /invitations/:id/reminders
// A failed dispatch is persisted and reported with 502 and the failed row.
func (h *InvitationHandler) SendReminder(c *gin.Context) {
	id, ok := pathID(c, errInvitationNotFound)
	if !ok {
		return
	}
	rem, err := h.reminders.SendManualReminder(c.Request.Context(), c.GetString(middleware.KeyTenantID), id)
	if err != nil {
		respondError(c, h.logger, "send manual reminder", err)
		return
	}
	if !rem.Delivered() {
		c.JSON(http.StatusBadGateway, gin.H{"error": errDispatchFailed, "reminder": toReminderResponse(rem)})
		return
	}
	c.JSON(http.StatusCreated, toReminderResponse(rem))
}

// POST /invitations/:id/viewed
func (h *InvitationHandler) MarkViewed(c *gin.Context) {
	id, ok := pathID(c, errInvitationNotFound)
	if !ok {
		return
	}
	inv, err := h.invitations.MarkViewed(c.Request.Context(), c.GetString(middleware.KeyTenantID), id)
	if err != nil {
		respondError(c, h.logger, "mark viewed", err)
		return
	}
	c.JSON(http.StatusOK, toInvitationResponse(inv))
}

// POST /invitations/:id/completed
func (h *InvitationHandler) MarkCompleted(c *gin.Context) {
	id, ok := pathID(c, errInvitationNotFound)
	if !ok {
		return
	}
	inv, err := h.invitations.MarkCompleted(c.Request.Context(), c.GetString(middleware.KeyTenantID), id)
	if err != nil {
		respondError(c, h.logger, "mark completed", err)
		return
	}
	c.JSON(http.StatusOK, toInvitationResponse(inv))
}
