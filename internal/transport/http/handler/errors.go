package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInternalServer      = "Internal server error"
	errInvalidCredentials  = "Invalid or expired credentials"
	errEmailTaken          = "Email already registered"
	errForbidden           = "Forbidden"
	errUserNotFound        = "User not found"
	errInvitationNotFound  = "Invitation not found"
	errReminderLimit       = "Reminder limit reached for this invitation"
	errDispatchFailed      = "Notification could not be delivered"
	errPasswordResetIssued = "If the account exists, a reset link has been sent"
)

// respondError maps a use-case error to a status and body. Anything not
// recognised is logged and reported as a 500.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": errEmailTaken})
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenNotFound):
		c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidCredentials})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": errForbidden})
	case errors.Is(err, domain.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errUserNotFound})
	case errors.Is(err, domain.ErrInvitationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errInvitationNotFound})
	case errors.Is(err, domain.ErrReminderLimitExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": errReminderLimit})
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDispatchFailed):
		logger.WarnContext(c.Request.Context(), op, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": errDispatchFailed})
	default:
		logger.ErrorContext(c.Request.Context(), op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

// pathID returns the :id param, or writes a 404 with notFound when it is not a
// UUID. Rows are keyed by UUID, so any other value cannot exist.
func pathID(c *gin.Context, notFound string) (string, bool) {
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return "", false
	}
	return id, true
}
