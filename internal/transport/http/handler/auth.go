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

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	Register(ctx context.Context, email, password, name string) (*usecase.AuthResult, error)
	Login(ctx context.Context, email, password string) (*usecase.AuthResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, raw, newPassword string) error
	VerifyEmail(ctx context.Context, raw string) error
	Logout(ctx context.Context, raw string) error
	ResendVerification(ctx context.Context, userID string) error
	ValidateToken(ctx context.Context, raw string) (*usecase.TokenInfo, error)
}

type AuthHandler struct {
	authUsecase authUsecaser
	logger      *slog.Logger
}

func NewAuthHandler(authUsecase authUsecaser, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authUsecase: authUsecase,
		logger:      logger.With("component", "auth_handler"),
	}
}

// Password length is checked by the use case so the error is ErrWeakPassword.
type registerRequest struct {
	Email    string `json:"email"    binding:"required,max=254"`
	Password string `json:"password" binding:"required,max=1024"`
	Name     string `json:"name"     binding:"required,max=200"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"    binding:"required"`
	Password string `json:"password" binding:"required,max=1024"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type userResponse struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenant_id"`
	Email         string      `json:"email"`
	Name          string      `json:"name"`
	Role          domain.Role `json:"role"`
	EmailVerified bool        `json:"email_verified"`
	CreatedAt     time.Time   `json:"created_at"`
}

type sessionResponse struct {
	User      userResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:            u.ID,
		TenantID:      u.TenantID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func toSessionResponse(r *usecase.AuthResult) sessionResponse {
	return sessionResponse{User: toUserResponse(r.User), Token: r.Token, ExpiresAt: r.ExpiresAt}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authUsecase.Register(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, h.logger, "register", err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(result))
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authUsecase.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(result))
}

// POST /auth/password/forgot
// Always 202 with the same body so callers cannot probe for accounts.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authUsecase.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "request password reset", "error", err)
	}
	c.JSON(http.StatusAccepted, gin.H{"message": errPasswordResetIssued})
}

// POST /auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authUsecase.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		respondError(c, h.logger, "reset password", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /auth/email/verify
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authUsecase.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		respondError(c, h.logger, "verify email", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authUsecase.Logout(c.Request.Context(), c.GetString(middleware.KeyToken)); err != nil {
		respondError(c, h.logger, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	info, err := h.authUsecase.ValidateToken(c.Request.Context(), c.GetString(middleware.KeyToken))
	if err != nil {
		respondError(c, h.logger, "me", err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(info.User))
}

// POST /auth/email/resend
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	if err := h.authUsecase.ResendVerification(c.Request.Context(), c.GetString(middleware.KeyUserID)); err != nil {
		respondError(c, h.logger, "resend verification", err)
		return
	}
	c.Status(http.StatusAccepted)
}
