package httptransport

import (
	"log/slog"

	"github.com/blackbelt-platform/core/internal/transport/http/handler"
	"github.com/blackbelt-platform/core/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// authRateLimit bounds unauthenticated auth calls per client IP per minute.
const authRateLimit = 10

type Handlers struct {
	Auth        *handler.AuthHandler
	Users       *handler.UserHandler
	Invitations *handler.InvitationHandler
}

func NewRouter(logger *slog.Logger, tokens middleware.TokenValidator, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(tokens)

	// Public auth routes
	public := r.Group("/auth", middleware.RateLimit(authRateLimit))
	public.POST("/register", h.Auth.Register)
	public.POST("/login", h.Auth.Login)
	public.POST("/password/forgot", h.Auth.ForgotPassword)
	public.POST("/password/reset", h.Auth.ResetPassword)
	public.POST("/email/verify", h.Auth.VerifyEmail)

	// Session routes
	session := r.Group("/auth", authMW)
	session.POST("/logout", h.Auth.Logout)
	session.GET("/me", h.Auth.Me)
	session.POST("/email/resend", h.Auth.ResendVerification)

	// Tenant administration
	users := r.Group("/users", authMW, middleware.RequireAdmin())
	users.PATCH("/:id/role", h.Users.ChangeRole)
	users.POST("/:id/deactivate", h.Users.Deactivate)

	assessments := r.Group("/assessments", authMW)
	assessments.POST("/:id/invitations", h.Invitations.Invite)
	assessments.GET("/:id/invitations", h.Invitations.List)
	assessments.GET("/:id/reminder-stats", h.Invitations.Statistics)

	invitations := r.Group("/invitations", authMW)
	invitations.GET("/:id/reminders", h.Invitations.ListReminders)
	invitations.POST("/:id/reminders", h.Invitations.SendReminder)
	invitations.POST("/:id/viewed", h.Invitations.MarkViewed)
	invitations.POST("/:id/completed", h.Invitations.MarkCompleted)

	return r
}
