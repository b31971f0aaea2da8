package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/blackbelt-platform/core/internal/domain"
	"github.com/blackbelt-platform/core/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

type userAdmin interface {
	ChangeRole(ctx context.Context, actor domain.Principal, userID string, role domain.Role) (*domain.User, error)
	Deactivate(ctx context.Context, actor domain.Principal, userID string) error
}

// UserHandler serves tenant user administration. Routes sit behind
// middleware.RequireAdmin; the use case enforces tenant scope.
type UserHandler struct {
	users  userAdmin
	logger *slog.Logger
}

func NewUserHandler(users userAdmin, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger.With("component", "user_handler")}
}

type changeRoleRequest struct {
	Role domain.Role `json:"role" binding:"required,oneof=admin consultant viewer"`
}

// PATCH /users/:id/role
func (h *UserHandler) ChangeRole(c *gin.Context) {
	id, ok := pathID(c, errUserNotFound)
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.ChangeRole(c.Request.Context(), middleware.Principal(c), id, req.Role)
	if err != nil {
		respondError(c, h.logger, "change role", err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// POST /users/:id/deactivate
func (h *UserHandler) Deactivate(c *gin.Context) {
	id, ok := pathID(c, errUserNotFound)
	if !ok {
		return
	}
	if err := h.users.Deactivate(c.Request.Context(), middleware.Principal(c), id); err != nil {
		respondError(c, h.logger, "deactivate user", err)
		return
	}
	c.Status(http.StatusNoContent)
}
