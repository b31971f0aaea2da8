package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/blackbelt-platform/core/internal/domain"
	applog "github.com/blackbelt-platform/core/internal/log"
	"github.com/blackbelt-platform/core/internal/usecase"
	"github.com/gin-gonic/gin"
)

const (
	errUnauthorized = "Invalid or expired credentials"
	errForbidden    = "Forbidden"
)

// Context keys set by Auth.
const (
	KeyUserID   = "userID"
	KeyTenantID = "tenantID"
	KeyRole     = "role"
	KeyToken    = "token"
)

// TokenValidator resolves a bearer to its user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, raw string) (*usecase.TokenInfo, error)
}

// Auth accepts only live session bearers. Verification and reset tokens are
// rejected here even though ValidateToken resolves them.
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		info, err := validator.ValidateToken(c.Request.Context(), raw)
		if err != nil || info.Purpose != domain.PurposeSession {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set(KeyUserID, info.User.ID)
		c.Set(KeyTenantID, info.User.TenantID)
		c.Set(KeyRole, string(info.User.Role))
		c.Set(KeyToken, raw)
		c.Request = c.Request.WithContext(applog.WithAttrs(c.Request.Context(),
			slog.String("user_id", info.User.ID),
			slog.String("tenant_id", info.User.TenantID),
		))
		c.Next()
	}
}

// RequireAdmin runs after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if domain.Role(c.GetString(KeyRole)) != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errForbidden})
			return
		}
		c.Next()
	}
}

// Principal returns the caller that Auth stored on c.
func Principal(c *gin.Context) domain.Principal {
	return domain.Principal{
		UserID:   c.GetString(KeyUserID),
		TenantID: c.GetString(KeyTenantID),
		Role:     domain.Role(c.GetString(KeyRole)),
	}
}
