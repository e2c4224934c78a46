package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/task-management-client/internal/errors"
	"github.com/yukikurage/task-management-client/internal/models"
	"github.com/yukikurage/task-management-client/internal/services"
)

const (
	ContextKeyUserID   = "user_id"
	ContextKeyUserRole = "user_role"
	ContextKeyTask     = "task"
)

// BearerToken extracts the token from an `Authorization: Bearer` header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequireAuth checks the bearer token and stores the caller in the context
func RequireAuth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		user, err := authService.Authenticate(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired),
				errors.Is(err, services.ErrTokenRevoked),
				errors.Is(err, services.ErrInvalidToken),
				errors.Is(err, services.ErrAccountDisabled):
				apierrors.Unauthorized(c, err.Error())
			default:
				apierrors.InternalError(c, "Failed to authenticate")
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyUserRole, models.Role(user.Role))
		c.Next()
	}
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}

// GetActor retrieves the authenticated caller from context
func GetActor(c *gin.Context) (services.Actor, bool) {
	id, ok := GetUserID(c)
	if !ok {
		return services.Actor{}, false
	}
	role, _ := c.Get(ContextKeyUserRole)
	r, _ := role.(models.Role)
	return services.Actor{ID: id, Role: r}, true
}

// RequireAdmin only lets admins through. It must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}
		if !actor.IsAdmin() {
			apierrors.Forbidden(c, "Admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}
