package app

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"toolhub/config"
	"toolhub/lifecycle"
	"toolhub/models"
	"toolhub/session"
)

const AppSessionCookie = "app_session"

// Context keys set by AuthRequired.
const (
	CtxUserID   = "userID"
	CtxUsername = "username"
	CtxRole     = "role"
)

type SessionReader interface {
	Get(ctx context.Context, id string) (*session.AppSession, error)
	Delete(ctx context.Context, id string) error
}

type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// AuthRequired resolves the app_session cookie to a user and stores the id,
// username and effective role on the context. The role is read from the
// database on every request so an admin's change applies immediately.
// Addresses in ADMIN_EMAILS are always admins.
func AuthRequired(sessions SessionReader, users UserFinder, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		as, err := sessions.Get(c.Request.Context(), ck.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}

		u, err := users.FindUserByID(c.Request.Context(), as.UserID)
		if err != nil {
			_ = sessions.Delete(c.Request.Context(), ck.Value)
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		role := u.Role
		if cfg.IsAdminEmail(u.Username) {
			role = models.RoleAdmin
		}

		c.Set(CtxUserID, u.ID)
		c.Set(CtxUsername, u.Username)
		c.Set(CtxRole, role)
		c.Next()
	}
}

// RequireRole lets through only the listed roles. It must run after
// AuthRequired.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CtxUserID); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !slices.Contains(roles, CurrentRole(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func CurrentUserID(c *gin.Context) string { return c.GetString(CtxUserID) }

func CurrentRole(c *gin.Context) models.Role {
	r, _ := c.Get(CtxRole)
	role, _ := r.(models.Role)
	return role
}

// CurrentActor is the signed-in user as the lifecycle sees them.
func CurrentActor(c *gin.Context) lifecycle.Actor {
	return lifecycle.Actor{UserID: CurrentUserID(c), Role: CurrentRole(c)}
}
