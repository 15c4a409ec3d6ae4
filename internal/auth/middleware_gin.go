package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	obscontext "github.com/smallbiznis/payflow/internal/observability/context"
)

const userContextKey = "auth.user"

// Middleware resolves the session token when present and stores the user
// on the context. It never rejects by itself; use RequireUser on routes
// that need authentication.
func Middleware(manager *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := manager.ReadToken(c)
		if ok {
			if user, err := manager.Verify(token); err == nil {
				c.Set(userContextKey, user)
				ctx := obscontext.WithUserID(c.Request.Context(), user.ID)
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Next()
	}
}

// RequireUser aborts with 401 unless Middleware resolved a user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserFromContext(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"type": "unauthorized", "message": "unauthorized"},
			})
			return
		}
		c.Next()
	}
}

// UserFromContext returns the user resolved by Middleware.
func UserFromContext(c *gin.Context) (User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return User{}, false
	}
	user, ok := value.(User)
	if !ok || !user.Authenticated() {
		return User{}, false
	}
	return user, true
}
