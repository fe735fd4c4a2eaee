package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitcoach/internal/models"
)

// RequireRoles must run after Auth. Holding any one of roles is enough.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		switch {
		case !ok:
			abortWith(c, http.StatusUnauthorized, "unauthorized")
		case !user.HasAnyRole(roles...):
			abortWith(c, http.StatusForbidden, "forbidden")
		default:
			c.Next()
		}
	}
}
