package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fitcoach/internal/models"
	"fitcoach/internal/security"
	"fitcoach/internal/service"
)

const (
	ctxAccessToken  = "access_token"
	ctxAccessClaims = "access_claims"
	ctxCurrentUser  = "current_user"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (service.Principal, error)
	Touch(ctx context.Context, sessionID, ip, userAgent string)
}

// Auth requires a valid bearer token. Websocket upgrades may carry the token
// in the "token" query parameter instead, since browsers cannot set headers
// on the handshake.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := BearerToken(c.Request)
		if tokenStr == "" {
			abortWith(c, http.StatusUnauthorized, "missing_token")
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUserSuspended):
				abortWith(c, http.StatusForbidden, "user_inactive")
			case errors.Is(err, security.ErrInvalidToken):
				abortWith(c, http.StatusUnauthorized, "invalid_token")
			default:
				abortWith(c, http.StatusUnauthorized, "session_invalid")
			}
			return
		}

		auth.Touch(c.Request.Context(), principal.Claims.SessionID, c.ClientIP(), c.GetHeader("User-Agent"))

		c.Set(ctxAccessToken, tokenStr)
		c.Set(ctxAccessClaims, principal.Claims)
		c.Set(ctxCurrentUser, principal.User)

		c.Next()
	}
}

// BearerToken extracts the access token from the request.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if authHeader == "" && websocket.IsWebSocketUpgrade(r) {
		return r.URL.Query().Get("token")
	}
	return ""
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(ctxCurrentUser)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func CurrentClaims(c *gin.Context) (security.AccessClaims, bool) {
	v, ok := c.Get(ctxAccessClaims)
	if !ok {
		return security.AccessClaims{}, false
	}
	claims, ok := v.(security.AccessClaims)
	return claims, ok
}
