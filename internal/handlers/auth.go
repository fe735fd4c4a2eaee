package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fitcoach/internal/middleware"
	"fitcoach/internal/models"
	"fitcoach/internal/service"
)

type registerRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:    user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Roles: user.RoleNames(),
	}
}

func (h HandlerSet) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.Name,
		Role:        models.UserRole(req.Role),
		DeviceID:    req.DeviceID,
		DeviceName:  req.DeviceName,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.sendAuthResponse(c, http.StatusCreated, result)
}

type loginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceID:   req.DeviceID,
		DeviceName: req.DeviceName,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.sendAuthResponse(c, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh reads the refresh token from the cookie, falling back to the body.
func (h HandlerSet) Refresh(c *gin.Context) {
	refreshToken := h.refreshTokenFrom(c)
	if refreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing_refresh_token"})
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.clearRefreshCookie(c)
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"token": result.AccessToken})
}

// Logout ends the caller's session. It succeeds even when nothing matched.
func (h HandlerSet) Logout(c *gin.Context) {
	input := service.LogoutInput{RefreshToken: h.refreshTokenFrom(c)}
	if token := middleware.BearerToken(c.Request); token != "" {
		if principal, err := h.authService.Authenticate(c.Request.Context(), token); err == nil {
			input.SessionID = principal.Claims.SessionID
		}
	}

	if err := h.authService.Logout(c.Request.Context(), input); err != nil {
		h.fail(c, err)
		return
	}

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) refreshTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(h.cfg.Security.RefreshCookie); err == nil && cookie != "" {
		return cookie
	}
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	return req.RefreshToken
}

func (h HandlerSet) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Security.RefreshCookie, token, int(h.cfg.Security.JWTRefreshTTL/time.Second), "/api/v1/auth", "", h.cfg.Security.CookieSecure, true)
}

func (h HandlerSet) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Security.RefreshCookie, "", -1, "/api/v1/auth", "", h.cfg.Security.CookieSecure, true)
}

func (h HandlerSet) sendAuthResponse(c *gin.Context, status int, result service.AuthResult) {
	h.setRefreshCookie(c, result.RefreshToken)
	c.JSON(status, authResponse{
		Token: result.AccessToken,
		User:  toUserResponse(result.User),
	})
}

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": toUserResponse(user),
	})
}

type sessionResponse struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	claims, _ := middleware.CurrentClaims(c)

	sessions, err := h.authService.Sessions(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, sessionResponse{
			ID:         session.ID,
			DeviceID:   session.DeviceID,
			DeviceName: session.DeviceName,
			IPAddress:  session.IPAddress,
			UserAgent:  session.UserAgent,
			LastSeenAt: session.LastSeenAt,
			ExpiresAt:  session.ExpiresAt,
			Current:    session.ID == claims.SessionID,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": resp,
	})
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}

	deviceID := c.Param("deviceId")
	claims, _ := middleware.CurrentClaims(c)
	if claims.DeviceID == deviceID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot_revoke_current_device"})
		return
	}

	if err := h.authService.RevokeDevice(c.Request.Context(), user.ID, deviceID); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
