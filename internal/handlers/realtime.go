package handlers

import (
	"github.com/gin-gonic/gin"
)

// Realtime upgrades an authenticated request to the event websocket.
func (h HandlerSet) Realtime(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, user.ID); err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("realtime upgrade failed")
	}
}
