package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitcoach/internal/events"
	"fitcoach/internal/middleware"
)

func (h HandlerSet) AdminRealtimeStats(c *gin.Context) {
	names := events.Names(events.InvalidationTable)
	known := make([]string, 0, len(names))
	for _, n := range names {
		known = append(known, string(n))
	}

	c.JSON(http.StatusOK, gin.H{
		"connections": h.hub.Count(),
		"events":      known,
	})
}

type publishRequest struct {
	Event      string `json:"event" binding:"required"`
	ResourceID string `json:"resourceId"`
}

// AdminPublishEvent emits a known event by hand, forcing connected clients to
// refetch the scopes it maps to.
func (h HandlerSet) AdminPublishEvent(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name, err := events.ParseName(req.Event)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := events.InvalidationTable[name]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_event"})
		return
	}

	user, _ := middleware.CurrentUser(c)
	evt, err := events.New(name, events.ResourceChanged{ResourceID: req.ResourceID, ActorID: user.ID})
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), evt); err != nil {
		h.log.Error().Err(err).Str("event", req.Event).Msg("admin publish failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "publish_failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": evt.ID})
}
