package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Components  map[string]string `json:"components"`
	Realtime    int               `json:"realtimeConnections"`
	Environment string            `json:"environment"`
}

// Health reports "degraded" when any configured backend fails its probe.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Components:  make(map[string]string, len(h.checks)),
		Environment: h.cfg.Environment,
	}
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			resp.Components[check.Name] = "error"
			resp.Status = "degraded"
			h.log.Error().Err(err).Str("component", check.Name).Msg("health check failed")
			continue
		}
		resp.Components[check.Name] = "ok"
	}
	if h.hub != nil {
		resp.Realtime = h.hub.Count()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
