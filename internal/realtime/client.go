package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub    *Hub
	ws     *websocket.Conn
	userID string
	send   chan []byte
	// done is closed by the hub when the client is removed.
	done chan struct{}
}

func (c *client) readPump() {
	defer c.hub.remove(c)

	pongWait := 2 * c.hub.pingInterval
	c.ws.SetReadLimit(maxInboundMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Inbound frames carry nothing; reading keeps control frames flowing.
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.log.Debug().Err(err).Str("user_id", c.userID).Msg("realtime read ended")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.hub.writeTimeout)); err != nil {
				c.hub.remove(c)
				return
			}
		case <-c.done:
			c.drain()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.hub.writeTimeout))
			return
		}
	}
}

// drain flushes frames queued before removal so a closing client still sees
// everything broadcast to it.
func (c *client) drain() {
	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
