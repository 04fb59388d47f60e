package websocket

import (
	"context"
	"time"

	"chat-server/internal/config"
	"chat-server/internal/models"
	"chat-server/internal/realtime"
	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client binds one websocket connection to one realtime session.
type Client struct {
	hub     *realtime.Hub
	conn    *websocket.Conn
	session *realtime.Session
	cfg     config.RealtimeConfig
}

// NewClient registers a session for an authenticated user on the hub.
func NewClient(hub *realtime.Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: hub.Register(userID),
		cfg:     hub.Config(),
	}
}

func (c *Client) Session() *realtime.Session {
	return c.session
}

// ReadPump reads commands until the connection fails. A peer that stops
// answering pings hits the read deadline, which is handled exactly like a
// clean close.
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.Deregister(c.session.ID)
		c.conn.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket closed for %s: %v", c.session, err)
			}
			break
		}

		// Any inbound frame proves the peer is alive.
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.hub.HandleFrame(ctx, c.session, message)
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
// It stops as soon as the session is deregistered.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.session.Done():
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case ev := <-c.session.Events():
			if c.session.Closed() {
				return
			}
			data, err := models.EncodeEvent(ev)
			if err != nil {
				logger.Error("Error encoding %s event: %v", ev.EventType(), err)
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("Write error for %s: %v", c.session, err)
				c.hub.Deregister(c.session.ID)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Deregister(c.session.ID)
				return
			}
		}
	}
}
