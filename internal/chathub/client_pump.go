package chathub

import (
	"context"
	"encoding/json"
	"freelynx/backend/internal/config"
	"freelynx/backend/internal/models"
	"time"

	"github.com/gorilla/websocket"
)

// readPump reads frames from the connection and hands them to the hub one at a
// time, so events of a single connection never interleave.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.Logger.Warn("websocket read failed", "conn_id", c.ID, "user_id", c.UserID, "err", err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.Hub.Logger.Debug("undecodable frame", "conn_id", c.ID, "err", err)
			c.Hub.replyError(c, "", "", models.ErrValidation, "")
			continue
		}

		// Events are not tied to the connection's lifetime: a send accepted
		// before a disconnect is still stored and broadcast.
		c.Hub.HandleEvent(context.Background(), c, env)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env := <-c.Send:
			if err := c.write(env); err != nil {
				return
			}

			// Flush whatever queued up meanwhile.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.write(<-c.Send); err != nil {
					return
				}
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) write(env models.Envelope) error {
	c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	if err := c.Conn.WriteJSON(env); err != nil {
		c.Hub.Logger.Debug("websocket write failed", "conn_id", c.ID, "err", err)
		return err
	}
	return nil
}
