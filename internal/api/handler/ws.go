package handler

import (
	"freelynx/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket authenticates the caller and upgrades the request to a live
// connection bound to that identity.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Logger.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, userID)
	h.Hub.Register(client)
}
