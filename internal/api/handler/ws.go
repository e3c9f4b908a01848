package handler

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin; the token parameter authenticates the caller.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades a participant's request to a live connection on
// the complaint's thread.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	if h.Hub == nil {
		h.writeError(c, apperr.Upstream("live chat unavailable", errHubDisabled))
		return
	}
	complaintID, userID := c.Param("id"), currentUserID(c)
	if err := h.Chat.CanWatch(c.Request.Context(), complaintID, userID); err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Hub, h.Chat, userID, complaintID, h.Log)
	h.Hub.Register(client)
}
