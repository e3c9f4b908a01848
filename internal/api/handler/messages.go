package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) PostMessage(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	msg, err := h.Chat.PostMessage(c.Request.Context(), c.Param("id"), currentUserID(c), req.Body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns the thread. ?since= (RFC 3339) returns only newer
// messages, which is how clients poll when live push is unavailable.
func (h *Handler) ListMessages(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.badRequest(c, "since must be an RFC 3339 timestamp")
			return
		}
		since = &t
	}

	msgs, err := h.Chat.ListMessages(c.Request.Context(), c.Param("id"), currentUserID(c), since)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
