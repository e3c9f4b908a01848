package handler

import (
	"campusfix/backend/internal/apperr"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware resolves the bearer token to a user id and checks that the
// profile still exists. Browsers cannot set headers on a WebSocket upgrade,
// so a "token" query parameter is accepted too.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				h.writeError(c, apperr.Unauthorized("invalid authorization header"))
				return
			}
			token = strings.TrimSpace(parts[1])
		}

		userID, err := h.Auth.CurrentUser(token)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if _, err := h.Complaints.Actor(c.Request.Context(), userID); err != nil {
			h.writeError(c, err)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if userID := c.GetString(userIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if c.Writer.Status() >= 500 {
			log.Error("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}
