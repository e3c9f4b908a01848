// Package handler exposes the portal over HTTP and WebSocket.
package handler

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/auth"
	"campusfix/backend/internal/blob"
	"campusfix/backend/internal/chathub"
	"campusfix/backend/internal/complaint"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "userID"

var errHubDisabled = errors.New("chat hub is not running")

type Handler struct {
	Auth       *auth.Provider
	Complaints *complaint.Service
	Chat       *chathub.Service
	Hub        *chathub.ManagerService
	Blobs      blob.Store
	Log        *zap.Logger
}

func NewHandler(a *auth.Provider, complaints *complaint.Service, chat *chathub.Service, hub *chathub.ManagerService, blobs blob.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if blobs == nil {
		blobs = blob.Disabled{}
	}
	return &Handler{Auth: a, Complaints: complaints, Chat: chat, Hub: hub, Blobs: blobs, Log: log}
}

// Router wires every route. An empty origins list allows any origin.
func (h *Handler) Router(origins []string) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(h.Log), gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: len(origins) > 0,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	r.POST("/api/auth/sign-in", h.SignIn)

	api := r.Group("/api", h.AuthMiddleware())
	{
		api.GET("/auth/me", h.Me)

		api.POST("/complaints", h.CreateComplaint)
		api.GET("/complaints", h.ListComplaints)
		api.GET("/complaints/:id", h.GetComplaint)
		api.POST("/complaints/:id/assign", h.AssignComplaint)
		api.PATCH("/complaints/:id/status", h.UpdateStatus)
		api.POST("/complaints/:id/notes", h.AddNote)
		api.GET("/complaints/:id/notes", h.ListNotes)
		api.POST("/complaints/:id/messages", h.PostMessage)
		api.GET("/complaints/:id/messages", h.ListMessages)
		api.GET("/complaints/:id/ws", h.ServeWebSocket)

		api.POST("/admin/users", h.CreateUser)
		api.GET("/admin/users", h.ListUsers)

		api.GET("/stats", h.Stats)
	}
	return r
}

// writeError maps an error to its status code and a public message.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError || kind == apperr.KindUpstream {
		h.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.PublicMessage(err)})
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
