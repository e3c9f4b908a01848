package handler

import (
	"campusfix/backend/internal/auth"
	"campusfix/backend/internal/models"
	"net/http"

	"github.com/gin-gonic/gin"
)

type signInRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SignIn exchanges credentials for a token.
func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "username and password are required")
		return
	}

	userID, token, err := h.Auth.SignIn(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": userID})
}

// Me returns the caller's profile.
func (h *Handler) Me(c *gin.Context) {
	profile, err := h.Complaints.Actor(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// CreateUser lets an admin add a profile.
func (h *Handler) CreateUser(c *gin.Context) {
	var req auth.NewUser
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	profile, err := h.Auth.Register(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, profile)
}

// ListUsers lists profiles, narrowed by ?role= when given.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Auth.ListUsers(c.Request.Context(), currentUserID(c), models.Role(c.Query("role")))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}
