package handler

import (
	"fmt"
	"freelynx/backend/internal/models"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const userIDKey = "user_id"

type tokenRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Avatar string `json:"avatar"`
}

// IssueToken creates a new user with a server-generated id and returns a
// signed token for it. It stands in for the marketplace account service, which
// owns real sign-in, so it never issues tokens for existing users.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, fmt.Errorf("%w: name is required", models.ErrValidation))
		return
	}
	if req.UserID != "" {
		h.abortWithError(c, fmt.Errorf("%w: userId is assigned by the server", models.ErrValidation))
		return
	}

	user := &models.User{
		ID:     uuid.New().String(),
		Name:   req.Name,
		Email:  req.Email,
		Role:   req.Role,
		Avatar: req.Avatar,
	}
	if err := h.Storage.CreateUser(c.Request.Context(), user); err != nil {
		h.abortWithError(c, err)
		return
	}

	token, err := h.Auth.GenerateToken(user.ID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// bearerToken extracts the token from the Authorization header, falling back
// to the token query parameter browsers use for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return c.Query("token")
}

// authenticate resolves the caller's user id or aborts with 401.
func (h *Handler) authenticate(c *gin.Context) (string, bool) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
		return "", false
	}
	userID, err := h.Auth.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return "", false
	}
	return userID, true
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
