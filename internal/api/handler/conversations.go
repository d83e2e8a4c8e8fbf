package handler

import (
	"fmt"
	"freelynx/backend/internal/models"
	"freelynx/backend/internal/storage"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ListConversations returns the caller's conversations, newest activity first.
func (h *Handler) ListConversations(c *gin.Context) {
	userID := currentUser(c)
	items, err := h.Storage.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	for i := range items {
		for _, p := range items[i].Participants {
			if p.ID != userID && h.Hub.Presence.IsOnline(p.ID) {
				items[i].Online = true
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": items})
}

type initRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
}

// InitConversation returns the conversation between the caller and the
// receiver, creating it on first contact.
func (h *Handler) InitConversation(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, fmt.Errorf("%w: receiverId is required", models.ErrValidation))
		return
	}

	conv, created, err := h.Storage.FindOrCreateConversation(c.Request.Context(), currentUser(c), req.ReceiverID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"conversation": conv, "created": created})
}

// ListMessages pages through a conversation's history. order=recent (the
// default) returns the newest page; order=forward walks from the beginning.
// Both return messages oldest first.
func (h *Handler) ListMessages(c *gin.Context) {
	q, err := parsePageQuery(c)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	messages, err := h.Storage.PageMessages(c.Request.Context(), c.Param("id"), currentUser(c), q)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "limit": q.Limit, "skip": q.Skip})
}

func parsePageQuery(c *gin.Context) (storage.PageQuery, error) {
	var q storage.PageQuery

	limit, err := intParam(c, "limit")
	if err != nil {
		return q, err
	}
	skip, err := intParam(c, "skip")
	if err != nil {
		return q, err
	}
	before, err := intParam(c, "before")
	if err != nil {
		return q, err
	}
	if skip < 0 || before < 0 {
		return q, fmt.Errorf("%w: skip and before must not be negative", models.ErrValidation)
	}

	switch c.DefaultQuery("order", "recent") {
	case "recent":
		q.Recent = true
	case "forward":
	default:
		return q, fmt.Errorf("%w: order must be recent or forward", models.ErrValidation)
	}

	q.Limit = storage.ClampLimit(limit)
	q.Skip = skip
	q.Before = uint(before)
	return q, nil
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, name)
	}
	return n, nil
}

type readRequest struct {
	UpTo uint `json:"upTo"`
}

// MarkRead records the caller as a reader of the conversation's messages up
// to upTo (all of them when upTo is 0).
func (h *Handler) MarkRead(c *gin.Context) {
	var req readRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.abortWithError(c, fmt.Errorf("%w: malformed body", models.ErrValidation))
			return
		}
	}

	conversationID := c.Param("id")
	updated, err := h.Storage.MarkRead(c.Request.Context(), conversationID, currentUser(c), req.UpTo)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ReadAck{ConversationID: conversationID, Updated: updated})
}

// GetPresence reports whether a user is online. The local registry is
// authoritative; the Redis mirror covers users connected elsewhere.
func (h *Handler) GetPresence(c *gin.Context) {
	userID := c.Param("userId")
	online := h.Hub.Presence.IsOnline(userID)
	if !online {
		mirrored, err := h.Storage.AreUsersOnline(c.Request.Context(), []string{userID})
		if err != nil {
			h.Logger.Warn("presence mirror lookup failed", "user_id", userID, "err", err)
		}
		online = mirrored[userID]
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": online})
}
