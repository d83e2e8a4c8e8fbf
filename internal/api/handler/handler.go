package handler

import (
	"errors"
	"freelynx/backend/internal/auth"
	"freelynx/backend/internal/chathub"
	"freelynx/backend/internal/models"
	"freelynx/backend/internal/storage"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler serves the REST and websocket boundary on top of the chat hub.
type Handler struct {
	Hub     *chathub.ManagerService
	Storage storage.Storage
	Auth    *auth.Service
	Logger  *slog.Logger
}

func NewHandler(hub *chathub.ManagerService, s storage.Storage, authSvc *auth.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Hub: hub, Storage: s, Auth: authSvc, Logger: logger.With("component", "api")}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api")
	api.POST("/auth/token", h.IssueToken)

	authed := api.Group("", h.RequireAuth())
	authed.GET("/conversations", h.ListConversations)
	authed.POST("/conversations/init", h.InitConversation)
	authed.GET("/conversations/:id/messages", h.ListMessages)
	authed.POST("/conversations/:id/read", h.MarkRead)
	authed.GET("/presence/:userId", h.GetPresence)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"online":      h.Hub.Presence.Count(),
		"connections": h.Hub.Connections(),
	})
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error response. Internal errors are logged and
// hidden from the caller.
func (h *Handler) abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": models.Code(err)})
}
