// Package handlers provides HTTP API request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-console/backend/internal/model"
	"github.com/agent-console/backend/internal/store"
	"github.com/agent-console/backend/internal/tab"
)

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope for API responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// SessionsHandler serves read-only saved-session listings for tooling that
// is not on the WebSocket channel.
type SessionsHandler struct {
	store    *store.SessionStore
	registry *tab.Registry
}

// NewSessionsHandler creates a SessionsHandler.
func NewSessionsHandler(sessionStore *store.SessionStore, registry *tab.Registry) *SessionsHandler {
	return &SessionsHandler{store: sessionStore, registry: registry}
}

// List handles GET /api/sessions. Sessions whose identifier matches a
// currently open tab are excluded, matching the WebSocket listing rule.
func (h *SessionsHandler) List(c *gin.Context) {
	sessions, err := h.store.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list sessions: "+err.Error())
		return
	}

	open := h.registry.OpenSessionIDs()
	available := make([]model.SavedSession, 0, len(sessions))
	for _, s := range sessions {
		if !open[s.ID] {
			available = append(available, s)
		}
	}

	c.JSON(http.StatusOK, gin.H{"sessions": available})
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.List)
}
