package http

import (
	"net/http"
	"strings"

	"campusconnect/internal/core/ports"
	"campusconnect/internal/infrastructure/tokenstore"
	"campusconnect/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SessionHandler manages the stored credential and reports connectivity.
// A new token is presented the next time the connection is acquired.
type SessionHandler struct {
	tokens   ports.TokenStore
	provider ports.ConnectionProvider
}

func NewSessionHandler(tokens ports.TokenStore, provider ports.ConnectionProvider) *SessionHandler {
	return &SessionHandler{
		tokens:   tokens,
		provider: provider,
	}
}

func (h *SessionHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/connection", h.GetConnection)
	api.PUT("/session/token", h.SetToken)
	api.DELETE("/session/token", h.ClearToken)
}

func (h *SessionHandler) GetConnection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":     h.provider.State().String(),
		"connected": h.provider.IsConnected(),
	})
}

type SetTokenRequest struct {
	Token string `json:"token" binding:"required,max=8192"`
}

func (h *SessionHandler) SetToken(c *gin.Context) {
	var req SetTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("token is required"))
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		c.Error(errors.NewInvalidInputError("token is required"))
		return
	}

	if err := h.tokens.SetToken(c.Request.Context(), token); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to store token", http.StatusInternalServerError))
		return
	}

	resp := gin.H{"stored": true}
	if exp := tokenstore.ExpiresAt(token); !exp.IsZero() {
		resp["expiresAt"] = exp
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) ClearToken(c *gin.Context) {
	if err := h.tokens.Clear(c.Request.Context()); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to clear token", http.StatusInternalServerError))
		return
	}
	c.Status(http.StatusNoContent)
}
