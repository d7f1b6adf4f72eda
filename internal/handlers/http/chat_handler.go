package http

import (
	"net/http"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService ports.ChatService
	provider    ports.ConnectionProvider
}

func NewChatHandler(chatService ports.ChatService, provider ports.ConnectionProvider) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		provider:    provider,
	}
}

func (h *ChatHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/conversations/:id", h.GetConversation)
	api.POST("/conversations/:id/messages", h.SendMessage)
	api.POST("/conversations/:id/typing", h.SetTyping)
	api.GET("/conversations/:id/typing", h.GetTyping)
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	id := domain.ConversationID(c.Param("id"))

	conv, err := h.chatService.LoadConversation(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
	})
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	// LocalOnly stores the message without sending it.
	LocalOnly bool `json:"localOnly"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	id := domain.ConversationID(c.Param("id"))

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("content is required"))
		return
	}

	var (
		msg *domain.ChatMessage
		err error
	)
	if req.LocalOnly {
		msg, err = h.chatService.AppendLocalMessage(c.Request.Context(), id, req.Content)
	} else {
		msg, err = h.chatService.SendChatMessage(c.Request.Context(), id, req.Content)
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": msg,
	})
}

type TypingRequest struct {
	Typing bool `json:"typing"`
}

func (h *ChatHandler) SetTyping(c *gin.Context) {
	id := domain.ConversationID(c.Param("id"))

	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	conv, err := h.chatService.LoadConversation(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	status, err := h.provider.SendTyping(c.Request.Context(), id, conv.ParticipantID, req.Typing)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"delivery": status,
	})
}

func (h *ChatHandler) GetTyping(c *gin.Context) {
	id := domain.ConversationID(c.Param("id"))

	c.JSON(http.StatusOK, gin.H{
		"conversationId": id,
		"users":          h.chatService.TypingUsers(id),
	})
}
