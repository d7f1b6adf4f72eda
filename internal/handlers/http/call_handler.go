package http

import (
	"net/http"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callService ports.CallService
}

func NewCallHandler(callService ports.CallService) *CallHandler {
	return &CallHandler{callService: callService}
}

func (h *CallHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/calls", h.StartCall)
	api.GET("/calls/current", h.GetCurrent)
	api.POST("/calls/current/accept", h.Accept)
	api.POST("/calls/current/hangup", h.Hangup)
	api.POST("/calls/current/toggles/:name", h.Toggle)
}

type StartCallRequest struct {
	PeerID  domain.UserID `json:"peerId" binding:"required"`
	IsVideo bool          `json:"isVideo"`
}

func (h *CallHandler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("peerId is required"))
		return
	}

	call, err := h.callService.StartCall(c.Request.Context(), req.PeerID, req.IsVideo)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"call": call,
	})
}

func (h *CallHandler) GetCurrent(c *gin.Context) {
	call, ok := h.callService.Current()
	if !ok {
		c.Error(domain.ErrNoActiveCall)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call": call,
	})
}

func (h *CallHandler) Accept(c *gin.Context) {
	call, err := h.callService.Accept(c.Request.Context())
	h.respond(c, call, err)
}

func (h *CallHandler) Hangup(c *gin.Context) {
	call, err := h.callService.Hangup(c.Request.Context())
	h.respond(c, call, err)
}

func (h *CallHandler) Toggle(c *gin.Context) {
	call, err := h.callService.Toggle(c.Param("name"))
	h.respond(c, call, err)
}

func (h *CallHandler) respond(c *gin.Context, call domain.CallSnapshot, err error) {
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call": call,
	})
}
