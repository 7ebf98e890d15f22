// Package widget serves the public end-user API used by the chat widget.
package widget

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/api/apierr"
	"github.com/liliang-cn/helpdesk/internal/domain"
)

// ChatService answers end-user turns
type ChatService interface {
	SendTurn(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error)
	Transcript(ctx context.Context, sessionID string) (*domain.TranscriptResponse, error)
}

// EscalationService opens and reports on tickets
type EscalationService interface {
	Create(ctx context.Context, req *domain.CreateEscalationRequest) (*domain.CreateEscalationResponse, error)
	Status(ctx context.Context, id string) (*domain.EscalationStatusResponse, error)
}

// FeedbackService accepts ratings without blocking
type FeedbackService interface {
	Submit(req *domain.FeedbackRequest) bool
}

// Handler handles widget API requests
type Handler struct {
	chat        ChatService
	escalations EscalationService
	feedback    FeedbackService
	logger      *zap.Logger
}

// NewHandler creates a new widget handler
func NewHandler(chat ChatService, escalations EscalationService, feedback FeedbackService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chat:        chat,
		escalations: escalations,
		feedback:    feedback,
		logger:      logger,
	}
}

// RegisterRoutes registers widget routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Chat)
	r.GET("/chat/sessions/:session_id/messages", h.Transcript)
	r.POST("/escalation", h.CreateEscalation)
	r.GET("/escalation/:escalation_id", h.EscalationStatus)
	r.POST("/feedback", h.Feedback)
}

// Chat handles one end-user turn
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	req.UserIP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	resp, err := h.chat.SendTurn(c.Request.Context(), &req)
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Transcript returns the canonical turns of a session
func (h *Handler) Transcript(c *gin.Context) {
	resp, err := h.chat.Transcript(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreateEscalation hands a session over to an operator
func (h *Handler) CreateEscalation(c *gin.Context) {
	var req domain.CreateEscalationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	resp, err := h.escalations.Create(c.Request.Context(), &req)
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// EscalationStatus reports the current status of a ticket
func (h *Handler) EscalationStatus(c *gin.Context) {
	resp, err := h.escalations.Status(c.Request.Context(), c.Param("escalation_id"))
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Feedback queues a rating. Acceptance is not confirmed to the caller.
func (h *Handler) Feedback(c *gin.Context) {
	var req domain.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	h.feedback.Submit(&req)
	c.Status(http.StatusAccepted)
}
