// Package operator serves the authenticated operator panel API.
package operator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/api/apierr"
	"github.com/liliang-cn/helpdesk/internal/api/middleware"
	"github.com/liliang-cn/helpdesk/internal/domain"
)

const streamKeepAlive = 25 * time.Second

// EscalationService is the operator side of the ticket store
type EscalationService interface {
	Get(ctx context.Context, id string) (*domain.Escalation, error)
	List(ctx context.Context, filter domain.EscalationFilter) (*domain.EscalationListResponse, error)
	Reply(ctx context.Context, operator *domain.Principal, req *domain.OperatorReplyRequest) (*domain.OperatorReplyResponse, error)
	SetStatus(ctx context.Context, operator *domain.Principal, id, status string) (*domain.Escalation, error)
}

// LoginService exchanges credentials for a token
type LoginService interface {
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
}

// Subscriber delivers ticket events until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan *domain.TicketEvent, string)
}

// Handler handles operator API requests
type Handler struct {
	escalations EscalationService
	login       LoginService
	events      Subscriber
	logger      *zap.Logger
}

// NewHandler creates a new operator handler
func NewHandler(escalations EscalationService, login LoginService, events Subscriber, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		escalations: escalations,
		login:       login,
		events:      events,
		logger:      logger,
	}
}

// RegisterPublicRoutes registers routes reachable without a token
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)
}

// RegisterRoutes registers routes behind operator authentication
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	escalations := r.Group("/escalations")
	{
		escalations.GET("", h.ListEscalations)
		escalations.GET("/stream", h.Stream)
		escalations.GET("/:id", h.GetEscalation)
		escalations.POST("/:id/status", h.SetStatus)
	}
	r.POST("/reply", h.Reply)
}

func (h *Handler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	resp, err := h.login.Login(c.Request.Context(), &req)
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListEscalations(c *gin.Context) {
	var filter domain.EscalationFilter

	if s := c.Query("status"); s != "" {
		status, err := domain.ParseStatus(s)
		if err != nil {
			apierr.Write(c, h.logger, err)
			return
		}
		filter.Status = status
	}

	var err error
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	resp, err := h.escalations.List(c.Request.Context(), filter)
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetEscalation(c *gin.Context) {
	esc, err := h.escalations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, esc)
}

func (h *Handler) Reply(c *gin.Context) {
	var req domain.OperatorReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	resp, err := h.escalations.Reply(c.Request.Context(), middleware.Principal(c), &req)
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SetStatus(c *gin.Context) {
	var req domain.StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Write(c, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	esc, err := h.escalations.SetStatus(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.Status)
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, esc)
}

// Stream pushes ticket events to the panel (SSE) until the client leaves
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	events, subID := h.events.Subscribe(ctx)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	h.logger.Debug("operator stream opened", zap.String("subscriber", subID))

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	// Flush headers so EventSource clients see the connection open
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("ticket", event)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", strconv.FormatInt(time.Now().Unix(), 10))
			return true
		}
	})

	h.logger.Debug("operator stream closed", zap.String("subscriber", subID))
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidRequest, key)
	}
	return n, nil
}
