package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/api/middleware"
	"github.com/liliang-cn/helpdesk/internal/api/operator"
	"github.com/liliang-cn/helpdesk/internal/api/widget"
	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/metrics"
)

// HealthChecker reports service health
type HealthChecker interface {
	Check(ctx context.Context) *domain.HealthResponse
}

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigins   []string
	CORSMaxAge     time.Duration
	MetricsEnabled bool
	MetricsPath    string
	// RateLimiter guards the public routes when set
	RateLimiter *middleware.RateLimiter
}

// Services groups the handler dependencies
type Services struct {
	Widget   *widget.Handler
	Operator *operator.Handler
	Auth     middleware.Authenticator
	Health   HealthChecker
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		MaxAge:       cfg.CORSMaxAge,
	}))

	r.GET("/api/health", func(c *gin.Context) {
		resp := svc.Health.Check(c.Request.Context())
		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	})

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(metrics.Handler()))
	}

	// End-user API (public, session token is the capability)
	public := r.Group("/api")
	if cfg.RateLimiter != nil {
		public.Use(cfg.RateLimiter.Middleware())
	}
	svc.Widget.RegisterRoutes(public)

	// Operator API
	operatorGroup := r.Group("/api/operator")
	svc.Operator.RegisterPublicRoutes(operatorGroup)
	authed := operatorGroup.Group("")
	authed.Use(middleware.Auth(svc.Auth))
	svc.Operator.RegisterRoutes(authed)

	return r
}
