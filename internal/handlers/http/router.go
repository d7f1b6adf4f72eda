package http

import (
	"campusconnect/internal/infrastructure/middleware"
	"campusconnect/pkg/config"
	apperrors "campusconnect/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers groups everything the agent router serves.
type Handlers struct {
	Chat    *ChatHandler
	Call    *CallHandler
	Session *SessionHandler
	Health  *HealthHandler
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

// NewRouter wires middleware and routes for the local agent.
func NewRouter(cfg *config.Config, h Handlers, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.TracingMiddleware(),
		middleware.RequestLoggingMiddleware(logger.Desugar(), cfg.Client.UserID),
		middleware.ErrorHandlerMiddleware(logger),
	)

	router.NoRoute(func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFoundError("route"))
	})

	h.Health.SetupRoutes(router)
	if h.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	api.Use(
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.AgentAuthMiddleware(cfg.Agent.AuthToken),
	)
	h.Chat.SetupRoutes(api)
	h.Call.SetupRoutes(api)
	h.Session.SetupRoutes(api)

	return router
}
