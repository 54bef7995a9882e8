package api

import (
	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/internal/api/handlers"
	"github.com/amiyamandal-dev/feedsync/internal/api/middleware"
	"github.com/amiyamandal-dev/feedsync/internal/auth"
	"github.com/amiyamandal-dev/feedsync/internal/config"
	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// Router sets up the HTTP router with all routes and middleware
type Router struct {
	engine         *gin.Engine
	feedHandler    *handlers.FeedHandler
	messageHandler *handlers.MessageHandler
	socketHandler  *handlers.SocketHandler
	healthHandler  *handlers.HealthHandler
	jwtManager     *auth.JWTManager
	limiter        *middleware.RateLimiter
	cfg            *config.Config
	logger         *logger.Logger
}

// NewRouter creates a new router
func NewRouter(
	feedHandler *handlers.FeedHandler,
	messageHandler *handlers.MessageHandler,
	socketHandler *handlers.SocketHandler,
	healthHandler *handlers.HealthHandler,
	jwtManager *auth.JWTManager,
	cfg *config.Config,
	logger *logger.Logger,
) *Router {
	return &Router{
		feedHandler:    feedHandler,
		messageHandler: messageHandler,
		socketHandler:  socketHandler,
		healthHandler:  healthHandler,
		jwtManager:     jwtManager,
		cfg:            cfg,
		logger:         logger,
	}
}

// Setup configures all routes and middleware
func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.cfg.Server.Mode)

	r.engine = gin.New()
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.CORSMiddleware(r.cfg.CORS.AllowedOrigins))
	r.engine.Use(middleware.LoggerMiddleware(r.logger))

	// Health check endpoints (no rate limiting, no auth)
	r.engine.GET("/health", r.healthHandler.Health)
	r.engine.GET("/health/ready", r.healthHandler.Readiness)
	r.engine.GET("/health/live", r.healthHandler.Liveness)

	r.limiter = middleware.NewRateLimiter(middleware.EffectiveLimit(
		r.cfg.RateLimit.RequestsPerMinute,
		r.cfg.RateLimit.Burst,
	))
	authenticated := []gin.HandlerFunc{
		middleware.RateLimitMiddleware(r.limiter),
		middleware.AuthMiddleware(r.jwtManager, r.cfg.Auth.PublicKeys),
	}

	v1 := r.engine.Group("/v1", authenticated...)
	{
		users := v1.Group("/users/:user_id")
		{
			users.GET("/feeds/:feed_id", r.feedHandler.Get)
			users.POST("/feeds/:feed_id/messages", r.feedHandler.CreateMessage)
		}

		messages := v1.Group("/messages")
		{
			messages.POST("/batch/:action", r.messageHandler.BatchUpdateStatus)
			messages.PUT("/:id/:action", r.messageHandler.UpdateStatus)
			messages.DELETE("/:id/:action", r.messageHandler.UpdateStatus)
		}
	}

	r.engine.GET(r.cfg.Socket.Path, append(authenticated, r.socketHandler.Connect)...)

	return r.engine
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	if r.engine == nil {
		return r.Setup()
	}
	return r.engine
}

// Close releases background resources held by the middleware
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Stop()
	}
}
