package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/examwatch/internal/api/handler"
	"github.com/timmy/examwatch/internal/api/middleware"
	"github.com/timmy/examwatch/internal/logger"
	"github.com/timmy/examwatch/internal/service"
)

// DrainSecretHeader authenticates POST /api/v1/notifications/drain.
const DrainSecretHeader = "X-Drain-Secret"

// RouterConfig carries the handlers and settings the router needs.
type RouterConfig struct {
	Mode           string
	HandoffSecret  string
	DrainSecret    string
	AllowedOrigins []string
	Logger         *logger.Logger

	Health        *handler.HealthHandler
	Pipeline      *handler.PipelineHandler
	Sources       *handler.SourceHandler
	Notifications *handler.NotificationHandler
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}))

	// Health check
	r.GET("/health", cfg.Health.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Pipeline, authenticated with the handoff secret
		pipeline := v1.Group("/pipeline", middleware.RequireSecret(service.HandoffSecretHeader, cfg.HandoffSecret))
		pipeline.POST("/handoff", cfg.Pipeline.Handoff)
		pipeline.POST("/events/:id/retry", cfg.Pipeline.RetryEvent)
		pipeline.GET("/events", cfg.Pipeline.ListEvents)

		sources := v1.Group("/sources", middleware.RequireSecret(service.HandoffSecretHeader, cfg.HandoffSecret))
		sources.GET("/:id/runs", cfg.Sources.ListRuns)

		// Notifications
		v1.POST("/notifications/drain",
			middleware.RequireSecret(DrainSecretHeader, cfg.DrainSecret),
			cfg.Notifications.Drain)
	}

	return r
}
