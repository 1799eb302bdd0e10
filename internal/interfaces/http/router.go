package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/interfaces/http/middleware"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// RouterConfig aggregates all handler and middleware dependencies required
// to construct the complete HTTP route tree.
type RouterConfig struct {
	// Handlers
	ExplorationHandler *handlers.ExplorationHandler
	HealthHandler      *handlers.HealthHandler

	// Middleware
	APIKey      string
	RateLimiter middleware.RateLimiter
	MaxBodySize int64
	Logging     *middleware.LoggingConfig

	// Infrastructure
	Logger           logging.Logger
	Metrics          *prometheus.ExplorerMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
}

// NewRouter builds the gin engine: global middleware, public probes and
// metrics, and the authenticated /api/v1 group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// --- Global middleware (applied to every request) ---
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing())
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	logCfg := middleware.DefaultLoggingConfig()
	if cfg.Logging != nil {
		logCfg = *cfg.Logging
	}
	r.Use(middleware.RequestLogging(logger, logCfg))
	r.Use(middleware.BodyLimit(cfg.MaxBodySize))

	r.NoRoute(func(c *gin.Context) {
		middleware.RespondError(c, errors.New(errors.CodeNotFound, "route not found"))
	})
	r.NoMethod(func(c *gin.Context) {
		middleware.RespondStatus(c, 405, errors.CodeInvalidParam, "method not allowed")
	})

	// --- Public endpoints (no auth) ---
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	// --- API v1 ---
	api := r.Group("/api/v1")
	api.Use(middleware.APIKeyAuth(cfg.APIKey, logger))
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	if cfg.ExplorationHandler != nil {
		cfg.ExplorationHandler.RegisterRoutes(api)
	}

	return r
}

//Personal.AI order the ending
