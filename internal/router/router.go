package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/quiet-hours/internal/middleware"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
	"github.com/jwalitptl/quiet-hours/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	metrics *metrics.Metrics
	config  RouterConfig

	health     interface{ RegisterRoutes(gin.IRoutes) }
	prometheus gin.HandlerFunc
	cron       Handler
	protected  []Handler
}

type RouterConfig struct {
	RateLimit   rate.Limit
	RateBurst   int
	CronSecret  string
	MaxBodySize int64
}

// Routes groups the handlers mounted by Setup.
type Routes struct {
	Health     interface{ RegisterRoutes(gin.IRoutes) }
	Prometheus gin.HandlerFunc
	Cron       Handler
	// Protected handlers require a user bearer token.
	Protected []Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	routes Routes,
	log *logger.Logger,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:     engine,
		auth:       auth,
		metrics:    m,
		config:     config,
		health:     routes.Health,
		prometheus: routes.Prometheus,
		cron:       routes.Cron,
		protected:  routes.Protected,
	}

	if config.MaxBodySize <= 0 {
		r.config.MaxBodySize = middleware.DefaultMaxBodySize
	}

	// Add core middlewares
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		r.metricsMiddleware(),
		middleware.Recovery(log),
		middleware.SecurityHeaders(),
		middleware.ErrorHandler(log),
		middleware.Validation(),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	if r.health != nil {
		r.health.RegisterRoutes(r.engine)
	}
	if r.prometheus != nil {
		r.engine.GET("/metrics", r.prometheus)
	}

	api := r.engine.Group("/api/v1")
	api.Use(middleware.SizeLimit(r.config.MaxBodySize))

	if r.cron != nil {
		cron := api.Group("/cron")
		cron.Use(middleware.CronAuth(r.config.CronSecret))
		r.cron.RegisterRoutes(cron)
	}

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	for _, h := range r.protected {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		r.metrics.HTTPLatency.WithLabelValues(c.Request.Method, path).Observe(duration)
		r.metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
