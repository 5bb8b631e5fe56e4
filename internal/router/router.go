package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/physio-outreach/internal/middleware"
	"github.com/jwalitptl/physio-outreach/pkg/logger"
	"github.com/jwalitptl/physio-outreach/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	health   Handler
	outreach Handler
	metrics  *metrics.Metrics
	limiter  *middleware.RateLimiter
}

type RouterConfig struct {
	ServiceName string
	RateLimit   rate.Limit
	RateBurst   int
	ClientTTL   time.Duration
	// RateLimitEnabled guards the protected routes only.
	RateLimitEnabled bool
	HSTSMaxAge       int
}

// NewRouter wires the middleware chain. auth may be nil, which leaves the
// outreach routes open.
func NewRouter(
	log *logger.Logger,
	auth *middleware.AuthMiddleware,
	health Handler,
	outreach Handler,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		health:   health,
		outreach: outreach,
		metrics:  m,
	}
	if config.RateLimitEnabled {
		r.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:      config.RateLimit,
			Burst:     config.RateBurst,
			ClientTTL: config.ClientTTL,
		})
	}

	engine.Use(
		middleware.RequestID(),
		otelgin.Middleware(config.ServiceName),
		middleware.Logger(log),
		middleware.Recovery(log),
		r.metricsMiddleware(),
		middleware.SecurityHeaders(middleware.SecurityConfig{HSTSMaxAge: config.HSTSMaxAge}),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	r.health.RegisterRoutes(api)

	protected := api.Group("")
	if r.limiter != nil {
		protected.Use(r.limiter.RateLimit())
	}
	if r.auth != nil {
		protected.Use(r.auth.Authenticate())
	}
	r.outreach.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if r.metrics == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := fmt.Sprintf("%d", c.Writer.Status())
		r.metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		r.metrics.HTTPLatency.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
