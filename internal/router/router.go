package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/lab-api/internal/handler/prometheus"
	"github.com/jwalitptl/lab-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine     *gin.Engine
	auth       *middleware.AuthMiddleware
	healthH    Handler
	labTestH   Handler
	techH      Handler
	requestH   Handler
	prometheus *prometheus.Handler
}

type RouterConfig struct {
	Release        bool
	RequestTimeout time.Duration
	CORSConfig     middleware.CORSConfig
	RateLimit      bool
	RateLimitRPS   rate.Limit
	RateBurst      int
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH Handler,
	labTestH Handler,
	techH Handler,
	requestH Handler,
	prom *prometheus.Handler,
	config RouterConfig,
) *Router {
	if config.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	r := &Router{
		engine:     engine,
		auth:       auth,
		healthH:    healthH,
		labTestH:   labTestH,
		techH:      techH,
		requestH:   requestH,
		prometheus: prom,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		prom.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
	)

	if config.RateLimit {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimitRPS,
			Burst: config.RateBurst,
		})
		engine.Use(limiter.RateLimit())
	}

	timeout := middleware.DefaultTimeoutConfig()
	if config.RequestTimeout > 0 {
		timeout.Duration = config.RequestTimeout
	}
	engine.Use(middleware.Timeout(timeout))

	return r
}

func (r *Router) Setup() {
	r.engine.GET("/metrics", r.prometheus.Handler())

	api := r.engine.Group("/api/v1")

	// Health check endpoints
	r.healthH.RegisterRoutes(api)

	// Protected routes
	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.labTestH.RegisterRoutes(protected)
	r.techH.RegisterRoutes(protected)
	r.requestH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
