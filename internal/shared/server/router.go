package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chartyap-backend/internal/services/health"
	"chartyap-backend/internal/session"
	"chartyap-backend/internal/shared/config"
	"chartyap-backend/internal/shared/metrics"
	"chartyap-backend/internal/shared/server/middleware"
	"chartyap-backend/internal/shared/server/respond"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupPolling = "POLLING"
	rateGroupUpload  = "UPLOAD"
	rateGroupRender  = "RENDER"
	rateGroupStream  = "STREAM"
	rateGroupPublic  = "PUBLIC"
)

var publicPaths = []string{"/api/v1/health", "/api/v1/health/analysis"}

// RouterDeps are the handlers the router mounts.
type RouterDeps struct {
	Config         config.Config
	SessionHandler *session.Handler
	Health         *health.Service
	RateLimiter    *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Session(publicPaths...),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: rateGroupDefault,
			GroupFor:     rateGroupFor,
			Limiter:      deps.RateLimiter,
			Rules: map[string]middleware.RateLimitRule{
				rateGroupDefault: {Rate: 5, Burst: 20},
				rateGroupPolling: {Rate: 10, Burst: 40},
				rateGroupUpload:  {Rate: 1, Burst: 5},
				rateGroupRender:  {Rate: 4, Burst: 16},
				rateGroupStream:  {Rate: 0.5, Burst: 4},
			},
		}),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil)
	}
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, healthSvc.Status())
	})
	api.GET("/health/analysis", func(c *gin.Context) {
		payload, ok := healthSvc.AnalysisStatus(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, payload)
	})

	if deps.SessionHandler != nil {
		deps.SessionHandler.RegisterRoutes(api)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case path == "/api/v1/health" || path == "/api/v1/health/analysis":
		return rateGroupPublic
	case path == "/api/v1/session/events":
		return rateGroupStream
	case strings.HasPrefix(path, "/api/v1/staging/") && c.Request.Method == http.MethodPost:
		return rateGroupUpload
	case strings.HasSuffix(path, "/image") || path == "/api/v1/staging/style/preview":
		return rateGroupRender
	case c.Request.Method == http.MethodGet:
		return rateGroupPolling
	default:
		return rateGroupDefault
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
