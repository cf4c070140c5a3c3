package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	googleauth "estimate-backend/internal/auth"
	"estimate-backend/internal/documents"
	"estimate-backend/internal/entitlement"
	"estimate-backend/internal/estimates"
	"estimate-backend/internal/shared/config"
	"estimate-backend/internal/shared/metrics"
	"estimate-backend/internal/shared/server/middleware"
	"estimate-backend/internal/shared/server/respond"
	"estimate-backend/internal/users"
)

// RouterDeps carries the handlers wired by bootstrap.
type RouterDeps struct {
	Config             config.Config
	DocumentsHandler   *documents.Handler
	EstimatesHandler   *estimates.Handler
	EntitlementHandler *entitlement.Handler
	UsersHandler       *users.Handler
	GoogleAuth         *googleauth.GoogleService
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(deps.Config.Env))
	// Generation drives a multi-minute external pipeline; give it a much
	// smaller budget than ordinary reads.
	authed.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			"GENERATE": {Rate: 0.1, Burst: 3},
			"DEFAULT":  {Rate: 5, Burst: 20},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && strings.HasSuffix(c.FullPath(), "/estimate") {
				return "GENERATE"
			}
			return "DEFAULT"
		},
	}))

	if deps.UsersHandler != nil {
		deps.UsersHandler.RegisterRoutes(authed)
	}
	if deps.DocumentsHandler != nil {
		deps.DocumentsHandler.RegisterRoutes(authed)
	}
	if deps.EstimatesHandler != nil {
		deps.EstimatesHandler.RegisterRoutes(authed)
	}
	if deps.EntitlementHandler != nil {
		deps.EntitlementHandler.RegisterRoutes(authed)
	}

	return r
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
