package server

import (
	"github.com/gin-gonic/gin"

	"document-backend/internal/shared/config"
	"document-backend/internal/shared/metrics"
	"document-backend/internal/shared/server/middleware"
)

// RouteRegistrar attaches a feature's routes to a router group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, registrars ...RouteRegistrar) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Metrics(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	for _, reg := range registrars {
		if reg != nil {
			reg.RegisterRoutes(&r.RouterGroup)
		}
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
