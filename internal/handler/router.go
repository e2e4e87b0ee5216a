package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GTDGit/pts_listener/internal/middleware"
)

// Handlers groups all HTTP handlers used by the status server.
type Handlers struct {
	Health  *HealthHandler
	Station *StationHandler
	SSE     *SSEHandler
}

// NewRouter builds the gin engine for the status surface.
func NewRouter(env string, corsHosts []string, handlers *Handlers) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(corsHosts))
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers)
	return router
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", handlers.Health.GetHealth)
		v1.GET("/systems", handlers.Station.ListSystems)
		v1.GET("/systems/:system/stations", handlers.Station.GetStations)
		v1.GET("/events/stream", handlers.SSE.Stream)
	}
}
