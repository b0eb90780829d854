package router

import (
	"github.com/gin-gonic/gin"

	"contaluz/internal/handler"
	"contaluz/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(extractH *handler.ExtractHandler, healthH *handler.HealthHandler, rps float64, burst int) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())

	r.GET("/health", healthH.Health)

	r.POST("/extract/energy", middleware.RateLimit(rps, burst), extractH.Extract)

	return r
}
