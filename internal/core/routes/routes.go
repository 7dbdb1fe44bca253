package routes

import (
	"substock/internal/core/container"
	"substock/internal/middleware"
	"substock/pkg/security"

	"github.com/gin-gonic/gin"
)

func RegisterProtectedRoutes(router *gin.Engine, container *container.Container, jwtSecret []byte, limiter *middleware.RateLimiter) {
	protectedRoutes := router.Group("")
	protectedRoutes.Use(security.JWTMiddleware(jwtSecret), middleware.RateLimitMiddleware(limiter))

	container.StockHandler.RegisterRoutes(protectedRoutes)
	container.TransferHandler.RegisterRoutes(protectedRoutes)
	container.BatchHandler.RegisterRoutes(protectedRoutes)
	container.CatalogHandler.RegisterRoutes(protectedRoutes)
	container.DepartmentHandler.RegisterRoutes(protectedRoutes)
	container.QueryHandler.RegisterRoutes(protectedRoutes)
}

func RegisterUtilityRoutes(router *gin.Engine, db middleware.Pinger) {
	router.GET("/health", middleware.HealthCheckMiddleware(db))
}
