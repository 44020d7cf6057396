// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ozstock/reseller-backend/internal/config"
	"github.com/ozstock/reseller-backend/internal/handlers"
	"github.com/ozstock/reseller-backend/internal/middleware"
	"github.com/ozstock/reseller-backend/internal/services"
	"github.com/ozstock/reseller-backend/internal/utils"
)

func Initialize(cfg *config.Config, syncService *services.SyncService, productService *services.ProductService) *gin.Engine {
	// Initialize handlers
	syncHandler := handlers.NewSyncHandler(syncService)
	productHandler := handlers.NewProductHandler(productService, syncService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired())
	{
		sync := v1.Group("/sync")
		{
			sync.POST("", middleware.SyncRateLimit(), syncHandler.StartSync)
			sync.POST("/:id/cancel", syncHandler.CancelSync)
			sync.GET("/:id", syncHandler.GetSyncStatus)
			sync.GET("/:id/logs", syncHandler.GetSyncLogs)
		}

		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/:id", productHandler.GetProduct)
			products.GET("/:id/price-history", productHandler.GetPriceHistory)
			products.POST("/import", middleware.ImportRateLimit(), productHandler.ImportProduct)
			products.POST("/deactivate", productHandler.DeactivateProducts)
		}
	}

	return r
}
