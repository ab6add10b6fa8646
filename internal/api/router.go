package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/api/handlers"
	"github.com/jafarshop/tablepos/internal/api/middleware"
	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/metrics"
	"github.com/jafarshop/tablepos/internal/repository"
)

// Dependencies are the components the HTTP surface calls into
type Dependencies struct {
	Submitter       handlers.OrderSubmitter
	Orders          handlers.OrderStore
	Verifier        handlers.SlipVerifier
	Sync            handlers.SyncRunner
	Connectivity    handlers.ConnectivitySwitch
	IdempotencyKeys repository.IdempotencyKeyRepository
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(customRecovery(logger))
	router.Use(loggingMiddleware(logger))
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "Table POS API",
			"endpoints": []string{
				"GET /health",
				"GET /metrics",
				"POST /v1/orders",
				"GET /v1/orders",
				"GET /v1/orders/:id",
				"POST /v1/orders/:id/cancel",
				"GET /v1/orders/:id/promptpay",
				"POST /v1/orders/:id/payment-proof",
				"GET /v1/promptpay",
				"GET /v1/sync/status",
				"POST /v1/sync",
				"POST /v1/connectivity/:state",
			},
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	target := cfg.PromptPay.MerchantTarget

	v1 := router.Group("/v1")
	{
		orders := v1.Group("/orders")
		{
			create := handlers.HandleCreateOrder(deps.Submitter, deps.Orders, deps.IdempotencyKeys, logger)
			if deps.IdempotencyKeys != nil {
				orders.POST("", middleware.IdempotencyMiddleware(deps.IdempotencyKeys, logger), create)
			} else {
				orders.POST("", create)
			}
			orders.GET("", handlers.HandleListOrders(deps.Orders, logger))
			orders.GET("/:id", handlers.HandleGetOrder(deps.Orders, logger))
			orders.POST("/:id/cancel", handlers.HandleCancelOrder(deps.Orders, logger))
			orders.GET("/:id/promptpay", handlers.HandleOrderPromptPay(deps.Orders, target, logger))
			orders.POST("/:id/payment-proof", handlers.HandlePaymentProof(deps.Orders, deps.Verifier, logger))
		}

		v1.GET("/promptpay", handlers.HandlePromptPay(target, logger))

		v1.GET("/sync/status", handlers.HandleSyncStatus(deps.Sync))
		v1.POST("/sync", handlers.HandleSync(deps.Sync, logger))
		v1.POST("/connectivity/:state", handlers.HandleConnectivity(deps.Connectivity, logger))
	}

	return router
}

// customRecovery is a custom recovery middleware that logs panics
func customRecovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal server error",
			"details": fmt.Sprintf("%v", recovered),
		})
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
