package webhook_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qrpay-reconciler/internal/webhook_gateway/handler"
	"github.com/qrpay-reconciler/internal/webhook_gateway/middleware"
)

// setupRouter configures API routes and middleware for the gateway
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	webhookHandler *handler.WebhookHandler,
	qrHandler *handler.QRHandler,
	reconHandler *handler.ReconciliationHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Bank-facing webhook surface
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/payment", webhookHandler.ReceivePayment)
		}

		// QR administration
		qr := v1.Group("/qr")
		{
			qr.POST("", qrHandler.Generate)
			qr.POST("/:id/cancel", qrHandler.Cancel)
			qr.GET("/:id", qrHandler.GetByID)
			qr.GET("/:id/reconciliation", reconHandler.ListByQRID)
		}

		// Reconciliation audit surface for operators
		reconciliation := v1.Group("/reconciliation")
		{
			reconciliation.GET("/conflicts", reconHandler.ListConflicts)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
