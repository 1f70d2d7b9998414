package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qrpay-reconciler/internal/bankgateway"
	"github.com/qrpay-reconciler/internal/config"
	"github.com/qrpay-reconciler/internal/data/mongo"
	"github.com/qrpay-reconciler/internal/data/postgres"
	"github.com/qrpay-reconciler/internal/ledger"
	"github.com/qrpay-reconciler/internal/logger"
	"github.com/qrpay-reconciler/internal/platform/messaging/producers"
	"github.com/qrpay-reconciler/internal/platform/persistence"
	"github.com/qrpay-reconciler/internal/webhook_gateway"
	"github.com/qrpay-reconciler/internal/webhook_gateway/service"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("webhook_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Webhook Gateway",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for post-commit payment events
	paymentEventProducer, err := producers.NewPaymentEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment event Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	accountRepo := postgres.NewAccountRepository(log, postgresDB)
	movementRepo := postgres.NewMovementRepository(log, postgresDB)
	qrCodeRepo := postgres.NewQRCodeRepository(log, postgresDB)
	syncStatusRepo := postgres.NewSyncStatusRepository(log, postgresDB)
	reconLogRepo := mongo.NewReconciliationLogRepository(log, mongoDB.Database())

	// Initialize the ledger recorder and the bank gateway client
	recorder := ledger.NewRecorder(log, postgresDB.Pool(), accountRepo, movementRepo)
	bankClient := bankgateway.NewHTTPClient(&cfg.BankGateway, log.With("component", "bank_gateway"))

	// Initialize services
	paymentService := service.NewPaymentService(log, postgresDB.Pool(), qrCodeRepo, syncStatusRepo, recorder, paymentEventProducer)
	qrService := service.NewQRService(log, bankClient, qrCodeRepo, syncStatusRepo, cfg.BankGateway.AccountCode)

	// Initialize REST server
	server := webhook_gateway.NewServer(log, cfg, paymentService, qrService, reconLogRepo)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so in-flight webhooks finish against a live pool
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = paymentEventProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("Webhook Gateway exited with error", "error", serverErr)
		os.Exit(1)
	}
	log.Info("Webhook Gateway shutdown complete")
}
