package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qrpay-reconciler/internal/bankgateway"
	"github.com/qrpay-reconciler/internal/config"
	"github.com/qrpay-reconciler/internal/data/mongo"
	"github.com/qrpay-reconciler/internal/data/postgres"
	"github.com/qrpay-reconciler/internal/ledger"
	"github.com/qrpay-reconciler/internal/logger"
	"github.com/qrpay-reconciler/internal/platform/messaging/producers"
	"github.com/qrpay-reconciler/internal/platform/persistence"
	"github.com/qrpay-reconciler/internal/sync_processor/components"
	"github.com/qrpay-reconciler/internal/sync_processor/dispatcher"
	"github.com/qrpay-reconciler/internal/sync_processor/scheduler"
	"github.com/qrpay-reconciler/internal/sync_processor/service"
	"github.com/qrpay-reconciler/internal/sync_processor/sweeps"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("sync_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Sync Processor",
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

	// Initialize repositories
	accountRepo := postgres.NewAccountRepository(log, postgresDB)
	movementRepo := postgres.NewMovementRepository(log, postgresDB)
	qrCodeRepo := postgres.NewQRCodeRepository(log, postgresDB)
	syncStatusRepo := postgres.NewSyncStatusRepository(log, postgresDB)
	jobQueue := postgres.NewJobQueueRepository(log, postgresDB)
	reconLogRepo := mongo.NewReconciliationLogRepository(log, mongoDB.Database())

	// Initialize Kafka producers
	paymentEventProducer, err := producers.NewPaymentEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment event Kafka producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer is nil when no DLQ topic is configured. Assign through a
	// typed check so the dispatcher sees a nil interface, not a typed nil.
	var deadLetterPublisher producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetterPublisher = dlqProducer
	}

	// Initialize the ledger recorder and the bank gateway client
	recorder := ledger.NewRecorder(log, postgresDB.Pool(), accountRepo, movementRepo)
	bankClient := bankgateway.NewHTTPClient(&cfg.BankGateway, log.With("component", "bank_gateway"))

	// Initialize the reconcile service with separated concerns
	reconcileService := components.CreateReconcileService(
		postgresDB,
		bankClient,
		qrCodeRepo,
		syncStatusRepo,
		recorder,
		reconLogRepo,
		paymentEventProducer,
		log,
		cfg,
	)

	// Initialize the scheduling and dispatching loops
	syncScheduler := scheduler.NewScheduler(&cfg.Scheduler, qrCodeRepo, syncStatusRepo, jobQueue, log)

	audit := components.NewAuditRecorder(reconLogRepo, log)
	jobDispatcher := dispatcher.NewDispatcher(
		&cfg.WorkerPool,
		jobQueue,
		reconcileService,
		qrCodeRepo,
		audit,
		deadLetterPublisher,
		log,
	)

	// Initialize the cron sweeps
	maintenanceSweeps := sweeps.NewSweeps(&cfg.Sweeps, qrCodeRepo, syncStatusRepo, jobQueue, log)
	if err := maintenanceSweeps.Start(appCtx); err != nil {
		log.Error("Failed to start maintenance sweeps", "error", err)
		os.Exit(1)
	}

	// Serve Prometheus metrics
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: promhttp.Handler(),
	}

	// Create error channel for service errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start scheduler in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		syncScheduler.Start(appCtx)
	}()

	// Start dispatcher in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		jobDispatcher.Start(appCtx)
	}()

	// Start metrics server in a goroutine
	go func() {
		log.Info("Starting metrics server", "port", cfg.Server.Port)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Shutdown the worker pool if it's a WorkerPoolReconcileService
	if wpService, ok := reconcileService.(*service.WorkerPoolReconcileService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop the cron sweeps, waiting for in-flight runs
	maintenanceSweeps.Stop()

	// Wait for the scheduler and dispatcher loops to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Shutdown metrics server
	if err = metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during metrics server shutdown", "error", err)
	}

	// Close Kafka producers
	if err = paymentEventProducer.Close(); err != nil {
		log.Error("Error closing payment event Kafka producer", "error", err)
	}
	if dlqProducer != nil { // dlqProducer can be nil if DLQTopic was not configured
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Sync Processor exited with error", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Sync Processor shutdown complete")
}
