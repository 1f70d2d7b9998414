package components

import (
	"log/slog"

	"github.com/qrpay-reconciler/internal/bankgateway"
	"github.com/qrpay-reconciler/internal/config"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/reconlog"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/ledger"
	"github.com/qrpay-reconciler/internal/platform/messaging/producers"
	"github.com/qrpay-reconciler/internal/platform/persistence"
	"github.com/qrpay-reconciler/internal/sync_processor/scheduler"
	"github.com/qrpay-reconciler/internal/sync_processor/service"
)

// CreateReconcileService creates a worker-pool-backed ReconcileService with
// all its dependencies.
func CreateReconcileService(
	pgDB *persistence.PostgresDB,
	gateway bankgateway.Client,
	qrCodes qrcode.Repository,
	syncStatuses syncstatus.Repository,
	recorder *ledger.Recorder,
	logs reconlog.Repository,
	publisher producers.MessagePublisher,
	logger *slog.Logger,
	cfg *config.Config,
) service.ReconcileService {
	tracker := NewStatusTracker(syncStatuses, logger)
	applier := NewPaymentApplier(pgDB.Pool(), qrCodes, syncStatuses, recorder, publisher, logger)
	audit := NewAuditRecorder(logs, logger)

	policy := scheduler.Policy{
		MaxCheckCount: cfg.Scheduler.MaxCheckCount,
		MaxQRAge:      cfg.Scheduler.MaxQRAge,
	}

	baseService := service.NewReconcileService(
		gateway,
		qrCodes,
		tracker,
		applier,
		audit,
		policy,
		logger,
	)

	workerPoolService, err := service.NewWorkerPoolReconcileService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)

	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool reconcile service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
